package rfvd

// readBAR and writeBAR are a single parameterized trampoline shared by every
// BAR, rather than one callback per slot: one code path, with the BAR index
// closed over by the caller in registerBARs. Dispatch never touches the
// backing buffer; it exists only so host infrastructure that peeks at
// region memory sees defined storage.
func (d *Device) readBAR(bar int, offset uint64, width int) (uint64, error) {
	v, err := d.backend.PCIRead(bar, offset, width)
	if err != nil {
		logDispatchError("pci_read", bar, offset, width, err)
		return 0, nil
	}
	return v, nil
}

func (d *Device) writeBAR(bar int, offset uint64, width int, value uint64) error {
	if err := d.backend.PCIWrite(bar, offset, width, value); err != nil {
		logDispatchError("pci_write", bar, offset, width, err)
	}
	return nil
}

func logDispatchError(op string, index int, offset uint64, width int, err error) {
	logInfoDebug(op+" failed", "index", index, "offset", offset, "width", width, "err", err)
}
