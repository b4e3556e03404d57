package rfvd

// readOverlay and writeOverlay are the overlay-memory trampolines, the same
// shape as readBAR/writeBAR but keyed by the backend memory index rather
// than a BAR index.
func (d *Device) readOverlay(mem int, offset uint64, width int) (uint64, error) {
	v, err := d.backend.MemRead(mem, offset, width)
	if err != nil {
		logDispatchError("mem_read", mem, offset, width, err)
		return 0, nil
	}
	return v, nil
}

func (d *Device) writeOverlay(mem int, offset uint64, width int, value uint64) error {
	if err := d.backend.MemWrite(mem, offset, width, value); err != nil {
		logDispatchError("mem_write", mem, offset, width, err)
	}
	return nil
}
