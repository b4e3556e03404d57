package rfvd

import "github.com/tinyrange/rfvd/internal/backend"

// dmaHandler snapshots the descriptor, validates the transfer range
// against the declared window, clamps the guest-side address against the
// DMA mask, and performs the copy. The staging buffer is fetched for the
// whole declared window, since the transfer is addressed by its offset into
// that window. A window violation is logged and the copy is still
// attempted, unless the window-relative offset and count do not fit the
// fetched staging buffer; such a transfer is logged and skipped.
func (d *Device) dmaHandler() {
	desc, err := d.backend.DMASnapshot()
	if err != nil {
		logErrorReport("dma snapshot failed", "err", err)
		return
	}
	staging, err := d.backend.DMAStagingBuffer(desc.Size)
	if err != nil {
		logErrorReport("dma staging buffer fetch failed", "err", err)
		return
	}

	if desc.Direction() == backend.DMAFromPCI {
		d.dmaFromPCI(desc, staging)
	} else {
		d.dmaToPCI(desc, staging)
	}
}

// dmaFromPCI reads cnt bytes from guest address src into
// staging[dst-start : dst-start+cnt], matching the backend's own
// rfvd_pci_update_dma/rfvd_dma_handler pairing.
func (d *Device) dmaFromPCI(desc backend.DMADescriptor, staging []byte) {
	checkRange(desc.Dst, desc.Cnt, desc.Start, desc.Size)
	guestAddr := clampAddr(desc.Src, desc.Mask)
	off := desc.Dst - desc.Start
	if !fitsStaging(staging, off, desc.Cnt) {
		logErrorReport("dma staging buffer too small for transfer", "off", off, "cnt", desc.Cnt, "len", len(staging))
		return
	}
	if err := d.host.DMARead(guestAddr, staging[off:off+desc.Cnt]); err != nil {
		logErrorReport("pci_dma_read failed", "addr", guestAddr, "cnt", desc.Cnt, "err", err)
	}
}

// dmaToPCI writes cnt bytes from staging[src-start : src-start+cnt] to
// guest address dst.
func (d *Device) dmaToPCI(desc backend.DMADescriptor, staging []byte) {
	checkRange(desc.Src, desc.Cnt, desc.Start, desc.Size)
	guestAddr := clampAddr(desc.Dst, desc.Mask)
	off := desc.Src - desc.Start
	if !fitsStaging(staging, off, desc.Cnt) {
		logErrorReport("dma staging buffer too small for transfer", "off", off, "cnt", desc.Cnt, "len", len(staging))
		return
	}
	if err := d.host.DMAWrite(guestAddr, staging[off:off+desc.Cnt]); err != nil {
		logErrorReport("pci_dma_write failed", "addr", guestAddr, "cnt", desc.Cnt, "err", err)
	}
}

func fitsStaging(staging []byte, off, cnt uint64) bool {
	if off > uint64(len(staging)) {
		return false
	}
	end := off + cnt
	return end >= off && end <= uint64(len(staging))
}

// checkRange validates [xferLo, xferLo+cnt] lies entirely within
// [winStart, winStart+winSize] using unsigned 64-bit arithmetic with
// explicit overflow checks; on violation it logs a guest error and returns
// without altering the caller's control flow — only the caller's
// staging-buffer bounds check decides whether the copy runs.
func checkRange(xferLo, cnt, winStart, winSize uint64) {
	xferHi := xferLo + cnt
	winHi := winStart + winSize
	if winHi >= winStart && xferHi >= xferLo && xferLo >= winStart && xferHi <= winHi {
		return
	}
	logGuestError("DMA range out of bounds",
		"xfer_start", xferLo, "xfer_end", xferHi,
		"window_start", winStart, "window_end", winHi)
}

// clampAddr bitwise-ANDs a guest address with the DMA mask to constrain
// reachable address bits, logging both values when clamping actually
// changes the address.
func clampAddr(addr, mask uint64) uint64 {
	res := addr & mask
	if res != addr {
		logGuestError("clamping DMA address", "addr", addr, "clamped", res)
	}
	return res
}
