package rfvd

import "time"

// watchdogLoop is the interrupt poll loop: one dedicated goroutine per
// device, ticking at cfg.WatchdogInterval, observing both the host's stop
// channel and the device's own stop channel (closed by Exit) for
// cancellation. It never holds a host-global lock while sleeping.
func (d *Device) watchdogLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(d.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.irqTick()
		}
	}
}

func (d *Device) irqTick() {
	status := d.backend.IRQStatus()
	if status == 0 {
		return
	}

	d.raiseIRQ()

	if status&irqCauseDMA != 0 {
		d.dmaHandler()
		d.lowerIRQ(irqCauseDMA)
	}

	d.logUnknownCauses(status)
}

func (d *Device) raiseIRQ() {
	if d.msiActive {
		if err := d.host.MSINotify(0); err != nil {
			logErrorReport("msi_notify failed", "err", err)
		}
		return
	}
	if err := d.host.SetIRQLevel(true); err != nil {
		logErrorReport("set_irq_level failed", "err", err)
	}
}

// lowerIRQ asks the backend to clear exactly the bits in mask, then
// re-reads irq_status; the line is only de-asserted if the re-read is 0
// and MSI is inactive, so a concurrent new cause set between the clear and
// the re-read is never hidden behind a stale de-assert.
func (d *Device) lowerIRQ(mask uint32) {
	d.backend.IRQLower(mask)
	remaining := d.backend.IRQStatus()
	if remaining == 0 && !d.msiActive {
		if err := d.host.SetIRQLevel(false); err != nil {
			logErrorReport("set_irq_level failed", "err", err)
		}
	}
}

// logUnknownCauses preserves bits that aren't GENERAL or DMA — they are
// never cleared by lower — and logs each distinct one once per device
// lifetime: a cause dispatch doesn't handle shouldn't silently disappear.
func (d *Device) logUnknownCauses(status uint32) {
	unknown := status &^ (irqCauseGeneral | irqCauseDMA)
	if unknown == 0 {
		return
	}
	d.unknownMu.Lock()
	defer d.unknownMu.Unlock()
	for bit := uint32(1); bit != 0; bit <<= 1 {
		if unknown&bit == 0 {
			continue
		}
		if !d.unknownLogged[bit] {
			d.unknownLogged[bit] = true
			logGuestError("unknown IRQ cause bit set, preserving", "bit", bit)
		}
	}
}
