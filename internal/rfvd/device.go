// Package rfvd implements the device core: realization, BAR/overlay
// dispatch, the interrupt watchdog, and the DMA engine described against
// the backend and hvapi packages. None of it understands any specific real
// device; all register-level behavior is delegated to the backend.
package rfvd

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/rfvd/internal/backend"
	"github.com/tinyrange/rfvd/internal/hvapi"
	"github.com/tinyrange/rfvd/internal/rfvdcfg"
)

// Config tunes a device instance at realize time. internal/rfvdcfg is the
// YAML-driven source of these values; callers may also build one directly.
type Config struct {
	BARPrefix        string
	WatchdogInterval time.Duration
	ExposeMSI        bool
}

// ConfigFromAmbient adapts the YAML-loaded ambient config into the shape
// Device consumes.
func ConfigFromAmbient(c rfvdcfg.Config) Config {
	return Config{
		BARPrefix:        c.BARPrefix,
		WatchdogInterval: c.WatchdogInterval(),
		ExposeMSI:        c.ExposeMSI,
	}
}

func (c Config) withDefaults() Config {
	if c.BARPrefix == "" {
		c.BARPrefix = "rfvd"
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = time.Millisecond
	}
	return c
}

type barSlot struct {
	kind hvapi.IOKind
	size uint64
	buf  []byte
}

type overlaySlot struct {
	memIndex int
	base     uint64
	size     uint64
}

// Device is one realized PCI function backed by an opened description
// backend. Its per-instance state is write-once after Realize: dispatch
// callbacks only read bars/overlays/msiActive from then on.
type Device struct {
	backend backend.API
	host    hvapi.Host
	cfg     Config

	bars     [6]*barSlot
	overlays []overlaySlot

	msiActive bool

	stopped atomic.Bool
	stopCh  chan struct{}
	group   errgroup.Group

	unknownMu     sync.Mutex
	unknownLogged map[uint32]bool
}

// New constructs an unrealized device bound to an opened backend.
func New(b backend.API, cfg Config) *Device {
	return &Device{
		backend:       b,
		cfg:           cfg.withDefaults(),
		stopCh:        make(chan struct{}),
		unknownLogged: make(map[uint32]bool),
	}
}

// Realize performs the one-shot construction of a PCI function: identity
// and fixed config bytes, BAR and overlay registration, MSI/PCIe capability
// setup, and starting the interrupt watchdog.
func (d *Device) Realize(host hvapi.Host) error {
	d.host = host
	id := d.backend.Identity()

	if err := d.writeFixedConfig(host); err != nil {
		return err
	}
	if err := d.registerBARs(host); err != nil {
		return err
	}
	if err := d.registerOverlays(host); err != nil {
		return err
	}
	if err := d.programIdentity(host, id); err != nil {
		return err
	}
	if err := d.setupInterrupts(host); err != nil {
		return err
	}
	if err := d.setupPCIe(host); err != nil {
		return err
	}

	done := make(chan struct{})
	entry := func(stop <-chan struct{}) {
		defer close(done)
		d.watchdogLoop(stop)
	}
	if err := host.StartDetachedThread(d.cfg.BARPrefix+"-irq", entry); err != nil {
		return fmt.Errorf("rfvd: start interrupt watchdog: %w", err)
	}
	d.group.Go(func() error {
		<-done
		return nil
	})
	logInfo("rfvd realized", "vid", id.VID, "pid", id.PID, "bars", d.barCount(), "overlays", len(d.overlays))
	return nil
}

func (d *Device) writeFixedConfig(host hvapi.Host) error {
	if err := host.WriteConfigByte(configOffsetStatusLow, statusFastBackLow); err != nil {
		return fmt.Errorf("rfvd: write STATUS low: %w", err)
	}
	if err := host.WriteConfigByte(configOffsetStatusHigh, statusDevselMediumHigh); err != nil {
		return fmt.Errorf("rfvd: write STATUS high: %w", err)
	}
	if err := host.WriteConfigByte(configOffsetCacheLineSize, cacheLineSizeDwords); err != nil {
		return fmt.Errorf("rfvd: write CACHE_LINE_SIZE: %w", err)
	}
	if err := host.WriteConfigByte(configOffsetInterruptLine, interruptLineNone); err != nil {
		return fmt.Errorf("rfvd: write INTERRUPT_LINE: %w", err)
	}
	capPtr := uint8(capabilitiesPtrNone)
	if host.IsPCIExpress() {
		capPtr = capabilitiesPtrPCIe
	}
	if err := host.WriteConfigByte(configOffsetCapabilitiesPtr, capPtr); err != nil {
		return fmt.Errorf("rfvd: write CAPABILITY_LIST: %w", err)
	}
	return nil
}

func (d *Device) barCount() int {
	n := 0
	for _, b := range d.bars {
		if b != nil {
			n++
		}
	}
	return n
}

func (d *Device) registerBARs(host hvapi.Host) error {
	count, err := d.backend.BARCount()
	if err != nil {
		return fmt.Errorf("rfvd: bar_count: %w", err)
	}
	for i := 0; i < count && i < len(d.bars); i++ {
		size, err := d.backend.BARSize(i)
		if err != nil {
			return fmt.Errorf("rfvd: bar_size(%d): %w", i, err)
		}
		if size == 0 {
			continue
		}
		kind, err := d.backend.BARKind(i)
		if err != nil {
			return fmt.Errorf("rfvd: bar_kind(%d): %w", i, err)
		}
		hvKind := hvapi.KindPIO
		if kind == backend.KindMMIO {
			hvKind = hvapi.KindMMIO
		}
		slot := &barSlot{kind: hvKind, size: size, buf: make([]byte, size)}
		bar := i
		ops := hvapi.RegionOps{
			MinAccess: 1,
			MaxAccess: 8,
			Read: func(offset uint64, width int) (uint64, error) {
				return d.readBAR(bar, offset, width)
			},
			Write: func(offset uint64, width int, value uint64) error {
				return d.writeBAR(bar, offset, width, value)
			},
		}
		region, err := host.RegisterIORegion(fmt.Sprintf("%s-%d", d.cfg.BARPrefix, i), size, hvKind, ops)
		if err != nil {
			return fmt.Errorf("rfvd: register BAR %d region: %w", i, err)
		}
		if err := host.RegisterBAR(i, hvKind, region); err != nil {
			return fmt.Errorf("rfvd: register BAR %d: %w", i, err)
		}
		d.bars[i] = slot
	}
	return nil
}

func (d *Device) registerOverlays(host hvapi.Host) error {
	count, err := d.backend.MemCount()
	if err != nil {
		return fmt.Errorf("rfvd: mem_count: %w", err)
	}
	for m := 0; m < count; m++ {
		size, err := d.backend.MemSize(m)
		if err != nil {
			if isNoDeviceOrNoElement(err) {
				continue
			}
			return fmt.Errorf("rfvd: mem_size(%d): %w", m, err)
		}
		base, err := d.backend.MemBase(m)
		if err != nil {
			if isNoDeviceOrNoElement(err) {
				continue
			}
			return fmt.Errorf("rfvd: mem_base(%d): %w", m, err)
		}
		mem := m
		ops := hvapi.RegionOps{
			MinAccess: 1,
			MaxAccess: 8,
			Read: func(offset uint64, width int) (uint64, error) {
				return d.readOverlay(mem, offset, width)
			},
			Write: func(offset uint64, width int, value uint64) error {
				return d.writeOverlay(mem, offset, width, value)
			},
		}
		if _, err := host.AddOverlay(base, size, hvapi.MaxPriority, ops); err != nil {
			return fmt.Errorf("rfvd: add overlay %d at %#x: %w", m, base, err)
		}
		d.overlays = append(d.overlays, overlaySlot{memIndex: m, base: base, size: size})
	}
	return nil
}

func (d *Device) programIdentity(host hvapi.Host, id backend.Identity) error {
	progIF := uint8(id.ClassID & 0xff)
	pciClass := uint16(uint32(id.ClassID) >> 8)
	if err := host.SetClass(pciClass); err != nil {
		return fmt.Errorf("rfvd: set_class: %w", err)
	}
	if err := host.SetProgIF(progIF); err != nil {
		return fmt.Errorf("rfvd: set_prog_if: %w", err)
	}
	if err := host.SetInterruptPin(interruptPinA); err != nil {
		return fmt.Errorf("rfvd: set_interrupt_pin: %w", err)
	}
	if err := host.SetVendorID(id.VID); err != nil {
		return fmt.Errorf("rfvd: set_vendor_id: %w", err)
	}
	if err := host.SetDeviceID(id.PID); err != nil {
		return fmt.Errorf("rfvd: set_device_id: %w", err)
	}
	if err := host.SetRevision(id.Revision); err != nil {
		return fmt.Errorf("rfvd: set_revision: %w", err)
	}
	if err := host.SetSubsystemVendorID(id.SubVID); err != nil {
		return fmt.Errorf("rfvd: set_subvendor_id: %w", err)
	}
	if err := host.SetSubsystemID(id.SubPID); err != nil {
		return fmt.Errorf("rfvd: set_subdevice_id: %w", err)
	}
	return nil
}

func (d *Device) setupInterrupts(host hvapi.Host) error {
	if d.cfg.ExposeMSI {
		err := host.MSIInit(msiCapOffset, msiVectors, true, false)
		if err != nil && !errors.Is(err, hvapi.ErrNotSupported) {
			return fmt.Errorf("rfvd: msi_init: %w", err)
		}
		if err == nil {
			d.msiActive = true
			logInfo("MSI initialized")
			return nil
		}
		logInfo("MSI not supported by host, falling back to legacy INTx")
	}
	if err := host.SetInterruptPin(interruptPinA); err != nil {
		return fmt.Errorf("rfvd: set_interrupt_pin (legacy): %w", err)
	}
	if err := host.WriteConfigByte(configOffsetInterruptLine, interruptLineFixed); err != nil {
		return fmt.Errorf("rfvd: write INTERRUPT_LINE (legacy): %w", err)
	}
	return nil
}

func (d *Device) setupPCIe(host hvapi.Host) error {
	if !host.IsPCIExpress() {
		return nil
	}
	if err := host.PCIeEndpointCapInit(pcieCapOffset); err != nil {
		return fmt.Errorf("rfvd: pcie_endpoint_cap_init: %w", err)
	}
	return nil
}

// Exit tears down a realized device: stops the watchdog, frees BAR
// buffers, and uninitializes MSI. BAR slots with size 0 need no teardown
// because none was ever allocated.
func (d *Device) Exit() error {
	if d.stopped.CompareAndSwap(false, true) {
		close(d.stopCh)
	}
	if err := d.group.Wait(); err != nil {
		return err
	}
	for i := range d.bars {
		d.bars[i] = nil
	}
	if d.msiActive {
		if err := d.host.MSIUninit(); err != nil {
			return fmt.Errorf("rfvd: msi_uninit: %w", err)
		}
		d.msiActive = false
	}
	return nil
}

func isNoDeviceOrNoElement(err error) bool {
	var be *backend.Error
	if errors.As(err, &be) {
		return be.Code == backend.CodeNoDevice || be.Code == backend.CodeNoElement
	}
	return false
}
