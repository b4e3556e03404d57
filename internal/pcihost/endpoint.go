// Package pcihost is a minimal, in-process stand-in for a host emulator's
// PCI/memory/IRQ/DMA surface. It exists so internal/rfvd can be realized and
// exercised without a real hypervisor.
//
// A real host emulator would implement hvapi.Host directly against its own
// config space, BAR, and DMA machinery; pcihost is reference material, not
// that collaborator.
package pcihost

import (
	"fmt"
	"sync"

	"github.com/tinyrange/rfvd/internal/hvapi"
)

const barCount = 6

type regionEntry struct {
	name string
	size uint64
	kind hvapi.IOKind
	ops  hvapi.RegionOps
}

type overlayEntry struct {
	base     uint64
	size     uint64
	priority hvapi.Priority
	ops      hvapi.RegionOps
}

// Endpoint is a single PCI function's view of a fake host bridge plus a
// flat guest-physical-memory buffer for DMA.
type Endpoint struct {
	mu sync.Mutex

	config     [256]byte
	pciExpress bool

	bars [barCount]*regionEntry

	overlays []*overlayEntry

	msiInitialized bool
	msiVectors     int
	msiNotified    []int

	irqLevel bool

	guestMem []byte

	threadStops []chan struct{}

	dmaReads  []DMAAccess
	dmaWrites []DMAAccess
}

// DMAAccess records one DMARead/DMAWrite call, for tests asserting the
// exact host DMA call a handler issued.
type DMAAccess struct {
	GuestAddr uint64
	Len       int
}

// NewEndpoint constructs a fake host scoped to one device, with a guest
// memory buffer of guestMemSize bytes for DMA simulation.
func NewEndpoint(guestMemSize uint64, pciExpress bool) *Endpoint {
	return &Endpoint{
		pciExpress: pciExpress,
		guestMem:   make([]byte, guestMemSize),
	}
}

var _ hvapi.Host = (*Endpoint)(nil)

// WriteConfigByte implements hvapi.Host.
func (e *Endpoint) WriteConfigByte(offset uint16, value uint8) error {
	if int(offset) >= len(e.config) {
		return fmt.Errorf("pcihost: config offset %#x out of range", offset)
	}
	e.mu.Lock()
	e.config[offset] = value
	e.mu.Unlock()
	return nil
}

// ConfigByte returns the current value of a config space byte, for tests.
func (e *Endpoint) ConfigByte(offset uint16) uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config[offset]
}

// SetClass implements hvapi.Host.
func (e *Endpoint) SetClass(class uint16) error {
	e.mu.Lock()
	e.config[0x0a] = byte(class)
	e.config[0x0b] = byte(class >> 8)
	e.mu.Unlock()
	return nil
}

// SetProgIF implements hvapi.Host.
func (e *Endpoint) SetProgIF(progIF uint8) error {
	e.mu.Lock()
	e.config[0x09] = progIF
	e.mu.Unlock()
	return nil
}

// SetRevision implements hvapi.Host.
func (e *Endpoint) SetRevision(revision uint8) error {
	e.mu.Lock()
	e.config[0x08] = revision
	e.mu.Unlock()
	return nil
}

// SetVendorID implements hvapi.Host.
func (e *Endpoint) SetVendorID(id uint16) error {
	e.mu.Lock()
	e.config[0x00] = byte(id)
	e.config[0x01] = byte(id >> 8)
	e.mu.Unlock()
	return nil
}

// SetDeviceID implements hvapi.Host.
func (e *Endpoint) SetDeviceID(id uint16) error {
	e.mu.Lock()
	e.config[0x02] = byte(id)
	e.config[0x03] = byte(id >> 8)
	e.mu.Unlock()
	return nil
}

// SetSubsystemVendorID implements hvapi.Host.
func (e *Endpoint) SetSubsystemVendorID(id uint16) error {
	e.mu.Lock()
	e.config[0x2c] = byte(id)
	e.config[0x2d] = byte(id >> 8)
	e.mu.Unlock()
	return nil
}

// SetSubsystemID implements hvapi.Host.
func (e *Endpoint) SetSubsystemID(id uint16) error {
	e.mu.Lock()
	e.config[0x2e] = byte(id)
	e.config[0x2f] = byte(id >> 8)
	e.mu.Unlock()
	return nil
}

// SetInterruptPin implements hvapi.Host.
func (e *Endpoint) SetInterruptPin(pin uint8) error {
	e.mu.Lock()
	e.config[0x3d] = pin
	e.mu.Unlock()
	return nil
}

// RegisterIORegion implements hvapi.Host.
func (e *Endpoint) RegisterIORegion(name string, size uint64, kind hvapi.IOKind, ops hvapi.RegionOps) (hvapi.Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("pcihost: region %q has zero size", name)
	}
	return &regionEntry{name: name, size: size, kind: kind, ops: ops}, nil
}

// RegisterBAR implements hvapi.Host.
func (e *Endpoint) RegisterBAR(index int, kind hvapi.IOKind, region hvapi.Region) error {
	if index < 0 || index >= barCount {
		return fmt.Errorf("pcihost: BAR index %d out of range", index)
	}
	entry, ok := region.(*regionEntry)
	if !ok || entry == nil {
		return fmt.Errorf("pcihost: invalid region for BAR %d", index)
	}
	if entry.kind != kind {
		return fmt.Errorf("pcihost: BAR %d kind mismatch", index)
	}
	e.mu.Lock()
	e.bars[index] = entry
	e.mu.Unlock()
	return nil
}

// AddOverlay implements hvapi.Host.
func (e *Endpoint) AddOverlay(base uint64, size uint64, priority hvapi.Priority, ops hvapi.RegionOps) (hvapi.Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("pcihost: overlay has zero size")
	}
	entry := &overlayEntry{base: base, size: size, priority: priority, ops: ops}
	e.mu.Lock()
	for _, existing := range e.overlays {
		if base < existing.base+existing.size && existing.base < base+size {
			e.mu.Unlock()
			return nil, fmt.Errorf("pcihost: overlay at %#x overlaps existing overlay at %#x", base, existing.base)
		}
	}
	e.overlays = append(e.overlays, entry)
	e.mu.Unlock()
	return entry, nil
}

// MSIInit implements hvapi.Host.
func (e *Endpoint) MSIInit(capOffset uint8, vectors int, perVectorMask bool, msi64 bool) error {
	if vectors <= 0 {
		return fmt.Errorf("pcihost: MSI vector count must be positive")
	}
	e.mu.Lock()
	e.msiInitialized = true
	e.msiVectors = vectors
	e.mu.Unlock()
	return nil
}

// MSIEnabled implements hvapi.Host.
func (e *Endpoint) MSIEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msiInitialized
}

// MSINotify implements hvapi.Host.
func (e *Endpoint) MSINotify(vector int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.msiInitialized {
		return fmt.Errorf("pcihost: MSI not initialized")
	}
	if vector < 0 || vector >= e.msiVectors {
		return fmt.Errorf("pcihost: MSI vector %d out of range", vector)
	}
	e.msiNotified = append(e.msiNotified, vector)
	return nil
}

// MSIUninit implements hvapi.Host.
func (e *Endpoint) MSIUninit() error {
	e.mu.Lock()
	e.msiInitialized = false
	e.msiVectors = 0
	e.mu.Unlock()
	return nil
}

// MSINotifications returns the vectors notified so far, for tests.
func (e *Endpoint) MSINotifications() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.msiNotified))
	copy(out, e.msiNotified)
	return out
}

// IsPCIExpress implements hvapi.Host.
func (e *Endpoint) IsPCIExpress() bool {
	return e.pciExpress
}

// PCIeEndpointCapInit implements hvapi.Host.
func (e *Endpoint) PCIeEndpointCapInit(capOffset uint8) error {
	if !e.pciExpress {
		return fmt.Errorf("pcihost: not a PCIe bus")
	}
	return nil
}

// SetIRQLevel implements hvapi.Host.
func (e *Endpoint) SetIRQLevel(level bool) error {
	e.mu.Lock()
	e.irqLevel = level
	e.mu.Unlock()
	return nil
}

// IRQLevel reports the current legacy IRQ line level, for tests.
func (e *Endpoint) IRQLevel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.irqLevel
}

// DMARead implements hvapi.Host: copies from guest memory into buf.
func (e *Endpoint) DMARead(guestAddr uint64, buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dmaReads = append(e.dmaReads, DMAAccess{GuestAddr: guestAddr, Len: len(buf)})
	if guestAddr > uint64(len(e.guestMem)) || guestAddr+uint64(len(buf)) > uint64(len(e.guestMem)) {
		return fmt.Errorf("pcihost: DMA read [%#x, %#x) outside guest memory", guestAddr, guestAddr+uint64(len(buf)))
	}
	copy(buf, e.guestMem[guestAddr:guestAddr+uint64(len(buf))])
	return nil
}

// DMAWrite implements hvapi.Host: copies buf into guest memory.
func (e *Endpoint) DMAWrite(guestAddr uint64, buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dmaWrites = append(e.dmaWrites, DMAAccess{GuestAddr: guestAddr, Len: len(buf)})
	if guestAddr > uint64(len(e.guestMem)) || guestAddr+uint64(len(buf)) > uint64(len(e.guestMem)) {
		return fmt.Errorf("pcihost: DMA write [%#x, %#x) outside guest memory", guestAddr, guestAddr+uint64(len(buf)))
	}
	copy(e.guestMem[guestAddr:guestAddr+uint64(len(buf))], buf)
	return nil
}

// DMAReadLog returns the DMARead calls issued so far, for tests.
func (e *Endpoint) DMAReadLog() []DMAAccess {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]DMAAccess, len(e.dmaReads))
	copy(out, e.dmaReads)
	return out
}

// DMAWriteLog returns the DMAWrite calls issued so far, for tests.
func (e *Endpoint) DMAWriteLog() []DMAAccess {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]DMAAccess, len(e.dmaWrites))
	copy(out, e.dmaWrites)
	return out
}

// StartDetachedThread implements hvapi.Host by running entry in a goroutine.
func (e *Endpoint) StartDetachedThread(name string, entry func(stop <-chan struct{})) error {
	stop := make(chan struct{})
	e.mu.Lock()
	e.threadStops = append(e.threadStops, stop)
	e.mu.Unlock()
	go entry(stop)
	return nil
}

// StopAllThreads closes every stop channel handed out by
// StartDetachedThread, for test teardown; a real host has no equivalent
// because process exit reclaims its threads.
func (e *Endpoint) StopAllThreads() {
	e.mu.Lock()
	stops := e.threadStops
	e.threadStops = nil
	e.mu.Unlock()
	for _, stop := range stops {
		close(stop)
	}
}

// GuestMemory exposes the fake guest memory buffer for test setup.
func (e *Endpoint) GuestMemory() []byte {
	return e.guestMem
}

// SimulateBARRead dispatches a guest read to the registered BAR trampoline,
// as a real host's MMIO/PIO dispatcher would.
func (e *Endpoint) SimulateBARRead(index int, offset uint64, width int) (uint64, error) {
	e.mu.Lock()
	entry := e.bars[index]
	e.mu.Unlock()
	if entry == nil {
		return 0, fmt.Errorf("pcihost: BAR %d not registered", index)
	}
	return entry.ops.Read(offset, width)
}

// SimulateBARWrite dispatches a guest write to the registered BAR trampoline.
func (e *Endpoint) SimulateBARWrite(index int, offset uint64, width int, value uint64) error {
	e.mu.Lock()
	entry := e.bars[index]
	e.mu.Unlock()
	if entry == nil {
		return fmt.Errorf("pcihost: BAR %d not registered", index)
	}
	return entry.ops.Write(offset, width, value)
}

// OverlayPriority returns the priority a registered overlay was added at,
// for tests asserting the max-priority contract.
func (e *Endpoint) OverlayPriority(index int) (hvapi.Priority, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.overlays) {
		return 0, fmt.Errorf("pcihost: overlay %d not registered", index)
	}
	return e.overlays[index].priority, nil
}

// SimulateOverlayRead dispatches a guest read to a registered overlay by
// index (in registration order).
func (e *Endpoint) SimulateOverlayRead(index int, offset uint64, width int) (uint64, error) {
	e.mu.Lock()
	if index < 0 || index >= len(e.overlays) {
		e.mu.Unlock()
		return 0, fmt.Errorf("pcihost: overlay %d not registered", index)
	}
	entry := e.overlays[index]
	e.mu.Unlock()
	return entry.ops.Read(offset, width)
}

// SimulateOverlayWrite dispatches a guest write to a registered overlay.
func (e *Endpoint) SimulateOverlayWrite(index int, offset uint64, width int, value uint64) error {
	e.mu.Lock()
	if index < 0 || index >= len(e.overlays) {
		e.mu.Unlock()
		return fmt.Errorf("pcihost: overlay %d not registered", index)
	}
	entry := e.overlays[index]
	e.mu.Unlock()
	return entry.ops.Write(offset, width, value)
}
