package rfvd

import (
	"testing"
	"time"

	"github.com/tinyrange/rfvd/internal/backend"
	"github.com/tinyrange/rfvd/internal/hvapi"
	"github.com/tinyrange/rfvd/internal/pcihost"
)

func testConfig() Config {
	return Config{BARPrefix: "test", WatchdogInterval: time.Millisecond}
}

// scenario 1: minimal device realizes.
func TestRealizeMinimalDevice(t *testing.T) {
	fb := newFakeBackend()
	fb.identity = backend.Identity{VID: 0x1234, PID: 0x5678, Revision: 0x01, ClassID: 0x000000}
	fb.barCount = 1
	fb.barSizes[0] = 0x1000
	fb.barKinds[0] = backend.KindMMIO

	host := pcihost.NewEndpoint(1<<16, false)
	dev := New(fb, testConfig())
	if err := dev.Realize(host); err != nil {
		t.Fatalf("realize: %v", err)
	}
	defer func() {
		host.StopAllThreads()
		dev.Exit()
	}()

	if dev.bars[0] == nil {
		t.Fatalf("expected BAR 0 to be registered")
	}
	if dev.bars[0].size != 0x1000 {
		t.Fatalf("expected BAR 0 size 4096, got %d", dev.bars[0].size)
	}
	if host.ConfigByte(0x3d) != interruptPinA {
		t.Fatalf("expected legacy interrupt pin 1")
	}
}

// invariant: BAR slot present iff backend reports size > 0.
func TestRealizeSkipsZeroSizeBARs(t *testing.T) {
	fb := newFakeBackend()
	fb.barCount = 3
	fb.barSizes[0] = 0x100
	fb.barSizes[1] = 0
	fb.barSizes[2] = 0x200
	fb.barKinds[0] = backend.KindMMIO
	fb.barKinds[2] = backend.KindPIO

	host := pcihost.NewEndpoint(1<<16, false)
	dev := New(fb, testConfig())
	if err := dev.Realize(host); err != nil {
		t.Fatalf("realize: %v", err)
	}
	defer func() { host.StopAllThreads(); dev.Exit() }()

	if dev.bars[1] != nil {
		t.Fatalf("expected BAR 1 to be skipped (size 0)")
	}
	if dev.bars[0] == nil || dev.bars[2] == nil {
		t.Fatalf("expected BARs 0 and 2 to be registered")
	}
}

// scenario 2: MMIO read forwards, and backend error yields 0.
func TestMMIOReadForwards(t *testing.T) {
	fb := newFakeBackend()
	fb.barCount = 3
	fb.barSizes[2] = 0x1000
	fb.barKinds[2] = backend.KindMMIO
	if fb.pciData[2] == nil {
		fb.pciData[2] = make(map[uint64]uint64)
	}
	fb.pciData[2][0x20] = 0xDEADBEEF

	host := pcihost.NewEndpoint(1<<16, false)
	dev := New(fb, testConfig())
	if err := dev.Realize(host); err != nil {
		t.Fatalf("realize: %v", err)
	}
	defer func() { host.StopAllThreads(); dev.Exit() }()

	v, err := host.SimulateBARRead(2, 0x20, 4)
	if err != nil {
		t.Fatalf("simulate read: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Fatalf("expected 0xDEADBEEF, got %#x", v)
	}

	fb.pciErr[2] = backend.ErrAttrNotSet
	v, err = host.SimulateBARRead(2, 0x20, 4)
	if err != nil {
		t.Fatalf("simulate read after backend error: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected 0 on backend error, got %#x", v)
	}
}

// testable property: dispatch issues exactly one matching backend call.
func TestMMIOWriteForwardsExactlyOnce(t *testing.T) {
	fb := newFakeBackend()
	fb.barCount = 1
	fb.barSizes[0] = 0x100
	fb.barKinds[0] = backend.KindMMIO

	host := pcihost.NewEndpoint(1<<16, false)
	dev := New(fb, testConfig())
	if err := dev.Realize(host); err != nil {
		t.Fatalf("realize: %v", err)
	}
	defer func() { host.StopAllThreads(); dev.Exit() }()

	if err := host.SimulateBARWrite(0, 0x10, 4, 0x1122); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(fb.pciWrites) != 1 {
		t.Fatalf("expected exactly one backend write, got %d", len(fb.pciWrites))
	}
	got := fb.pciWrites[0]
	if got.bar != 0 || got.offset != 0x10 || got.width != 4 || got.value != 0x1122 {
		t.Fatalf("unexpected backend write: %+v", got)
	}
}

// scenario 3: custom memory overlay forwards with exact base/size/priority.
func TestOverlayWriteForwards(t *testing.T) {
	fb := newFakeBackend()
	fb.memBases = []uint64{0x40000000}
	fb.memSizes = []uint64{0x1000}

	host := pcihost.NewEndpoint(1<<32, false)
	dev := New(fb, testConfig())
	if err := dev.Realize(host); err != nil {
		t.Fatalf("realize: %v", err)
	}
	defer func() { host.StopAllThreads(); dev.Exit() }()

	prio, err := host.OverlayPriority(0)
	if err != nil {
		t.Fatalf("overlay priority: %v", err)
	}
	if prio != hvapi.MaxPriority {
		t.Fatalf("expected max priority, got %v", prio)
	}

	if err := host.SimulateOverlayWrite(0, 0x10, 8, 0x1122334455667788); err != nil {
		t.Fatalf("overlay write: %v", err)
	}
	if fb.memData[0][0x10] != 0x1122334455667788 {
		t.Fatalf("backend did not receive mem_write(0, 0x10, 8, ...)")
	}
}

// scenario 4: IRQ raise/lower round trip.
func TestIRQRaiseLower(t *testing.T) {
	fb := newFakeBackend()
	fb.irqStatus = irqCauseDMA
	fb.dma = backend.DMADescriptor{Start: 0, Size: 0x10, Mask: ^uint64(0), Src: 0, Dst: 0, Cnt: 0, Cmd: backend.DMARun}

	host := pcihost.NewEndpoint(1<<16, false)
	dev := New(fb, Config{BARPrefix: "irqtest", WatchdogInterval: time.Millisecond})
	if err := dev.Realize(host); err != nil {
		t.Fatalf("realize: %v", err)
	}
	defer func() { host.StopAllThreads(); dev.Exit() }()

	deadline := time.After(time.Second)
	for {
		if !host.IRQLevel() && fb.IRQStatus() == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("IRQ never lowered: status=%#x level=%v", fb.IRQStatus(), host.IRQLevel())
		case <-time.After(time.Millisecond):
		}
	}
}

// scenario 5 & round-trip: a to-PCI DMA writing staging B to the guest,
// followed by a from-PCI DMA reading the same guest range, leaves the
// guest holding B and never mutates the backend's own staging (which the
// ABI has no call to write back, matching the original's one-way buffer).
func TestDMARoundTrip(t *testing.T) {
	fb := newFakeBackend()
	payload := []byte{0xB, 0xE, 0xE, 0xF}
	fb.dmaStaging = make([]byte, 0x100)
	copy(fb.dmaStaging, payload)

	host := pcihost.NewEndpoint(1<<24, false)
	dev := New(fb, testConfig())
	if err := dev.Realize(host); err != nil {
		t.Fatalf("realize: %v", err)
	}
	defer func() { host.StopAllThreads(); dev.Exit() }()

	dst := uint64(0x1400)
	fb.dma = backend.DMADescriptor{
		Start: 0x1000, Size: 0x1000, Mask: ^uint64(0),
		Src: 0x1000, Dst: dst, Cnt: uint64(len(payload)),
		Cmd: backend.DMARun, // to-PCI: DIR bit clear
	}
	dev.dmaHandler()
	if !bytesEqual(host.GuestMemory()[dst:dst+uint64(len(payload))], payload) {
		t.Fatalf("to-PCI DMA did not land in guest memory, want %v", payload)
	}

	fb.dma = backend.DMADescriptor{
		Start: 0x1000, Size: 0x1000, Mask: ^uint64(0),
		Src: dst, Dst: 0x1400, Cnt: uint64(len(payload)),
		Cmd: backend.DMARun | backend.DMADir, // from-PCI
	}
	dev.dmaHandler()

	reads := host.DMAReadLog()
	if len(reads) != 1 {
		t.Fatalf("expected exactly one DMARead, got %d", len(reads))
	}
	if reads[0].GuestAddr != dst || reads[0].Len != len(payload) {
		t.Fatalf("unexpected DMARead call: %+v", reads[0])
	}
	if !bytesEqual(fb.dmaStaging[:len(payload)], payload) {
		t.Fatalf("backend staging changed, still want %v", payload)
	}
}

// scenario 6: a DMA outside the declared window is logged and the handler
// runs to completion without panicking.
func TestDMAOutOfRangeProceeds(t *testing.T) {
	fb := newFakeBackend()
	host := pcihost.NewEndpoint(1<<24, false)
	dev := New(fb, testConfig())
	if err := dev.Realize(host); err != nil {
		t.Fatalf("realize: %v", err)
	}
	defer func() { host.StopAllThreads(); dev.Exit() }()

	fb.dma = backend.DMADescriptor{
		Start: 0x1000, Size: 0x1000, Mask: ^uint64(0),
		Src: 0xFF000000, Dst: 0x0FFF, Cnt: 0x100,
		Cmd: backend.DMARun | backend.DMADir,
	}
	// Out of range: must not panic, and dmaHandler still runs to
	// completion. dst is below the window start, so the window-relative
	// offset underflows and fitsStaging skips the copy.
	dev.dmaHandler()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
