package pcihost

import (
	"testing"

	"github.com/tinyrange/rfvd/internal/hvapi"
)

func noopOps() hvapi.RegionOps {
	return hvapi.RegionOps{
		Read:  func(offset uint64, width int) (uint64, error) { return 0, nil },
		Write: func(offset uint64, width int, value uint64) error { return nil },
	}
}

func TestRegisterBARRejectsKindMismatch(t *testing.T) {
	e := NewEndpoint(1<<16, false)
	region, err := e.RegisterIORegion("bar0", 0x100, hvapi.KindMMIO, noopOps())
	if err != nil {
		t.Fatalf("register region: %v", err)
	}
	if err := e.RegisterBAR(0, hvapi.KindPIO, region); err == nil {
		t.Fatalf("expected a kind mismatch error")
	}
}

func TestRegisterBARRejectsOutOfRangeIndex(t *testing.T) {
	e := NewEndpoint(1<<16, false)
	region, _ := e.RegisterIORegion("bar0", 0x100, hvapi.KindMMIO, noopOps())
	if err := e.RegisterBAR(6, hvapi.KindMMIO, region); err == nil {
		t.Fatalf("expected an out-of-range error for BAR index 6")
	}
}

func TestAddOverlayRejectsOverlap(t *testing.T) {
	e := NewEndpoint(1<<32, false)
	if _, err := e.AddOverlay(0x1000, 0x1000, hvapi.MaxPriority, noopOps()); err != nil {
		t.Fatalf("first overlay: %v", err)
	}
	if _, err := e.AddOverlay(0x1800, 0x1000, hvapi.MaxPriority, noopOps()); err == nil {
		t.Fatalf("expected an overlap error for a region starting mid-way through the first")
	}
	if _, err := e.AddOverlay(0x2000, 0x1000, hvapi.MaxPriority, noopOps()); err != nil {
		t.Fatalf("adjacent, non-overlapping overlay should succeed: %v", err)
	}
}

func TestMSINotifyRequiresInit(t *testing.T) {
	e := NewEndpoint(1<<16, false)
	if err := e.MSINotify(0); err == nil {
		t.Fatalf("expected an error notifying before MSIInit")
	}
	if err := e.MSIInit(0xd0, 1, true, false); err != nil {
		t.Fatalf("msi init: %v", err)
	}
	if err := e.MSINotify(0); err != nil {
		t.Fatalf("notify after init: %v", err)
	}
	if err := e.MSINotify(1); err == nil {
		t.Fatalf("expected an error notifying an out-of-range vector")
	}
	if got := e.MSINotifications(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected exactly one notification of vector 0, got %v", got)
	}
}

func TestPCIeEndpointCapInitRequiresPCIeBus(t *testing.T) {
	legacy := NewEndpoint(1<<16, false)
	if err := legacy.PCIeEndpointCapInit(0x80); err == nil {
		t.Fatalf("expected an error on a non-PCIe bus")
	}
	pcie := NewEndpoint(1<<16, true)
	if err := pcie.PCIeEndpointCapInit(0x80); err != nil {
		t.Fatalf("pcie cap init: %v", err)
	}
}

func TestDMAReadWriteOutOfGuestMemoryRange(t *testing.T) {
	e := NewEndpoint(0x100, false)
	if err := e.DMARead(0xF0, make([]byte, 0x20)); err == nil {
		t.Fatalf("expected an out-of-range error")
	}
	if err := e.DMAWrite(0xF0, make([]byte, 0x20)); err == nil {
		t.Fatalf("expected an out-of-range error")
	}
	// Both attempts are still logged even though they failed.
	if len(e.DMAReadLog()) != 1 || len(e.DMAWriteLog()) != 1 {
		t.Fatalf("expected failed DMA calls to still be logged")
	}
}
