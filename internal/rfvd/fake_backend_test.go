package rfvd

import (
	"sync"

	"github.com/tinyrange/rfvd/internal/backend"
)

// fakeBackend is an in-memory stand-in for backend.API: it records calls
// and lets a test script the backend's register state directly.
type fakeBackend struct {
	mu sync.Mutex

	identity backend.Identity

	barCount int
	barSizes [6]uint64
	barKinds [6]backend.PCIKind

	memBases []uint64
	memSizes []uint64
	memData  map[int]map[uint64]uint64

	pciData map[int]map[uint64]uint64
	pciErr  map[int]error

	irqStatus uint32

	dma        backend.DMADescriptor
	dmaErr     error
	dmaStaging []byte

	pciReads  []pciAccess
	pciWrites []pciAccess
}

type pciAccess struct {
	bar    int
	offset uint64
	width  int
	value  uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		memData: make(map[int]map[uint64]uint64),
		pciData: make(map[int]map[uint64]uint64),
		pciErr:  make(map[int]error),
	}
}

var _ backend.API = (*fakeBackend)(nil)

func (f *fakeBackend) Identity() backend.Identity { return f.identity }

func (f *fakeBackend) BARCount() (int, error) { return f.barCount, nil }

func (f *fakeBackend) BARSize(i int) (uint64, error) { return f.barSizes[i], nil }

func (f *fakeBackend) BARKind(i int) (backend.PCIKind, error) { return f.barKinds[i], nil }

func (f *fakeBackend) MSIXBarIndex() (int, error) { return 0, backend.ErrAttrNotSet }

func (f *fakeBackend) MemCount() (int, error) { return len(f.memBases), nil }

func (f *fakeBackend) MemBase(m int) (uint64, error) { return f.memBases[m], nil }

func (f *fakeBackend) MemSize(m int) (uint64, error) { return f.memSizes[m], nil }

func (f *fakeBackend) MemRead(m int, offset uint64, width int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memData[m][offset], nil
}

func (f *fakeBackend) MemWrite(m int, offset uint64, width int, value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memData[m] == nil {
		f.memData[m] = make(map[uint64]uint64)
	}
	f.memData[m][offset] = value
	return nil
}

func (f *fakeBackend) PCIRead(bar int, offset uint64, width int) (uint64, error) {
	f.mu.Lock()
	f.pciReads = append(f.pciReads, pciAccess{bar: bar, offset: offset, width: width})
	err := f.pciErr[bar]
	v := f.pciData[bar][offset]
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (f *fakeBackend) PCIWrite(bar int, offset uint64, width int, value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pciWrites = append(f.pciWrites, pciAccess{bar: bar, offset: offset, width: width, value: value})
	if err := f.pciErr[bar]; err != nil {
		return err
	}
	if f.pciData[bar] == nil {
		f.pciData[bar] = make(map[uint64]uint64)
	}
	f.pciData[bar][offset] = value
	return nil
}

func (f *fakeBackend) IRQStatus() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.irqStatus
}

func (f *fakeBackend) IRQLower(mask uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.irqStatus &^= mask
	return f.irqStatus
}

func (f *fakeBackend) DMASnapshot() (backend.DMADescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dma, f.dmaErr
}

func (f *fakeBackend) DMAStagingBuffer(cnt uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, cnt)
	copy(buf, f.dmaStaging)
	return buf, nil
}
