package backend

// API is the subset of Backend the device core depends on. internal/rfvd
// takes an API rather than a concrete *Backend so tests can supply an
// in-memory fake instead of dlopen-ing a real shared object.
type API interface {
	Identity() Identity

	BARCount() (int, error)
	BARSize(i int) (uint64, error)
	BARKind(i int) (PCIKind, error)
	MSIXBarIndex() (int, error)

	MemCount() (int, error)
	MemBase(m int) (uint64, error)
	MemSize(m int) (uint64, error)
	MemRead(m int, offset uint64, width int) (uint64, error)
	MemWrite(m int, offset uint64, width int, value uint64) error

	PCIRead(bar int, offset uint64, width int) (uint64, error)
	PCIWrite(bar int, offset uint64, width int, value uint64) error

	IRQStatus() uint32
	IRQLower(mask uint32) uint32

	DMASnapshot() (DMADescriptor, error)
	DMAStagingBuffer(cnt uint64) ([]byte, error)
}

var _ API = (*Backend)(nil)
