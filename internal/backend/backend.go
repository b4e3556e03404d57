// Package backend is the typed shim over the out-of-process device
// description backend: it dlopen's the backend's shared object with
// purego, binds every ABI entry point, and converts the backend's
// negative-sentinel return convention into (value, error).
//
// The backend handle is process-wide singleton state, grounded in the
// original ABI's own contract ("created before any device realizes, never
// freed during individual device teardown") — Open always returns the same
// *Backend once one has been successfully opened.
package backend

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// MaxROMFileLen is the ceiling the original backend enforces on a romfile
// path's reported length; a backend reporting a length at or past this is a
// misconfiguration, not a value to silently truncate.
const MaxROMFileLen = 4096

const (
	barKindPIO  = 0
	barKindMMIO = 1
)

// PCIKind mirrors the backend's bar_kind() encoding.
type PCIKind int32

const (
	KindPIO  PCIKind = barKindPIO
	KindMMIO PCIKind = barKindMMIO
)

// Identity is the set of fields probed once, eagerly, at Open — the same
// fields the original's class_init re-fetched purely to fail fast before
// any instance realized.
type Identity struct {
	ClassID int32
	VID     uint16
	PID     uint16
	SubVID  uint16
	SubPID  uint16
	Revision uint8

	Name string // "" if AttrNotSet
	Desc string // "" if AttrNotSet
	ROM  string // "" if AttrNotSet
}

// Backend is a bound handle to the device description backend.
type Backend struct {
	handle uintptr // the `pd` descriptor from rfvd_load
	lib    uintptr

	identity Identity
}

var (
	openOnce sync.Once
	instance *Backend
	openErr  error
)

// Open resolves the backend library, loads the device description at
// descPath, probes identity, and returns the process-wide singleton
// Backend. Subsequent calls, regardless of arguments, return the same
// instance (or the same error) — there is no free path; the process owns
// the handle for its lifetime.
func Open(libPath, descPath string) (*Backend, error) {
	openOnce.Do(func() {
		instance, openErr = open(libPath, descPath)
	})
	return instance, openErr
}

func open(libPath, descPath string) (*Backend, error) {
	lib, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("backend: dlopen %s: %w", libPath, err)
	}
	if err := bindAll(lib); err != nil {
		return nil, err
	}

	if rc := cInitLogger(); rc < 0 {
		return nil, errFor("rfvd_init_logger", int64(rc))
	}

	pathBytes := cString(descPath)
	rc := cLoad(uintptr(unsafe.Pointer(&pathBytes[0])))
	if rc < 0 {
		return nil, errFor("rfvd_load", int64(rc))
	}

	b := &Backend{handle: uintptr(rc), lib: lib}
	if err := b.probeIdentity(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) probeIdentity() error {
	classID := cGetClassID(b.handle)
	if classID < 0 {
		return errFor("rfvd_get_class_id", int64(classID))
	}
	vid := cGetVid(b.handle)
	if vid < 0 {
		return errFor("rfvd_get_vid", int64(vid))
	}
	pid := cGetPid(b.handle)
	if pid < 0 {
		return errFor("rfvd_get_pid", int64(pid))
	}
	subvid := cGetSubvid(b.handle)
	if subvid < 0 {
		return errFor("rfvd_get_subvid", int64(subvid))
	}
	subpid := cGetSubpid(b.handle)
	if subpid < 0 {
		return errFor("rfvd_get_subpid", int64(subpid))
	}
	revision := cGetRevison(b.handle)
	if revision < 0 {
		return errFor("rfvd_get_revison", int64(revision))
	}

	name, err := b.readOptionalString("rfvd_get_name", cGetName, 256)
	if err != nil {
		return err
	}
	desc, err := b.readOptionalString("rfvd_get_desc", cGetDesc, 256)
	if err != nil {
		return err
	}
	rom, err := b.readOptionalString("rfvd_get_romfile", cGetRomfile, MaxROMFileLen)
	if err != nil {
		return err
	}
	if len(rom) >= MaxROMFileLen {
		return fmt.Errorf("backend: romfile length reached the %d-byte ceiling", MaxROMFileLen)
	}

	b.identity = Identity{
		ClassID:  classID,
		VID:      uint16(vid),
		PID:      uint16(pid),
		SubVID:   uint16(subvid),
		SubPID:   uint16(subpid),
		Revision: uint8(revision),
		Name:     name,
		Desc:     desc,
		ROM:      rom,
	}
	return nil
}

// Identity returns the identity fields cached at Open.
func (b *Backend) Identity() Identity {
	return b.identity
}

func (b *Backend) readOptionalString(op string, fn func(pd, outStr, outLen uintptr) int32, maxLen int) (string, error) {
	buf := make([]byte, maxLen)
	outLen := uint64(maxLen)
	rc := fn(b.handle, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&outLen)))
	if rc < 0 {
		if Code(rc) == CodeAttrNotSet {
			return "", nil
		}
		return "", errFor(op, int64(rc))
	}
	if outLen > uint64(maxLen) {
		outLen = uint64(maxLen)
	}
	return string(buf[:outLen]), nil
}

// BARCount reports how many of the 6 BAR slots the backend populates.
func (b *Backend) BARCount() (int, error) {
	rc := cPciGetBarNum(b.handle)
	if rc < 0 {
		return 0, errFor("rfvd_pci_get_bar_num", int64(rc))
	}
	return int(rc), nil
}

// BARSize reports the size in bytes of BAR i, or 0 if the slot is unused.
func (b *Backend) BARSize(i int) (uint64, error) {
	rc := cPciGetBarSize(b.handle, uintptr(i))
	if rc < 0 {
		return 0, errFor("rfvd_pci_get_bar_size", int64(rc))
	}
	return uint64(rc), nil
}

// BARKind reports whether BAR i is port I/O or memory-mapped.
func (b *Backend) BARKind(i int) (PCIKind, error) {
	rc := cPciGetBarType(b.handle, uintptr(i))
	if rc < 0 {
		return 0, errFor("rfvd_pci_get_bar_type", int64(rc))
	}
	return PCIKind(rc), nil
}

// MSIXBarIndex reports the optional MSI-X BAR index; absence is reported
// via ErrAttrNotSet.
func (b *Backend) MSIXBarIndex() (int, error) {
	rc := cPciGetMsixBarIdx(b.handle)
	if rc < 0 {
		return 0, errFor("rfvd_pci_get_msix_bar_idx", int64(rc))
	}
	return int(rc), nil
}

// MemCount reports the number of overlay memory regions the backend
// declares.
func (b *Backend) MemCount() (int, error) {
	rc := cGetMemsNum(b.handle)
	if rc < 0 {
		return 0, errFor("rfvd_get_mems_num", int64(rc))
	}
	return int(rc), nil
}

// MemBase reports overlay memory m's base system address.
func (b *Backend) MemBase(m int) (uint64, error) {
	rc := cGetMemsBase(b.handle, uintptr(m))
	if rc < 0 {
		return 0, errFor("rfvd_get_mems_base", rc)
	}
	return uint64(rc), nil
}

// MemSize reports overlay memory m's size in bytes.
func (b *Backend) MemSize(m int) (uint64, error) {
	rc := cGetMemsSize(b.handle, uintptr(m))
	if rc < 0 {
		return 0, errFor("rfvd_get_mems_size", rc)
	}
	return uint64(rc), nil
}

// MemRead forwards a guest read of overlay memory m at offset/width to the
// backend.
func (b *Backend) MemRead(m int, offset uint64, width int) (uint64, error) {
	var out uint64
	rc := cMemsRead(b.handle, uintptr(offset), uintptr(m), uintptr(width), uintptr(unsafe.Pointer(&out)))
	if rc < 0 {
		return 0, errFor("rfvd_mems_read", int64(rc))
	}
	return out, nil
}

// MemWrite forwards a guest write of overlay memory m at offset/width to
// the backend.
func (b *Backend) MemWrite(m int, offset uint64, width int, value uint64) error {
	rc := cMemsWrite(b.handle, uintptr(offset), uintptr(m), uintptr(width), uintptr(unsafe.Pointer(&value)))
	if rc < 0 {
		return errFor("rfvd_mems_write", int64(rc))
	}
	return nil
}

// PCIRead forwards a guest read of BAR bar at offset/width to the backend.
func (b *Backend) PCIRead(bar int, offset uint64, width int) (uint64, error) {
	var out uint64
	rc := cPciRead(b.handle, uintptr(offset), uintptr(bar), uintptr(width), uintptr(unsafe.Pointer(&out)))
	if rc < 0 {
		return 0, errFor("rfvd_pci_read", int64(rc))
	}
	return out, nil
}

// PCIWrite forwards a guest write of BAR bar at offset/width to the
// backend.
func (b *Backend) PCIWrite(bar int, offset uint64, width int, value uint64) error {
	rc := cPciWrite(b.handle, uintptr(offset), uintptr(bar), uintptr(unsafe.Pointer(&value)), uintptr(width))
	if rc < 0 {
		return errFor("rfvd_pci_write", int64(rc))
	}
	return nil
}

// IRQStatus reads the backend's interrupt-status word. Side-effect-free.
func (b *Backend) IRQStatus() uint32 {
	return cGetIrqStatus(b.handle)
}

// IRQLower clears exactly the bits in mask and returns the resulting
// status word.
func (b *Backend) IRQLower(mask uint32) uint32 {
	return cLowerIrqHw(b.handle, mask)
}

// DMADescriptor is a snapshot of the backend's DMA register block.
type DMADescriptor struct {
	Start uint64
	Size  uint64
	Mask  uint64
	Src   uint64
	Dst   uint64
	Cnt   uint64
	Cmd   uint64
}

// DMASnapshot reads the full DMA descriptor in one pass. cmd is read via
// its own dedicated call, never via cnt.
func (b *Backend) DMASnapshot() (DMADescriptor, error) {
	start := cGetDmaStart(b.handle)
	if start < 0 {
		return DMADescriptor{}, errFor("rfvd_get_dma_start", start)
	}
	size := cGetDmaSize(b.handle)
	if size < 0 {
		return DMADescriptor{}, errFor("rfvd_get_dma_size", size)
	}
	mask := cGetDmaMask(b.handle)
	if mask < 0 {
		return DMADescriptor{}, errFor("rfvd_get_dma_mask", mask)
	}
	src := cGetDmaSrc(b.handle)
	if src < 0 {
		return DMADescriptor{}, errFor("rfvd_get_dma_src", src)
	}
	dst := cGetDmaDst(b.handle)
	if dst < 0 {
		return DMADescriptor{}, errFor("rfvd_get_dma_dst", dst)
	}
	cnt := cGetDmaCnt(b.handle)
	if cnt < 0 {
		return DMADescriptor{}, errFor("rfvd_get_dma_cnt", cnt)
	}
	cmd := cGetDmaCmd(b.handle)
	if cmd < 0 {
		return DMADescriptor{}, errFor("rfvd_get_dma_cmd", cmd)
	}
	return DMADescriptor{
		Start: uint64(start),
		Size:  uint64(size),
		Mask:  uint64(mask),
		Src:   uint64(src),
		Dst:   uint64(dst),
		Cnt:   uint64(cnt),
		Cmd:   uint64(cmd),
	}, nil
}

// DMAStagingBuffer reads up to cnt bytes of the backend-held staging
// buffer that mirrors the device side of a DMA transfer.
func (b *Backend) DMAStagingBuffer(cnt uint64) ([]byte, error) {
	buf := make([]byte, cnt)
	outLen := cnt
	if len(buf) == 0 {
		return buf, nil
	}
	rc := cGetDmaBuf(b.handle, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&outLen)))
	if rc < 0 {
		return nil, errFor("rfvd_get_dma_buf", rc)
	}
	if outLen > cnt {
		outLen = cnt
	}
	return buf[:outLen], nil
}

func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
