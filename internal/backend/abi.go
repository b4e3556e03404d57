package backend

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Bound ABI entry points. Names and signatures mirror the backend's C
// header exactly (size_t pd is carried as uintptr; negative return values
// are the sentinel error codes translated by errFor).
var (
	cInitLogger func() int32
	cLoad       func(path uintptr) int32
	cFree       func(pd uintptr) int32

	cGetClassID func(pd uintptr) int32
	cGetVid     func(pd uintptr) int32
	cGetPid     func(pd uintptr) int32
	cGetSubvid  func(pd uintptr) int32
	cGetSubpid  func(pd uintptr) int32
	cGetRevison func(pd uintptr) int32

	cGetRomfile func(pd uintptr, outStr uintptr, outLen uintptr) int32
	cGetName    func(pd uintptr, outStr uintptr, outLen uintptr) int32
	cGetDesc    func(pd uintptr, outStr uintptr, outLen uintptr) int32

	cGetIrqStatus func(pd uintptr) uint32
	cLowerIrqHw   func(pd uintptr, irqStatus uint32) uint32

	cGetDmaStart func(pd uintptr) int64
	cGetDmaSize  func(pd uintptr) int64
	cGetDmaMask  func(pd uintptr) int64
	cGetDmaSrc   func(pd uintptr) int64
	cGetDmaDst   func(pd uintptr) int64
	cGetDmaCnt   func(pd uintptr) int64
	cGetDmaCmd   func(pd uintptr) int64
	cGetDmaBuf   func(pd uintptr, outBuf uintptr, outLen uintptr) int64

	cGetMemsNum  func(pd uintptr) int32
	cGetMemsBase func(pd uintptr, mmd uintptr) int64
	cGetMemsSize func(pd uintptr, mmd uintptr) int64
	cMemsRead    func(pd uintptr, addr uintptr, mmd uintptr, size uintptr, outData uintptr) int32
	cMemsWrite   func(pd uintptr, addr uintptr, mmd uintptr, size uintptr, inData uintptr) int32

	cPciRead          func(pd uintptr, addr uintptr, bar uintptr, size uintptr, outData uintptr) int32
	cPciWrite         func(pd uintptr, addr uintptr, bar uintptr, valData uintptr, valLen uintptr) int32
	cPciGetBarNum     func(pd uintptr) int32
	cPciGetBarSize    func(pd uintptr, bar uintptr) int32
	cPciGetBarType    func(pd uintptr, bar uintptr) int32
	cPciGetMsixBarIdx func(pd uintptr) int32
)

// bindAll resolves every ABI symbol against an already-dlopen'd library
// handle using purego.RegisterLibFunc.
func bindAll(lib uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend: binding ABI symbol: %v", r)
		}
	}()

	purego.RegisterLibFunc(&cInitLogger, lib, "rfvd_init_logger")
	purego.RegisterLibFunc(&cLoad, lib, "rfvd_load")
	purego.RegisterLibFunc(&cFree, lib, "rfvd_free")

	purego.RegisterLibFunc(&cGetClassID, lib, "rfvd_get_class_id")
	purego.RegisterLibFunc(&cGetVid, lib, "rfvd_get_vid")
	purego.RegisterLibFunc(&cGetPid, lib, "rfvd_get_pid")
	purego.RegisterLibFunc(&cGetSubvid, lib, "rfvd_get_subvid")
	purego.RegisterLibFunc(&cGetSubpid, lib, "rfvd_get_subpid")
	purego.RegisterLibFunc(&cGetRevison, lib, "rfvd_get_revison")

	purego.RegisterLibFunc(&cGetRomfile, lib, "rfvd_get_romfile")
	purego.RegisterLibFunc(&cGetName, lib, "rfvd_get_name")
	purego.RegisterLibFunc(&cGetDesc, lib, "rfvd_get_desc")

	purego.RegisterLibFunc(&cGetIrqStatus, lib, "rfvd_get_irq_status")
	purego.RegisterLibFunc(&cLowerIrqHw, lib, "rfvd_lower_irq_hw")

	purego.RegisterLibFunc(&cGetDmaStart, lib, "rfvd_get_dma_start")
	purego.RegisterLibFunc(&cGetDmaSize, lib, "rfvd_get_dma_size")
	purego.RegisterLibFunc(&cGetDmaMask, lib, "rfvd_get_dma_mask")
	purego.RegisterLibFunc(&cGetDmaSrc, lib, "rfvd_get_dma_src")
	purego.RegisterLibFunc(&cGetDmaDst, lib, "rfvd_get_dma_dst")
	purego.RegisterLibFunc(&cGetDmaCnt, lib, "rfvd_get_dma_cnt")
	purego.RegisterLibFunc(&cGetDmaCmd, lib, "rfvd_get_dma_cmd")
	purego.RegisterLibFunc(&cGetDmaBuf, lib, "rfvd_get_dma_buf")

	purego.RegisterLibFunc(&cGetMemsNum, lib, "rfvd_get_mems_num")
	purego.RegisterLibFunc(&cGetMemsBase, lib, "rfvd_get_mems_base")
	purego.RegisterLibFunc(&cGetMemsSize, lib, "rfvd_get_mems_size")
	purego.RegisterLibFunc(&cMemsRead, lib, "rfvd_mems_read")
	purego.RegisterLibFunc(&cMemsWrite, lib, "rfvd_mems_write")

	purego.RegisterLibFunc(&cPciRead, lib, "rfvd_pci_read")
	purego.RegisterLibFunc(&cPciWrite, lib, "rfvd_pci_write")
	purego.RegisterLibFunc(&cPciGetBarNum, lib, "rfvd_pci_get_bar_num")
	purego.RegisterLibFunc(&cPciGetBarSize, lib, "rfvd_pci_get_bar_size")
	purego.RegisterLibFunc(&cPciGetBarType, lib, "rfvd_pci_get_bar_type")
	purego.RegisterLibFunc(&cPciGetMsixBarIdx, lib, "rfvd_pci_get_msix_bar_idx")

	return nil
}
