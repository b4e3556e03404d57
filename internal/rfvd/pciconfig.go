package rfvd

// Standard PCI configuration space byte offsets the realize step writes
// directly, for fields hvapi.Host has no dedicated setter for.
const (
	configOffsetStatusLow        = 0x06
	configOffsetStatusHigh       = 0x07
	configOffsetCacheLineSize    = 0x0c
	configOffsetCapabilitiesPtr  = 0x34
	configOffsetInterruptLine    = 0x3c
)

const (
	statusFastBackLow      = 0x80 // STATUS bit 7: Fast Back-to-Back Capable
	statusDevselMediumHigh = 0x02 // STATUS bit 9: DEVSEL timing = medium

	cacheLineSizeDwords = 8
	interruptLineNone   = 0xff

	capabilitiesPtrPCIe = 0x80
	capabilitiesPtrNone = 0x00

	msiCapOffset  = 0xd0
	msiVectors    = 1
	pcieCapOffset = 0x80

	interruptPinA      = 1
	interruptLineFixed = 0x01
)

// Cause bits of the backend's interrupt-status word.
const (
	irqCauseGeneral uint32 = 1
	irqCauseDMA     uint32 = 2
)
