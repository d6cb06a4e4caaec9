package device

import (
	"fmt"

	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
)

// OpaqueDevice is the fallback for any IDCODE whose manufacturer the
// catalog does not recognize. It supports raw IR/DR shifting only; an
// unrecognized chip is not a fault, so Create never returns an error for
// this case.
type OpaqueDevice struct {
	baseDevice
}

// defaultOpaqueIRLength is used when a device's real IR length cannot be
// inferred from IDCODE alone; callers that need an exact length should
// shift the device-specific length they already know out-of-band.
const defaultOpaqueIRLength = 1

func newOpaqueDevice(idc idcode.IDCode, pos int, c *chain.Chain) *OpaqueDevice {
	m, _ := idcode.LookupManufacturer(idc.ManufacturerCode)
	return &OpaqueDevice{baseDevice{
		base: Base{
			IDCode:      idc.Raw,
			Position:    pos,
			IRLength:    defaultOpaqueIRLength,
			Description: fmt.Sprintf("unrecognized device (mfg %s, part 0x%04X)", m.Abbreviation, idc.PartNumber),
		},
		c: c,
	}}
}
