package device

import (
	"fmt"

	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
)

// microchipPIC32 is a minimal stub for Microchip PIC32 parts: the catalog
// recognizes the manufacturer ID and IDCODE layout, but PIC32's ICSP-style
// NVM programming sequence (distinct from straight JTAG shifting) is not
// implemented here.
type microchipPIC32 struct {
	baseDevice
}

func newMicrochipPIC32(idc idcode.IDCode, pos int, c *chain.Chain) *microchipPIC32 {
	return &microchipPIC32{baseDevice{
		base: Base{
			IDCode:      idc.Raw,
			Position:    pos,
			IRLength:    5,
			Description: fmt.Sprintf("Microchip PIC32 (part 0x%04X)", idc.PartNumber),
		},
		c: c,
	}}
}

func (m *microchipPIC32) Program([]byte) error {
	return jtagerr.New(jtagerr.Unimplemented, "microchip: PIC32 NVM programming sequence not implemented")
}

func (m *microchipPIC32) Erase() error {
	return jtagerr.New(jtagerr.Unimplemented, "microchip: PIC32 NVM erase sequence not implemented")
}

func (m *microchipPIC32) IsProgrammed() (bool, error) {
	return false, jtagerr.New(jtagerr.Unimplemented, "microchip: PIC32 NVM readback not implemented")
}
