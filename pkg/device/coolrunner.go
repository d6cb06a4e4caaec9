package device

import (
	"fmt"

	"github.com/openjtaghal/jtaghal/internal/bitio"
	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
)

// CoolRunner-II ISP instructions, matching the Xilinx XC2C family JTAG
// programming specification.
const (
	irISPEn   = 0x10
	irISPEx   = 0x13
	irFerase  = 0x14
	irFProgIncr = 0x16
	irFVfy    = 0x17
)

// coolRunnerCPLD drives a CoolRunner-II CPLD's fuse programming sequence.
// Grounded on SPEC_FULL.md's "CPLD (JEDEC) programming" summary: the
// driver shifts fuse rows through the ISP instructions in address order.
// Program here takes an already-parsed fuse vector (one byte per fuse,
// 0 or 1) as produced by pkg/jed, not a raw .jed file.
type coolRunnerCPLD struct {
	baseDevice
}

func newCoolRunnerCPLD(idc idcode.IDCode, pos int, c *chain.Chain) *coolRunnerCPLD {
	return &coolRunnerCPLD{baseDevice{
		base: Base{
			IDCode:      idc.Raw,
			Position:    pos,
			IRLength:    8,
			Description: fmt.Sprintf("Xilinx CoolRunner-II CPLD (part 0x%04X)", idc.PartNumber),
		},
		c: c,
	}}
}

func (x *coolRunnerCPLD) setCommand(ir uint8) error {
	return x.SetIR(bitio.Uint32ToBits(uint32(ir), x.base.IRLength))
}

func (x *coolRunnerCPLD) Erase() error {
	if err := x.setCommand(irISPEn); err != nil {
		return err
	}
	if err := x.setCommand(irFerase); err != nil {
		return err
	}
	return x.setCommand(irISPEx)
}

// Program shifts fuses one row at a time through FPROGINCR, verifying
// each row via FVFY before advancing, in the order pkg/jed emits them.
func (x *coolRunnerCPLD) Program(fuses []byte) error {
	if len(fuses) == 0 {
		return jtagerr.New(jtagerr.GIGO, "coolrunner: empty fuse vector")
	}
	if err := x.setCommand(irISPEn); err != nil {
		return err
	}

	fuseBits := make([]bool, len(fuses))
	for i, b := range fuses {
		fuseBits[i] = b != 0
	}

	const rowWidth = 8
	for pos := 0; pos < len(fuseBits); pos += rowWidth {
		end := pos + rowWidth
		if end > len(fuseBits) {
			end = len(fuseBits)
		}
		row := fuseBits[pos:end]

		if err := x.setCommand(irFProgIncr); err != nil {
			return err
		}
		if _, err := x.ScanDR(row); err != nil {
			return err
		}
		if err := x.setCommand(irFVfy); err != nil {
			return err
		}
		verify, err := x.ScanDR(bitio.AllBits(len(row), false))
		if err != nil {
			return err
		}
		if !boolsMatch(verify, row) {
			return jtagerr.New(jtagerr.BoardFault, "coolrunner: fuse row at offset %d failed verify", pos)
		}
	}

	return x.setCommand(irISPEx)
}

func (x *coolRunnerCPLD) IsProgrammed() (bool, error) {
	return false, jtagerr.New(jtagerr.Unimplemented, "coolrunner: programmed-state readback not implemented")
}

func boolsMatch(a, b []bool) bool {
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
