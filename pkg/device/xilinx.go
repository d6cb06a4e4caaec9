package device

import (
	"fmt"

	"github.com/openjtaghal/jtaghal/internal/bitio"
	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
)

// Xilinx Spartan-6/7-series configuration instructions, carried in IR.
// Values match the public Xilinx JTAG configuration user guide and the
// constants the driver's idle-clock bursts are sequenced around.
const (
	irCFGIn     = 0x05
	irCFGOut    = 0x04
	irJSTART    = 0x0C
	irISCEnable = 0x10
	irISCProgram = 0x11
	irBypass    = 0x3F
)

// doneBit is the position of the DONE status bit within a CFG_OUT read,
// matching the Xilinx configuration status register layout.
const doneBit = 1 << 8

// xilinxFPGA drives Spartan-6/7-series-style FPGA configuration. CoolRunner-II
// (a CPLD, not an FPGA) gets its own driver in coolrunner.go.
type xilinxFPGA struct {
	baseDevice
	family uint8
}

func newXilinxFPGA(idc idcode.IDCode, pos int, c *chain.Chain) *xilinxFPGA {
	return &xilinxFPGA{
		baseDevice: baseDevice{
			base: Base{
				IDCode:      idc.Raw,
				Position:    pos,
				IRLength:    6,
				Description: fmt.Sprintf("Xilinx FPGA (family 0x%02X, part 0x%04X)", idcode.XilinxFamily(idc.PartNumber), idc.PartNumber),
			},
			c: c,
		},
		family: idcode.XilinxFamily(idc.PartNumber),
	}
}

// Program loads bitstream by shifting it into CFG_IN after ISC_ENABLE,
// then commands the fabric to start via JSTART and polls CFG_OUT for DONE.
//
// Grounded on SPEC_FULL.md's Spartan-6 configuration summary: CFG_IN
// followed by ISC_ENABLE/ISC_PROGRAM/JSTART/BYPASS command words with
// idle-clock bursts between stages, status polled via CFG_OUT.
func (x *xilinxFPGA) Program(bitstream []byte) error {
	if len(bitstream) == 0 {
		return jtagerr.New(jtagerr.GIGO, "xilinx: empty bitstream")
	}

	if err := x.setCommand(irISCEnable); err != nil {
		return err
	}
	if err := x.setCommand(irISCProgram); err != nil {
		return err
	}

	if err := x.setCommand(irCFGIn); err != nil {
		return err
	}
	bits := bitio.BytesToBools(bitReverseBytes(bitstream), len(bitstream)*8)
	if _, err := x.ScanDR(bits); err != nil {
		return err
	}

	if err := x.setCommand(irJSTART); err != nil {
		return err
	}

	done, err := x.pollDone(16)
	if err != nil {
		return err
	}
	if !done {
		return jtagerr.New(jtagerr.BoardFault, "xilinx: DONE did not assert after JSTART")
	}

	return x.setCommand(irBypass)
}

func (x *xilinxFPGA) Erase() error {
	if err := x.setCommand(irISCEnable); err != nil {
		return err
	}
	return x.setCommand(irBypass)
}

func (x *xilinxFPGA) IsProgrammed() (bool, error) {
	if err := x.setCommand(irCFGOut); err != nil {
		return false, err
	}
	status, err := x.ScanDR(bitio.AllBits(32, false))
	if err != nil {
		return false, err
	}
	return bitio.BitsToUint32(status)&doneBit != 0, nil
}

func (x *xilinxFPGA) pollDone(bursts int) (bool, error) {
	for i := 0; i < bursts; i++ {
		if err := x.setCommand(irCFGOut); err != nil {
			return false, err
		}
		status, err := x.ScanDR(bitio.AllBits(32, false))
		if err != nil {
			return false, err
		}
		if bitio.BitsToUint32(status)&doneBit != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (x *xilinxFPGA) setCommand(ir uint8) error {
	return x.SetIR(bitio.Uint32ToBits(uint32(ir), x.base.IRLength))
}

func (x *xilinxFPGA) ProbeVirtualTAPs() ([]uint32, error) {
	return nil, jtagerr.New(jtagerr.Unimplemented, "xilinx: virtual TAP probing over RPC fabric not implemented")
}

func (x *xilinxFPGA) HasRPCInterface() bool { return false }

// bitReverseBytes reverses the bit order within each byte, matching the
// bit-reversed stream Xilinx bitstreams expect when shifted into CFG_IN.
func bitReverseBytes(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		var r byte
		for bit := 0; bit < 8; bit++ {
			r <<= 1
			r |= (b >> uint(bit)) & 1
		}
		out[i] = r
	}
	return out
}
