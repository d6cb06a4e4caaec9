package program

import (
	"github.com/openjtaghal/jtaghal/internal/bitio"
	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/device"
)

// Xilinx USER1/USER2 BSCAN instructions, the standard path a bounce
// bitstream exposes its relay protocol on.
const (
	irUser1 = 0x02
	irUser2 = 0x03
)

// Bounce flash relay opcodes, matching §4.3's "command byte + address +
// length, followed by data" framing.
const (
	flashOpSectorErase byte = 0x01
	flashOpPageProgram byte = 0x02
	flashOpReadBack    byte = 0x03
)

// flashHost is the subset of a driver this package needs to both load a
// bounce bitstream (Programmable, via the FPGA interface) and shift raw
// IR/DR sequences once the bounce firmware is running (Device).
type flashHost interface {
	device.Device
	device.FPGA
}

// BounceFlash drives an off-chip SPI/BPI flash through a loaded bounce
// bitstream's USER1 relay protocol, per §4.3's indirect programming
// description. The caller is responsible for loading the bounce
// bitstream first (via Bitstream) before issuing flash operations.
type BounceFlash struct {
	fpga flashHost
}

// NewBounceFlash wraps an FPGA driver already configured with a bounce
// bitstream.
func NewBounceFlash(fpga flashHost) *BounceFlash {
	return &BounceFlash{fpga: fpga}
}

func (b *BounceFlash) relay(op byte, addr uint32, data []byte) ([]byte, error) {
	if err := b.fpga.SetIR(bitio.Uint32ToBits(irUser1, 6)); err != nil {
		return nil, err
	}

	header := make([]bool, 0, 8+24+16)
	header = append(header, bitio.Uint32ToBits(uint32(op), 8)...)
	header = append(header, bitio.Uint32ToBits(addr, 24)...)
	header = append(header, bitio.Uint32ToBits(uint32(len(data)), 16)...)

	payload := bitio.BytesToBools(data, len(data)*8)
	tx := append(header, payload...)

	rx, err := b.fpga.ScanDR(tx)
	if err != nil {
		return nil, err
	}
	// The relay echoes status+data after the header it was shifted,
	// matching a typical bounce firmware's half-duplex turnaround.
	if len(rx) < len(header) {
		return nil, jtagerr.New(jtagerr.Framing, "program: bounce flash relay returned short response")
	}
	return bitio.BoolsToBytes(rx[len(header):]), nil
}

// SectorErase issues a sector-erase command at addr through the bounce
// firmware.
func (b *BounceFlash) SectorErase(addr uint32) error {
	_, err := b.relay(flashOpSectorErase, addr, nil)
	return err
}

// PageProgram writes data to addr through the bounce firmware. Callers
// are responsible for page alignment; the relay protocol itself does not
// enforce it.
func (b *BounceFlash) PageProgram(addr uint32, data []byte) error {
	_, err := b.relay(flashOpPageProgram, addr, data)
	return err
}

// ReadBack reads n bytes starting at addr through the bounce firmware,
// the verification step the indirect flow uses before reconfiguring.
func (b *BounceFlash) ReadBack(addr uint32, n int) ([]byte, error) {
	resp, err := b.relay(flashOpReadBack, addr, make([]byte, n))
	if err != nil {
		return nil, err
	}
	if len(resp) < n {
		return nil, jtagerr.New(jtagerr.Framing, "program: bounce flash read-back returned %d bytes, want %d", len(resp), n)
	}
	return resp[:n], nil
}

// Reconfigure commands the FPGA to reboot from the just-written flash by
// re-entering BYPASS through USER2's JSTART-equivalent handshake, the
// step the indirect flow skips when --noreboot is requested by the
// caller (left to cmd/jtagclient's flag handling, not this package).
func (b *BounceFlash) Reconfigure() error {
	return b.fpga.SetIR(bitio.Uint32ToBits(irUser2, 6))
}
