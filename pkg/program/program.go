// Package program orchestrates device programming on top of pkg/device's
// driver catalog: direct FPGA bitstream configuration, CPLD JED fuse
// programming, and indirect SPI/BPI flash programming via a bounce
// bitstream, per SPEC_FULL.md §4.3.
package program

import (
	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/bitfile"
	"github.com/openjtaghal/jtaghal/pkg/device"
	"github.com/openjtaghal/jtaghal/pkg/jed"
)

// Bitstream drives an FPGA's direct configuration from a parsed .bit
// file, matching §4.3's "payload is a bit-reversed stream shifted into
// CFG_IN" summary: the bit-reversal itself is xilinxFPGA.Program's job,
// this layer only unwraps the .bit container and hands the payload
// across the Programmable interface so it also works against any future
// Programmable driver that accepts a raw configuration payload.
func Bitstream(dev device.Programmable, data []byte) (*bitfile.File, error) {
	f, err := bitfile.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := dev.Program(f.Payload); err != nil {
		return nil, err
	}
	return f, nil
}

// JEDFuses drives a CPLD's ISP fuse programming from a parsed JED file.
func JEDFuses(dev device.Programmable, data []byte) (*jed.File, error) {
	f, err := jed.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := dev.Program(f.Fuses); err != nil {
		return nil, err
	}
	return f, nil
}

// Verify re-reads a Programmable device's configured state and reports
// whether it matches "programmed", the common step both the direct and
// indirect flows run after writing.
func Verify(dev device.Programmable) error {
	ok, err := dev.IsProgrammed()
	if err != nil {
		return err
	}
	if !ok {
		return jtagerr.New(jtagerr.BoardFault, "program: device did not report programmed after write")
	}
	return nil
}
