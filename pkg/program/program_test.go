package program

import (
	"errors"
	"testing"

	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/bitfile"
	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/device"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
	"github.com/openjtaghal/jtaghal/pkg/jed"
)

func coolRunnerIDCode() uint32 {
	// Family byte 0x36 selects XilinxFamilyCoolRunner2A per pkg/idcode's
	// family table; part number composition mirrors pkg/device's own
	// xilinxIDCode test helper.
	const family = 0x36
	partNumber := uint32(family)
	return (partNumber << 12) | (uint32(idcode.XilinxManufacturer) << 1) | 1
}

func chainWith(t *testing.T, raw uint32, irLength int) *chain.Chain {
	t.Helper()
	sim := adapter.NewSimChain(adapter.Info{Name: "sim"}, []adapter.SimDevice{
		{IDCode: raw, HasIDCode: true, IRLength: irLength},
	})
	c, err := chain.InitializeChain(sim)
	if err != nil {
		t.Fatalf("InitializeChain: %v", err)
	}
	return c
}

// TestJEDFusesEndToEnd parses a JED file and drives its fuse vector
// through a simulated CPLD, satisfying SPEC_FULL.md's CPLD round-trip
// scenario: the device sees exactly fuse_count data bits across the
// L-row shifts Program issues.
func TestJEDFusesEndToEnd(t *testing.T) {
	fuses := make([]byte, 24)
	for i := range fuses {
		if i%2 == 0 {
			fuses[i] = 1
		}
	}
	src := &jed.File{FuseCount: len(fuses), PinCount: 44, DeviceName: "XC2C64A", Fuses: fuses}
	data, err := jed.Emit(src)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	raw := coolRunnerIDCode()
	c := chainWith(t, raw, 8)
	d := device.Create(raw, 0, c)
	prog, ok := d.(device.Programmable)
	if !ok {
		t.Fatalf("Create() = %T, want Programmable", d)
	}

	f, err := JEDFuses(prog, data)
	if err != nil {
		t.Fatalf("JEDFuses: %v", err)
	}
	if f.FuseCount != len(fuses) {
		t.Errorf("FuseCount = %d, want %d", f.FuseCount, len(fuses))
	}
}

func TestBitstreamUnwrapsAndPrograms(t *testing.T) {
	bf := &bitfile.File{
		DesignName: "top",
		PartName:   "xc6slx9",
		Date:       "2026/08/01",
		Time:       "00:00:00",
		Payload:    []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
	data, err := bitfile.Emit(bf)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	var captured []byte
	prog := fakeProgrammable{programFn: func(b []byte) error {
		captured = b
		return nil
	}}

	f, err := Bitstream(prog, data)
	if err != nil {
		t.Fatalf("Bitstream: %v", err)
	}
	if f.DesignName != "top" {
		t.Errorf("DesignName = %q, want %q", f.DesignName, "top")
	}
	if len(captured) != len(bf.Payload) {
		t.Errorf("Program saw %d bytes, want %d", len(captured), len(bf.Payload))
	}
}

type fakeProgrammable struct {
	programFn   func([]byte) error
	programmed  bool
}

func (f fakeProgrammable) Program(b []byte) error { return f.programFn(b) }
func (f fakeProgrammable) Erase() error           { return nil }
func (f fakeProgrammable) IsProgrammed() (bool, error) {
	return f.programmed, nil
}

func TestVerifyReportsBoardFaultWhenNotProgrammed(t *testing.T) {
	err := Verify(fakeProgrammable{programmed: false})
	if !errors.Is(err, jtagerr.ErrBoardFault) {
		t.Fatalf("Verify = %v for an unprogrammed device, want BoardFault", err)
	}
}
