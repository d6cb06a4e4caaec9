package device

import (
	"testing"

	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/idcode"
)

func singleDeviceChain(t *testing.T, idcodeRaw uint32, irLength int) *chain.Chain {
	t.Helper()
	sim := adapter.NewSimChain(adapter.Info{Name: "sim"}, []adapter.SimDevice{
		{IDCode: idcodeRaw, HasIDCode: true, IRLength: irLength},
	})
	c, err := chain.InitializeChain(sim)
	if err != nil {
		t.Fatalf("InitializeChain: %v", err)
	}
	return c
}

func xilinxIDCode(family uint8, part uint16) uint32 {
	partNumber := (uint32(part) &^ 0xFF) | uint32(family)
	return (partNumber << 12) | (uint32(idcode.XilinxManufacturer) << 1) | 1
}

func TestCreateDispatchesXilinxSpartan6(t *testing.T) {
	raw := xilinxIDCode(idcode.XilinxFamilySpartan6, 0x3000)
	c := singleDeviceChain(t, raw, 6)
	d := Create(raw, 0, c)

	fpga, ok := d.(FPGA)
	if !ok {
		t.Fatalf("Create() = %T, want an FPGA", d)
	}
	if d.Base().IDCode != raw {
		t.Errorf("IDCode = 0x%08X, want 0x%08X", d.Base().IDCode, raw)
	}
	if fpga.HasRPCInterface() {
		t.Errorf("HasRPCInterface() = true, want false for a plain Spartan-6 part")
	}
}

func TestCreateDispatchesCoolRunnerCPLD(t *testing.T) {
	raw := xilinxIDCode(idcode.XilinxFamilyCoolRunner2A, 0x1000)
	c := singleDeviceChain(t, raw, 8)
	d := Create(raw, 0, c)

	if _, ok := d.(Programmable); !ok {
		t.Fatalf("Create() = %T, want a Programmable CoolRunner-II CPLD", d)
	}
	if _, ok := d.(FPGA); ok {
		t.Fatalf("CoolRunner-II CPLD must not satisfy FPGA")
	}
}

func TestCreateDispatchesARMDAP(t *testing.T) {
	raw := (uint32(0x1234) << 12) | (uint32(idcode.ARMManufacturer) << 1) | 1
	c := singleDeviceChain(t, raw, 4)
	d := Create(raw, 0, c)

	dbg, ok := d.(Debuggable)
	if !ok {
		t.Fatalf("Create() = %T, want a Debuggable ARM DAP", d)
	}
	if dbg.NumTargets() != 1 {
		t.Fatalf("NumTargets() = %d, want 1", dbg.NumTargets())
	}
	if _, err := dbg.Target(5); err == nil {
		t.Fatalf("Target(5) should fail for a single-target DAP")
	}
}

func TestCreateFallsBackToOpaqueForUnknownManufacturer(t *testing.T) {
	raw := (uint32(0xBEEF) << 12) | (uint32(0x555) << 1) | 1
	c := singleDeviceChain(t, raw, 1)
	d := Create(raw, 0, c)

	if _, ok := d.(*OpaqueDevice); !ok {
		t.Fatalf("Create() = %T, want *OpaqueDevice for an unrecognized manufacturer", d)
	}
	if d.Base().IDCode != raw {
		t.Errorf("IDCode = 0x%08X, want 0x%08X", d.Base().IDCode, raw)
	}
}
