// Package device dispatches a discovered chain position to a concrete
// driver by IDCODE: Xilinx FPGA/CPLD families, a Microchip stub, an ARM
// DAP, or a generic opaque fallback for anything else.
//
// Grounded on antikernel's JtagDevice/XilinxDevice class hierarchy
// (JtagDevice.h, XilinxDevice.h, CPLD.cpp), re-expressed as a Device
// interface plus small capability interfaces rather than virtual
// inheritance, per the REDESIGN FLAG on inheritance-as-capability-traits.
package device

import "github.com/openjtaghal/jtaghal/pkg/chain"

// Base is the information every driver variant carries regardless of
// capability: its identity, chain position, and IR length.
type Base struct {
	IDCode      uint32
	Position    int
	IRLength    int
	Description string
}

// Device is the capability every catalog entry implements: raw IR/DR
// shifting plus the Base accessor. Concrete drivers additionally satisfy
// Programmable, FPGA, or Debuggable where applicable.
type Device interface {
	Base() Base
	SetIR(bits []bool) error
	ScanDR(bits []bool) ([]bool, error)
}

// Programmable is implemented by devices with a configuration memory:
// FPGAs, CPLDs, and flash-backed parts.
type Programmable interface {
	Program(bitstream []byte) error
	Erase() error
	IsProgrammed() (bool, error)
}

// FPGA is a Programmable device that additionally exposes virtual TAPs
// carried over its RPC/NoC fabric.
type FPGA interface {
	Programmable
	ProbeVirtualTAPs() ([]uint32, error)
	HasRPCInterface() bool
}

// Debuggable is implemented by ARM DAP-style devices exposing one or more
// debug targets (cores) behind the DAP.
type Debuggable interface {
	NumTargets() int
	Target(i int) (DebugTarget, error)
}

// DebugTarget is a single core reachable through a Debuggable device's DAP.
type DebugTarget struct {
	Index       int
	Description string
}

// baseDevice is embedded by every concrete driver to supply Base,
// SetIR and ScanDR by delegating to the owning chain.
type baseDevice struct {
	base Base
	c    *chain.Chain
}

func (d *baseDevice) Base() Base { return d.base }

func (d *baseDevice) SetIR(bits []bool) error { return d.c.SetIR(bits) }

func (d *baseDevice) ScanDR(bits []bool) ([]bool, error) { return d.c.ScanDR(bits) }
