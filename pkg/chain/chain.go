// Package chain drives the IEEE 1149.1 TAP state machine over an
// internal/adapter.Adapter: chain discovery, IR/DR scan framing, IR
// caching, and deferred writes.
//
// Grounded on antikernel's JtagInterface::InitializeChain() (exact
// discovery algorithm) and JtagDevice::SetIRDeferred (cache-hit rule),
// reshaped onto the teacher's session/transport wrapper shape from
// pkg/chain/chain.go. The BSDL-backed boundary-scan batching the teacher
// built on top of that shape is out of scope here and was not carried
// forward — see the module's design notes.
package chain

import (
	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/internal/bitio"
	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/tap"
)

const (
	discoveryFlushBits = 1024
	maxDeviceCount     = 1024
	// maxChunkBits bounds a single adapter.ShiftData call; longer scans
	// are chunked transparently. 4096 bytes matches the observed limit
	// of one common USB-probe backend.
	maxChunkBits = 4096 * 8
)

// DeviceDescriptor is the raw, driver-agnostic result of chain discovery:
// a device's position (0 = nearest TDO) and its captured IDCODE.
type DeviceDescriptor struct {
	Position int
	IDCode   uint32
}

// deferredOp is one queued write awaiting a flush.
type deferredOp struct {
	domain shiftDomain
	bits   []bool
}

type shiftDomain int

const (
	domainIR shiftDomain = iota
	domainDR
)

// Engine owns the TAP state shadow and the physical adapter, and
// implements the scan primitives every Chain is built from.
type Engine struct {
	adapter adapter.Adapter
	tap     *tap.StateMachine

	cachedIR    []bool
	cachedValid bool

	deferred     []deferredOp
	deferredBits int
}

// NewEngine wires an Engine to the given adapter. The TAP shadow starts
// in Test-Logic-Reset, matching power-on silicon state.
func NewEngine(a adapter.Adapter) *Engine {
	return &Engine{adapter: a, tap: tap.NewStateMachine()}
}

// Chain is the result of InitializeChain: the discovered devices plus the
// engine used to scan them.
type Chain struct {
	eng     *Engine
	devices []DeviceDescriptor
}

// Engine exposes the underlying scan engine, e.g. so a device driver can
// issue its own IR/DR scans.
func (c *Chain) Engine() *Engine { return c.eng }

// Devices returns the discovered devices in chain order (position 0 is
// nearest TDO).
func (c *Chain) Devices() []DeviceDescriptor {
	out := make([]DeviceDescriptor, len(c.devices))
	copy(out, c.devices)
	return out
}

// requireSingleDevice returns nil for a chain of exactly one device and
// fails with Unimplemented for any other chain: the IR-length-aware
// BYPASS padding needed to address one device of several has not been
// built, mirroring antikernel's m_devicecount != 1 guard.
func (c *Chain) requireSingleDevice() error {
	if len(c.devices) != 1 {
		return jtagerr.New(jtagerr.Unimplemented, "bypassing extra devices not yet supported (chain has %d devices)", len(c.devices))
	}
	return nil
}

// SetIR loads bits into the sole device's instruction register.
func (c *Chain) SetIR(bits []bool) error {
	if err := c.requireSingleDevice(); err != nil {
		return err
	}
	return c.eng.setIR(bits)
}

// SetIRDeferred queues an IR load without blocking for completion.
func (c *Chain) SetIRDeferred(bits []bool) error {
	if err := c.requireSingleDevice(); err != nil {
		return err
	}
	return c.eng.setIRDeferred(bits)
}

// ScanDR shifts bits through the sole device's data register and returns
// the captured TDO bits.
func (c *Chain) ScanDR(bits []bool) ([]bool, error) {
	if err := c.requireSingleDevice(); err != nil {
		return nil, err
	}
	return c.eng.scanDR(bits)
}

// ScanDRDeferred queues a DR write without waiting for (or capturing) TDO.
func (c *Chain) ScanDRDeferred(bits []bool) error {
	if err := c.requireSingleDevice(); err != nil {
		return err
	}
	return c.eng.scanDRDeferred(bits)
}

// Commit flushes any queued deferred writes.
func (c *Chain) Commit() error { return c.eng.Flush() }

// InitializeChain runs chain discovery (spec §4.2) against the adapter:
// it loads BYPASS everywhere, counts devices by the zeros-before-a-one
// trick, then re-reads each device's 32-bit IDCODE.
func InitializeChain(a adapter.Adapter) (*Chain, error) {
	eng := NewEngine(a)

	if err := eng.reset(); err != nil {
		return nil, err
	}
	if err := eng.gotoState(tap.StateRunTestIdle); err != nil {
		return nil, err
	}

	if err := eng.gotoState(tap.StateShiftIR); err != nil {
		return nil, err
	}
	zeroTDO, err := eng.shiftRaw(bitio.AllBits(discoveryFlushBits, false), false)
	if err != nil {
		return nil, err
	}
	if zeroTDO[len(zeroTDO)-1] {
		return nil, jtagerr.New(jtagerr.BoardFault, "wire fault: TDO did not settle to 0 while flushing IR")
	}

	oneTDO, err := eng.shiftRaw(bitio.AllBits(discoveryFlushBits, true), true)
	if err != nil {
		return nil, err
	}
	if !oneTDO[len(oneTDO)-1] {
		return nil, jtagerr.New(jtagerr.BoardFault, "wire fault: TDO did not settle to 1 while flushing IR")
	}
	// The TMS=1 on the final bit left Exit1-IR; routing through
	// Run-Test-Idle passes through Update-IR, latching BYPASS everywhere.
	if err := eng.gotoState(tap.StateRunTestIdle); err != nil {
		return nil, err
	}

	if err := eng.gotoState(tap.StateShiftDR); err != nil {
		return nil, err
	}
	if _, err := eng.shiftRaw(bitio.AllBits(discoveryFlushBits, false), false); err != nil {
		return nil, err
	}

	deviceCount := 0
	for {
		tdo, err := eng.shiftRaw([]bool{true}, false)
		if err != nil {
			return nil, err
		}
		if tdo[0] {
			break
		}
		deviceCount++
		if deviceCount > maxDeviceCount {
			return nil, jtagerr.New(jtagerr.BoardFault, "chain discovery exceeded maximum device count (%d)", maxDeviceCount)
		}
	}
	if deviceCount == 0 {
		return nil, jtagerr.New(jtagerr.BoardFault, "chain discovery found no devices")
	}

	if err := eng.reset(); err != nil {
		return nil, err
	}
	if err := eng.gotoState(tap.StateRunTestIdle); err != nil {
		return nil, err
	}
	if err := eng.gotoState(tap.StateShiftDR); err != nil {
		return nil, err
	}
	idBits, err := eng.shiftRaw(bitio.AllBits(32*deviceCount, false), true)
	if err != nil {
		return nil, err
	}
	if err := eng.gotoState(tap.StateRunTestIdle); err != nil {
		return nil, err
	}

	devices := make([]DeviceDescriptor, deviceCount)
	for i := 0; i < deviceCount; i++ {
		idcode := bitio.BitsToUint32(idBits[i*32 : i*32+32])
		if idcode&1 == 0 {
			return nil, jtagerr.New(jtagerr.Framing, "device %d presented a bare BYPASS bit instead of an IDCODE (bit 0 must be 1)", i)
		}
		devices[i] = DeviceDescriptor{Position: i, IDCode: idcode}
	}

	return &Chain{eng: eng, devices: devices}, nil
}
