// Package jtagd implements the JTAG daemon wire protocol from
// SPEC_FULL.md §4.6: an opcode-dispatched request/response protocol,
// little-endian on the wire as the one deliberate exception to §4.4's
// big-endian rule, preserved here for wire compatibility with the
// antikernel NetworkedJtagInterface this package's client mirrors.
//
// Grounded on the antikernel NetworkedJtagInterface.{cpp,h} client and
// the jtagd_opcodes_constants.h opcode list it sends.
package jtagd

// opcode is the one-byte request discriminator every message starts
// with.
type opcode byte

const (
	opGetName opcode = iota
	opGetSerial
	opGetUserID
	opGetFreq

	opShiftData
	opShiftDataWO
	opShiftDataWriteOnly
	opShiftDataReadOnly
	opSplitSupported

	opDummyClock
	opDummyClockDeferred

	opTLR
	opEnterSIR
	opLeaveE1IR
	opEnterSDR
	opLeaveE1DR
	opResetIdle

	opCommit

	opHasGPIO
	opGetGPIOPinCount
	opReadGPIOState
	opWriteGPIOState

	opPerfShiftOps
	opPerfRecoverableErrs
	opPerfDataBits
	opPerfModeBits
	opPerfDummyClocks
	opPerfShiftTime

	opQuit
)

// shiftDeferredStatus values follow ShiftDataWriteOnly/ReadOnly's
// status-byte convention: 0 = completed synchronously (response data, if
// any, follows immediately), 1 = deferred (no response data this round
// trip), anything else = failure.
const (
	statusOK       byte = 0
	statusDeferred byte = 1
	statusFailed   byte = 2
)
