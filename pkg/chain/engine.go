package chain

import (
	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/internal/bitio"
	"github.com/openjtaghal/jtaghal/pkg/tap"
)

// deferredBufferLimit bounds the pending-write queue before an implicit
// flush, roughly matching a 4KiB USB transfer.
const deferredBufferLimit = 4096 * 8

func (e *Engine) reset() error {
	if err := e.adapter.ResetTAP(true); err != nil {
		return err
	}
	e.tap.Reset() // re-sync the local shadow; the hardware reset already happened
	e.cachedValid = false
	return nil
}

func (e *Engine) gotoState(target tap.State) error {
	seq, err := e.tap.GoTo(target)
	if err != nil {
		return err
	}
	if len(seq.TMS) == 0 {
		return nil
	}
	return e.adapter.ShiftTMS(false, bitio.BoolsToBytes(seq.TMS), len(seq.TMS))
}

// clockShadow advances the local TAP shadow by n bits, TMS=0 except the
// final bit which carries lastTMS, mirroring what shiftRaw just told the
// real adapter to do.
func (e *Engine) clockShadow(n int, lastTMS bool) {
	for i := 0; i < n-1; i++ {
		e.tap.Clock(false)
	}
	if n > 0 {
		e.tap.Clock(lastTMS)
	}
}

// shiftRaw shifts bits through whichever register the current TAP state
// selects, chunking transparently above maxChunkBits and keeping the
// local TAP shadow in sync with every bit it sends.
func (e *Engine) shiftRaw(bits []bool, lastTMS bool) ([]bool, error) {
	var out []bool
	pos := 0
	for pos < len(bits) {
		n := len(bits) - pos
		if n > maxChunkBits {
			n = maxChunkBits
		}
		chunkLastTMS := lastTMS && pos+n == len(bits)

		tdo, err := e.adapter.ShiftData(chunkLastTMS, bitio.BoolsToBytes(bits[pos:pos+n]), n)
		if err != nil {
			return nil, err
		}
		e.clockShadow(n, chunkLastTMS)
		out = append(out, bitio.BytesToBools(tdo, n)...)
		pos += n
	}
	return out, nil
}

func (e *Engine) setIR(bits []bool) error {
	if err := e.Flush(); err != nil {
		return err
	}
	if len(bits) <= 32 && e.cachedValid && boolsEqual(bits, e.cachedIR) {
		return nil
	}
	if err := e.gotoState(tap.StateShiftIR); err != nil {
		return err
	}
	if _, err := e.shiftRaw(bits, true); err != nil {
		return err
	}
	if err := e.gotoState(tap.StateRunTestIdle); err != nil {
		return err
	}
	e.cacheIR(bits)
	return nil
}

func (e *Engine) cacheIR(bits []bool) {
	if len(bits) > 32 {
		e.cachedValid = false
		return
	}
	e.cachedIR = append([]bool(nil), bits...)
	e.cachedValid = true
}

func (e *Engine) scanDR(bits []bool) ([]bool, error) {
	if err := e.Flush(); err != nil {
		return nil, err
	}
	if err := e.gotoState(tap.StateShiftDR); err != nil {
		return nil, err
	}
	tdo, err := e.shiftRaw(bits, true)
	if err != nil {
		return nil, err
	}
	if err := e.gotoState(tap.StateRunTestIdle); err != nil {
		return nil, err
	}
	return tdo, nil
}

// setIRDeferred queues an IR load. The IR cache is still consulted
// eagerly since eliding a no-op write needs no wire access.
func (e *Engine) setIRDeferred(bits []bool) error {
	if len(bits) <= 32 && e.cachedValid && boolsEqual(bits, e.cachedIR) {
		return nil
	}
	if err := e.queue(domainIR, bits); err != nil {
		return err
	}
	e.cacheIR(bits)
	return nil
}

func (e *Engine) scanDRDeferred(bits []bool) error {
	return e.queue(domainDR, bits)
}

// queue appends a deferred write and flushes once the pending buffer
// crosses deferredBufferLimit, so an unbounded stream of *_deferred calls
// cannot grow the queue without limit.
func (e *Engine) queue(domain shiftDomain, bits []bool) error {
	e.deferred = append(e.deferred, deferredOp{domain: domain, bits: bits})
	e.deferredBits += len(bits)
	if e.deferredBits >= deferredBufferLimit {
		return e.Flush()
	}
	return nil
}

// Flush issues every queued deferred write to the adapter in FIFO order,
// then commits any adapter-level write buffering.
func (e *Engine) Flush() error {
	if len(e.deferred) == 0 {
		return nil
	}
	ops := e.deferred
	e.deferred = nil
	e.deferredBits = 0

	for _, op := range ops {
		var state tap.State
		switch op.domain {
		case domainIR:
			state = tap.StateShiftIR
		default:
			state = tap.StateShiftDR
		}
		if err := e.gotoState(state); err != nil {
			return err
		}
		if _, err := e.shiftRaw(op.bits, true); err != nil {
			return err
		}
		if err := e.gotoState(tap.StateRunTestIdle); err != nil {
			return err
		}
	}
	return adapter.Flush(e.adapter)
}

func boolsEqual(a, b []bool) bool {
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
