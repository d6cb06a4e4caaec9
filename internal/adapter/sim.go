package adapter

import (
	"fmt"

	"github.com/openjtaghal/jtaghal/internal/bitio"
	"github.com/openjtaghal/jtaghal/pkg/tap"
)

// SimDevice describes one device on a simulated scan chain: its IDCODE (if
// it has one — a device with HasIDCode false behaves like a BYPASS-only
// part, which discovery is required to reject) and its IR length.
type SimDevice struct {
	IDCode   uint32
	HasIDCode bool
	IRLength int
}

// SimChain is an in-memory Adapter that emulates a chain of devices well
// enough to exercise discovery, IR caching, and BYPASS DR round-trips: it
// tracks the TAP state itself, shifts bits through the concatenated
// IR/DR register selected by that state, and latches IR on Update-IR the
// way real silicon does.
//
// Grounded on pkg/jtag/simulator.go (the SimAdapter struct shape and the
// Info/ResetTAP/SetSpeed methods) combined with the chain-walking model
// from pkg/jtag/chain_simulator.go, rebuilt around IDCODE/BYPASS registers
// only since boundary-scan cell state is out of scope here.
type SimChain struct {
	InfoData Info
	Devices  []SimDevice

	state    *tap.StateMachine
	irBuf    []bool // concatenated IR shift register, index 0 = TDO-nearest
	drBuf    []bool // concatenated DR shift register, index 0 = TDO-nearest
	curIR    [][]bool
	explicit []bool // true once a device's IR has been explicitly loaded

	counters Counters
	speedHz  int
}

// NewSimChain builds a simulator for the given devices, ordered 0 at the
// TDO-nearest end per the scan-chain data model.
func NewSimChain(info Info, devices []SimDevice) *SimChain {
	s := &SimChain{InfoData: info, Devices: devices, state: tap.NewStateMachine()}
	s.curIR = make([][]bool, len(devices))
	s.explicit = make([]bool, len(devices))
	s.resetLatches()
	return s
}

func (s *SimChain) resetLatches() {
	for i, d := range s.Devices {
		s.curIR[i] = bitio.AllBits(d.IRLength, false)
		s.explicit[i] = false
	}
	s.irBuf = nil
	s.drBuf = nil
}

func (s *SimChain) Info() (Info, error) { return s.InfoData, nil }

func (s *SimChain) Counters() Counters { return s.counters }

func (s *SimChain) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("adapter: invalid speed %dHz", hz)
	}
	s.speedHz = hz
	return nil
}

func (s *SimChain) ResetTAP(hard bool) error {
	s.state.Reset()
	s.resetLatches()
	return nil
}

// ShiftData shifts bits through whichever register (IR or DR) the current
// TAP state selects, clocking the local TAP copy alongside so the next
// call sees the post-shift state.
func (s *SimChain) ShiftData(lastTMS bool, tx []byte, bits int) ([]byte, error) {
	if _, err := ValidateShiftBuffers(tx, bits); err != nil {
		return nil, err
	}
	txBits := bitio.BytesToBools(padBytes(tx, bits), bits)

	var reg *[]bool
	switch s.state.State() {
	case tap.StateShiftIR:
		s.syncIRBuf()
		reg = &s.irBuf
	case tap.StateShiftDR:
		s.syncDRBuf()
		reg = &s.drBuf
	default:
		return nil, fmt.Errorf("adapter: ShiftData called outside Shift-IR/Shift-DR (state=%s)", s.state.State())
	}

	rxBits := make([]bool, bits)
	for i := 0; i < bits; i++ {
		rxBits[i] = (*reg)[0]
		copy((*reg)[0:], (*reg)[1:])
		(*reg)[len(*reg)-1] = txBits[i]

		tmsBit := false
		if i == bits-1 {
			tmsBit = lastTMS
		}
		s.state.Clock(tmsBit)
	}

	if s.state.State() == tap.StateUpdateIR {
		s.commitIR()
	}

	s.counters.ShiftOps++
	s.counters.DataBits += uint64(bits)
	return bitio.BoolsToBytes(rxBits), nil
}

func (s *SimChain) ShiftTMS(tdiLevel bool, tms []byte, bits int) error {
	if bits <= 0 {
		return fmt.Errorf("adapter: bits must be positive, got %d", bits)
	}
	tmsBits := bitio.BytesToBools(padBytes(tms, bits), bits)
	for _, bit := range tmsBits {
		s.state.Clock(bit)
		switch s.state.State() {
		case tap.StateUpdateIR:
			s.commitIR()
		case tap.StateCaptureDR:
			s.drBuf = nil
		case tap.StateCaptureIR:
			s.irBuf = nil
		}
	}
	s.counters.ModeBits += uint64(bits)
	return nil
}

func (s *SimChain) IdleClocks(n int) error {
	for i := 0; i < n; i++ {
		s.state.Clock(false)
	}
	s.counters.IdleClocks += uint64(n)
	return nil
}

// syncIRBuf (re)builds the concatenated IR register and populates capture
// values the first time Shift-IR is entered after Capture-IR.
func (s *SimChain) syncIRBuf() {
	if s.irBuf != nil {
		return
	}
	total := 0
	for _, d := range s.Devices {
		total += d.IRLength
	}
	s.irBuf = make([]bool, total)
	// IEEE 1149.1 capture-IR loads a fixed status pattern ending in "01";
	// devices without a defined capture value default to all-zero here.
	pos := 0
	for _, d := range s.Devices {
		if d.IRLength > 0 {
			s.irBuf[pos] = true
		}
		pos += d.IRLength
	}
}

func (s *SimChain) commitIR() {
	if s.irBuf == nil {
		return
	}
	pos := 0
	for i, d := range s.Devices {
		s.curIR[i] = append([]bool(nil), s.irBuf[pos:pos+d.IRLength]...)
		s.explicit[i] = true
		pos += d.IRLength
	}
	s.irBuf = nil
}

// syncDRBuf (re)builds the concatenated DR register from each device's
// currently effective register (IDCODE if not yet explicitly loaded and
// the device has one, BYPASS otherwise).
func (s *SimChain) syncDRBuf() {
	if s.drBuf != nil {
		return
	}
	var buf []bool
	for i, d := range s.Devices {
		if !s.explicit[i] && d.HasIDCode {
			buf = append(buf, bitio.Uint32ToBits(d.IDCode, 32)...)
			continue
		}
		if allOnes(s.curIR[i]) || len(s.curIR[i]) == 0 {
			buf = append(buf, false) // BYPASS: single flip-flop, captures 0
			continue
		}
		// Any other loaded instruction falls back to BYPASS-shaped
		// behavior: this simulator only models IDCODE and BYPASS.
		buf = append(buf, false)
	}
	s.drBuf = buf
}

func allOnes(bits []bool) bool {
	if len(bits) == 0 {
		return false
	}
	for _, b := range bits {
		if !b {
			return false
		}
	}
	return true
}

func padBytes(b []byte, bits int) []byte {
	need := (bits + 7) / 8
	if len(b) >= need {
		return b
	}
	out := make([]byte, need)
	copy(out, b)
	return out
}
