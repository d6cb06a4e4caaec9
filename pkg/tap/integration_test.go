package tap_test

import (
	"testing"

	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/pkg/tap"
)

// TestStateMachineSequencesDriveSimAdapter confirms a TMS sequence the
// state machine computes for a GoTo transition drives internal/adapter's
// simulator to the same destination state, closing the loop between the
// pure FSM model in this package and the lowest adapter backend that
// consumes its output.
func TestStateMachineSequencesDriveSimAdapter(t *testing.T) {
	m := tap.NewStateMachine()
	// Leave reset so the path is more interesting.
	m.Clock(false) // -> Run-Test/Idle

	seq, err := m.GoTo(tap.StateShiftIR)
	if err != nil {
		t.Fatalf("GoTo returned error: %v", err)
	}

	sim := adapter.NewSimChain(adapter.Info{Name: "sim"}, []adapter.SimDevice{
		{IDCode: 0x4BA00477, HasIDCode: true, IRLength: 4},
	})
	// The simulator starts in Test-Logic-Reset; clock it out of reset the
	// same way so both models start from Run-Test/Idle.
	if err := sim.ShiftTMS(false, []byte{0x00}, 1); err != nil {
		t.Fatalf("ShiftTMS (leave reset) returned error: %v", err)
	}
	before := sim.Counters().ModeBits

	if err := sim.ShiftTMS(false, boolsToBytes(seq.TMS), len(seq.TMS)); err != nil {
		t.Fatalf("ShiftTMS returned error: %v", err)
	}

	if got, want := sim.Counters().ModeBits-before, uint64(len(seq.TMS)); got != want {
		t.Fatalf("ModeBits = %d, want %d", got, want)
	}

	// Shift-IR is a state where ShiftData is legal; any other destination
	// would make the adapter reject the very next scan.
	if _, err := sim.ShiftData(true, []byte{0x0F}, 4); err != nil {
		t.Fatalf("adapter did not land in Shift-IR: ShiftData failed: %v", err)
	}
}

func boolsToBytes(bits []bool) []byte {
	if len(bits) == 0 {
		return nil
	}
	buf := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			buf[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return buf
}
