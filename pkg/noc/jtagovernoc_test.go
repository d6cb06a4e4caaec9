package noc

import (
	"testing"

	"github.com/openjtaghal/jtaghal/jtagerr"
)

// fakeBridge echoes every WRITE_REQUEST's data back as a READ_DATA reply,
// modeling a bridge whose target TAP is in BYPASS (TDO mirrors TDI).
type fakeBridge struct {
	sent []DMAFrame
}

func (b *fakeBridge) SendDMA(f DMAFrame) error {
	b.sent = append(b.sent, f)
	return nil
}

func (b *fakeBridge) RecvDMA() (DMAFrame, error) {
	last := b.sent[len(b.sent)-1]
	return DMAFrame{From: last.To, To: last.From, Opcode: DMAReadData, Len: last.Len, Data: last.Data}, nil
}

func TestJtagOverNocShiftDataRoundTrip(t *testing.T) {
	bridge := &fakeBridge{}
	j := NewJtagOverNoc(bridge, 0xC001, 0x0010)

	tdo, err := j.ShiftData(true, []byte{0xA5}, 8)
	if err != nil {
		t.Fatalf("ShiftData: %v", err)
	}
	if len(tdo) != 1 || tdo[0] != 0xA5 {
		t.Fatalf("ShiftData returned %v, want [0xA5] from the BYPASS-echoing fake bridge", tdo)
	}
	if len(bridge.sent) != 1 {
		t.Fatalf("sent %d DMA frames, want 1", len(bridge.sent))
	}
	if bridge.sent[0].Address != tmsFinalFlag {
		t.Errorf("Address = %#x, want %#x (final TMS=1 flag)", bridge.sent[0].Address, tmsFinalFlag)
	}
}

func TestJtagOverNocShiftDataChunksLargeTransfers(t *testing.T) {
	bridge := &fakeBridge{}
	j := NewJtagOverNoc(bridge, 0xC001, 0x0010)

	bits := (DMAMaxLen + 5) * 32
	tx := make([]byte, bits/8)
	if _, err := j.ShiftData(false, tx, bits); err != nil {
		t.Fatalf("ShiftData: %v", err)
	}
	if len(bridge.sent) != 2 {
		t.Fatalf("sent %d DMA frames for an oversized shift, want 2", len(bridge.sent))
	}
	if bridge.sent[0].Len != DMAMaxLen {
		t.Errorf("first chunk Len = %d, want %d (1 header word + %d data words)", bridge.sent[0].Len, DMAMaxLen, DMAMaxLen-1)
	}
}

func TestJtagOverNocSplitScanIsUnimplemented(t *testing.T) {
	j := NewJtagOverNoc(&fakeBridge{}, 0xC001, 0x0010)

	if j.IsSplitScanSupported() {
		t.Fatal("IsSplitScanSupported() = true, want false: split scan is UNIMPLEMENTED over the NoC bridge")
	}
	err := j.ShiftDataSplitWrite(false, nil, 0)
	if k, _ := jtagerr.KindOf(err); k != jtagerr.Unimplemented {
		t.Errorf("ShiftDataSplitWrite KindOf(err) = %v, want Unimplemented", k)
	}
	_, err = j.ShiftDataSplitRead(8)
	if k, _ := jtagerr.KindOf(err); k != jtagerr.Unimplemented {
		t.Errorf("ShiftDataSplitRead KindOf(err) = %v, want Unimplemented", k)
	}
}
