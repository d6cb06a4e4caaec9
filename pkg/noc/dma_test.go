package noc

import (
	"reflect"
	"testing"

	"github.com/openjtaghal/jtaghal/jtagerr"
)

func TestPackUnpackDMARoundTrip(t *testing.T) {
	f := DMAFrame{
		From:    0xC001,
		To:      0x0010,
		Opcode:  DMAWriteRequest,
		Len:     3,
		Address: 0x1000,
		Data:    []uint32{1, 2, 3},
	}
	buf, err := PackDMA(f)
	if err != nil {
		t.Fatalf("PackDMA: %v", err)
	}
	if len(buf) != dmaHeaderSize+4*3 {
		t.Fatalf("PackDMA produced %d bytes, want %d", len(buf), dmaHeaderSize+12)
	}

	got, err := UnpackDMA(buf)
	if err != nil {
		t.Fatalf("UnpackDMA: %v", err)
	}
	if !reflect.DeepEqual(got, f) {
		t.Fatalf("UnpackDMA(PackDMA(f)) = %+v, want %+v", got, f)
	}
}

func TestPackDMARejectsOversizedLen(t *testing.T) {
	_, err := PackDMA(DMAFrame{Len: DMAMaxLen + 1, Data: make([]uint32, DMAMaxLen+1)})
	if k, _ := jtagerr.KindOf(err); k != jtagerr.Framing {
		t.Fatalf("KindOf(err) = %v, want Framing", k)
	}
}

func TestPackDMARejectsReservedOpcode(t *testing.T) {
	_, err := PackDMA(DMAFrame{Opcode: DMAOpcode(3)})
	if k, _ := jtagerr.KindOf(err); k != jtagerr.Framing {
		t.Fatalf("KindOf(err) = %v, want Framing", k)
	}
}

func TestUnpackDMARejectsTruncatedPayload(t *testing.T) {
	buf, err := PackDMA(DMAFrame{Opcode: DMAReadData, Len: 2, Data: []uint32{1, 2}})
	if err != nil {
		t.Fatalf("PackDMA: %v", err)
	}
	_, err = UnpackDMA(buf[:len(buf)-1])
	if k, _ := jtagerr.KindOf(err); k != jtagerr.Framing {
		t.Fatalf("KindOf(err) = %v, want Framing", k)
	}
}
