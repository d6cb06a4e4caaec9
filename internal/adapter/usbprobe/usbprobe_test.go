package usbprobe

import (
	"bytes"
	"testing"

	"github.com/openjtaghal/jtaghal/internal/bitio"
)

func TestDecodeFirmwareVersionBug(t *testing.T) {
	tests := []struct {
		name      string
		word      uint16
		wantMajor int
		wantMinor int
	}{
		{"both nonzero", 0x0205, 2, 5},
		{"minor zero collapses major too", 0x0500, 0, 0},
		{"major zero collapses minor too", 0x0003, 0, 0},
		{"both zero", 0x0000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor := decodeFirmwareVersion(tt.word)
			if major != tt.wantMajor || minor != tt.wantMinor {
				t.Errorf("decodeFirmwareVersion(0x%04X) = (%d,%d), want (%d,%d)",
					tt.word, major, minor, tt.wantMajor, tt.wantMinor)
			}
		})
	}
}

func TestBuildDataSequencesNoTrailingTMS(t *testing.T) {
	bits := bitio.AllBits(8, true)
	seqs, counts := buildDataSequences(false, bits)
	if len(seqs) != 1 || counts[0] != 8 {
		t.Fatalf("got %d sequences %v, want a single 8-bit sequence", len(seqs), counts)
	}
	if seqs[0].info&seqTMS != 0 {
		t.Fatalf("expected TMS=0 throughout when lastTMS is false")
	}
}

func TestBuildDataSequencesPeelsTrailingTMSBit(t *testing.T) {
	bits := bitio.AllBits(65, false)
	seqs, counts := buildDataSequences(true, bits)
	if len(seqs) != 2 {
		t.Fatalf("got %d sequences, want 2 (64 + 1)", len(seqs))
	}
	if counts[0] != 64 || counts[1] != 1 {
		t.Fatalf("counts = %v, want [64 1]", counts)
	}
	if seqs[0].info&seqTMS != 0 {
		t.Fatalf("first chunk must hold TMS low")
	}
	if seqs[1].info&seqTMS == 0 {
		t.Fatalf("final one-bit chunk must carry TMS high")
	}
}

func TestBuildDataSequencesSingleBitLastTMS(t *testing.T) {
	seqs, counts := buildDataSequences(true, []bool{true})
	if len(seqs) != 1 || counts[0] != 1 {
		t.Fatalf("got %d sequences %v, want a single 1-bit sequence", len(seqs), counts)
	}
	if seqs[0].info&seqTMS == 0 {
		t.Fatalf("expected TMS high on the only bit when lastTMS is set")
	}
}

func TestBuildTMSSequencesRunLengthEncodes(t *testing.T) {
	tms := []bool{false, false, false, true, true, false}
	seqs := buildTMSSequences(true, tms)
	if len(seqs) != 3 {
		t.Fatalf("got %d sequences, want 3 runs", len(seqs))
	}
	wantCounts := []int{3, 2, 1}
	wantTMS := []bool{false, true, false}
	for i, s := range seqs {
		if s.info&seqTCKMask != byte(wantCounts[i]) {
			t.Errorf("run %d: tck count = %d, want %d", i, s.info&seqTCKMask, wantCounts[i])
		}
		if (s.info&seqTMS != 0) != wantTMS[i] {
			t.Errorf("run %d: tms = %v, want %v", i, s.info&seqTMS != 0, wantTMS[i])
		}
		if s.captureTDO() {
			t.Errorf("run %d: TMS-only sequences must not request TDO capture", i)
		}
	}
}

func TestProtocolEncodeDecodeJTAGSequenceRoundTrip(t *testing.T) {
	proto := newProtocol(64)
	seqs := []sequence{
		newSequence(8, false, true, []byte{0xAA}),
		newSequence(1, true, true, []byte{0x01}),
	}
	cmd := proto.encodeJTAGSequence(seqs)

	// Synthesize a response as the probe would send it: status OK
	// followed by the captured TDO bytes for each capturing sequence.
	resp := append([]byte{cmdJTAGSequence, statusOK}, 0xCC, 0x01)
	tdo, err := proto.decodeJTAGSequence(resp, seqs)
	if err != nil {
		t.Fatalf("decodeJTAGSequence: %v", err)
	}
	if len(tdo) != 2 || !bytes.Equal(tdo[0], []byte{0xCC}) || !bytes.Equal(tdo[1], []byte{0x01}) {
		t.Fatalf("tdo = %v, want [[CC] [01]]", tdo)
	}

	if cmd[0] != cmdJTAGSequence || cmd[1] != byte(len(seqs)) {
		t.Fatalf("encodeJTAGSequence header = %v", cmd[:2])
	}
}

func TestProtocolDecodeConnectRejectsNonJTAGPort(t *testing.T) {
	proto := newProtocol(64)
	if err := proto.decodeConnect([]byte{cmdConnect, 1}); err == nil {
		t.Fatalf("expected error when probe reports SWD instead of JTAG")
	}
	if err := proto.decodeConnect([]byte{cmdConnect, portJTAG}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
