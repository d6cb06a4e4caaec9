package noc

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTripsBothKinds(t *testing.T) {
	var buf bytes.Buffer

	rpc := RPCFrame{From: 1, To: 2, Callnum: 3, Type: RPCCall, D0: 4, D1: 5, D2: 6}
	dma := DMAFrame{From: 7, To: 8, Opcode: DMAWriteRequest, Len: 2, Address: 9, Data: []uint32{10, 11}}

	if err := WriteRPC(&buf, rpc); err != nil {
		t.Fatalf("WriteRPC: %v", err)
	}
	if err := WriteDMA(&buf, dma); err != nil {
		t.Fatalf("WriteDMA: %v", err)
	}

	gotRPC, gotDMA, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame (rpc): %v", err)
	}
	if gotDMA != nil || gotRPC == nil || *gotRPC != rpc {
		t.Fatalf("ReadFrame = %+v, %+v, want RPC %+v", gotRPC, gotDMA, rpc)
	}

	gotRPC2, gotDMA2, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame (dma): %v", err)
	}
	if gotRPC2 != nil || gotDMA2 == nil || gotDMA2.From != dma.From || gotDMA2.Len != dma.Len {
		t.Fatalf("ReadFrame = %+v, %+v, want DMA %+v", gotRPC2, gotDMA2, dma)
	}
}
