package noc

import (
	"encoding/binary"

	"github.com/openjtaghal/jtaghal/jtagerr"
)

// DMAOpcode is the DMA frame's opcode field.
type DMAOpcode uint8

const (
	DMAWriteRequest DMAOpcode = 0
	DMAReadRequest  DMAOpcode = 1
	DMAReadData     DMAOpcode = 2
)

func (o DMAOpcode) valid() bool {
	return o <= DMAReadData
}

// DMAMaxLen is the largest payload length, in 32-bit words, a single DMA
// frame may carry, per §4.4.
const DMAMaxLen = 512

// dmaHeaderSize is the 12-byte header SPEC_FULL.md §6 specifies: from,
// to, and address are unambiguous at 2+2+4 bytes; the remaining 4 bytes
// are assigned here as a 1-byte opcode, a 1-byte reserved/pad field (the
// original's packed C bitfield left opcode occupying a full byte in
// practice), and a 2-byte length, which is the layout this repo commits
// to for the open question of exact sub-byte packing.
const dmaHeaderSize = 12

// DMAFrame is a NoC DMA packet: the 12-byte header plus up to
// DMAMaxLen 32-bit words of payload.
type DMAFrame struct {
	From    uint16
	To      uint16
	Opcode  DMAOpcode
	Len     uint16 // word count, <= DMAMaxLen
	Address uint32
	Data    []uint32
}

// PackDMA serializes a frame to its big-endian wire form: header then
// Len 32-bit big-endian words.
func PackDMA(f DMAFrame) ([]byte, error) {
	if !f.Opcode.valid() {
		return nil, jtagerr.New(jtagerr.Framing, "noc: DMA opcode %d is reserved", f.Opcode)
	}
	if f.Len > DMAMaxLen || int(f.Len) != len(f.Data) {
		return nil, jtagerr.New(jtagerr.Framing, "noc: DMA len %d inconsistent with %d data words (max %d)", f.Len, len(f.Data), DMAMaxLen)
	}

	buf := make([]byte, dmaHeaderSize+4*len(f.Data))
	binary.BigEndian.PutUint16(buf[0:2], f.From)
	binary.BigEndian.PutUint16(buf[2:4], f.To)
	buf[4] = byte(f.Opcode)
	buf[5] = 0
	binary.BigEndian.PutUint16(buf[6:8], f.Len)
	binary.BigEndian.PutUint32(buf[8:12], f.Address)
	for i, w := range f.Data {
		binary.BigEndian.PutUint32(buf[dmaHeaderSize+4*i:], w)
	}
	return buf, nil
}

// UnpackDMA parses a wire-format DMA frame, rejecting an oversized or
// reserved-opcode frame.
func UnpackDMA(buf []byte) (DMAFrame, error) {
	if len(buf) < dmaHeaderSize {
		return DMAFrame{}, jtagerr.New(jtagerr.Framing, "noc: DMA frame shorter than %d-byte header", dmaHeaderSize)
	}

	f := DMAFrame{
		From:    binary.BigEndian.Uint16(buf[0:2]),
		To:      binary.BigEndian.Uint16(buf[2:4]),
		Opcode:  DMAOpcode(buf[4]),
		Len:     binary.BigEndian.Uint16(buf[6:8]),
		Address: binary.BigEndian.Uint32(buf[8:12]),
	}
	if !f.Opcode.valid() {
		return DMAFrame{}, jtagerr.New(jtagerr.Framing, "noc: DMA frame has reserved opcode %d", f.Opcode)
	}
	if f.Len > DMAMaxLen {
		return DMAFrame{}, jtagerr.New(jtagerr.Framing, "noc: DMA len %d exceeds max %d", f.Len, DMAMaxLen)
	}

	payload := buf[dmaHeaderSize:]
	if len(payload) != 4*int(f.Len) {
		return DMAFrame{}, jtagerr.New(jtagerr.Framing, "noc: DMA payload is %d bytes, want %d for len=%d", len(payload), 4*int(f.Len), f.Len)
	}
	f.Data = make([]uint32, f.Len)
	for i := range f.Data {
		f.Data[i] = binary.BigEndian.Uint32(payload[4*i:])
	}
	return f, nil
}
