// Package noc implements the RPC and DMA network-on-chip frame formats
// that carry both command/response traffic and bulk memory transfers
// between the host and an on-chip fabric, per SPEC_FULL.md §4.4.
//
// Grounded on antikernel's RPCAndDMANetworkInterface.cpp (message
// fields, RPC_TYPE_* dispatch, the DMA write/read-request sequence) and
// NocJtagInterface.cpp (packing JTAG shifts into DMA words), re-expressed
// as plain pack/unpack functions over encoding/binary rather than the
// original's class hierarchy of network interfaces.
package noc

import (
	"encoding/binary"

	"github.com/openjtaghal/jtaghal/jtagerr"
)

// RPCType is the 3-bit message-type field of an RPC frame.
type RPCType uint8

const (
	RPCCall          RPCType = 0
	RPCReturnSuccess RPCType = 1
	RPCReturnFail    RPCType = 2
	RPCReturnRetry   RPCType = 3
	RPCInterrupt     RPCType = 4
)

func (t RPCType) valid() bool {
	return t <= RPCInterrupt
}

// RPCFrameSize is the on-wire size of an RPC frame: 128 bits.
const RPCFrameSize = 16

// RPCFrame is a 128-bit RPC packet: from(16) to(16) callnum(8) type(3)
// d0(21) d1(32) d2(32), matching SPEC_FULL.md §3's "RPC frame" layout.
type RPCFrame struct {
	From    uint16
	To      uint16
	Callnum uint8
	Type    RPCType
	D0      uint32 // only the low 21 bits are valid
	D1      uint32
	D2      uint32
}

// PackRPC serializes a frame to its 16-byte big-endian wire form.
// Validates d0 fits in 21 bits, per §4.4.
func PackRPC(f RPCFrame) ([]byte, error) {
	if f.D0 >= 1<<21 {
		return nil, jtagerr.New(jtagerr.Framing, "noc: RPC d0 %#x does not fit in 21 bits", f.D0)
	}
	if !f.Type.valid() {
		return nil, jtagerr.New(jtagerr.Framing, "noc: RPC type %d is reserved", f.Type)
	}

	buf := make([]byte, RPCFrameSize)
	binary.BigEndian.PutUint16(buf[0:2], f.From)
	binary.BigEndian.PutUint16(buf[2:4], f.To)
	buf[4] = f.Callnum

	// type(3) and d0(21) share a 24-bit span following the 5-byte
	// from/to/callnum header, packed MSB-first: 3 type bits then 21 d0
	// bits, matching the original's bitfield layout inside a 32-bit word.
	word := (uint32(f.Type&0x7) << 21) | (f.D0 & 0x1FFFFF)
	buf[5] = byte(word >> 16)
	buf[6] = byte(word >> 8)
	buf[7] = byte(word)

	binary.BigEndian.PutUint32(buf[8:12], f.D1)
	binary.BigEndian.PutUint32(buf[12:16], f.D2)
	return buf, nil
}

// UnpackRPC parses a 16-byte wire frame, rejecting a reserved type field.
func UnpackRPC(buf []byte) (RPCFrame, error) {
	if len(buf) != RPCFrameSize {
		return RPCFrame{}, jtagerr.New(jtagerr.Framing, "noc: RPC frame must be %d bytes, got %d", RPCFrameSize, len(buf))
	}

	word := uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	f := RPCFrame{
		From:    binary.BigEndian.Uint16(buf[0:2]),
		To:      binary.BigEndian.Uint16(buf[2:4]),
		Callnum: buf[4],
		Type:    RPCType(word >> 21),
		D0:      word & 0x1FFFFF,
		D1:      binary.BigEndian.Uint32(buf[8:12]),
		D2:      binary.BigEndian.Uint32(buf[12:16]),
	}
	if !f.Type.valid() {
		return RPCFrame{}, jtagerr.New(jtagerr.Framing, "noc: RPC frame has reserved type %d", f.Type)
	}
	return f, nil
}
