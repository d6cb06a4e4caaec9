package noc

import (
	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/jtagerr"
)

// tmsFinalFlag is the address value NocJtagInterface.cpp patches into a
// WRITE_REQUEST message's header when the message's last word closes out
// a shift with last_tms=true, per SPEC_FULL.md §4.4.
const tmsFinalFlag = 0x800

// Bridge is the minimum a transport must provide to carry DMA frames to
// the on-chip fabric a JtagOverNoc adapter is attached to. TCPBridge
// satisfies it over any connection carrying kind-prefixed NoC frames,
// such as one to pkg/nocswitch; tests use an in-process fake.
type Bridge interface {
	SendDMA(DMAFrame) error
	RecvDMA() (DMAFrame, error)
}

// JtagOverNoc adapts a DMA Bridge to the adapter.Adapter interface,
// carrying JTAG shift operations as DMA payload words for targets that
// only expose their JTAG pins through an on-chip bridge.
//
// Grounded on antikernel's NocJtagInterface.cpp: each ShiftData call
// becomes one or more WRITE_REQUEST messages of up to 512 32-bit words
// (32 shift-bits per word), with the first word of the final message
// patched to carry the true bit count and address=0x800 flagging the
// message that ends with the final TMS=1 toggle.
type JtagOverNoc struct {
	bridge   Bridge
	endpoint uint16
	target   uint16
	counters adapter.Counters
}

// NewJtagOverNoc wires a Bridge to a specific target NoC endpoint. local
// is this adapter's own endpoint address, used as the "from" field of
// every frame it sends.
func NewJtagOverNoc(bridge Bridge, local, target uint16) *JtagOverNoc {
	return &JtagOverNoc{bridge: bridge, endpoint: local, target: target}
}

func (j *JtagOverNoc) Info() (adapter.Info, error) {
	return adapter.Info{Name: "noc", Notes: "JTAG-over-NoC bridge adapter"}, nil
}

// ShiftData packs tx into WRITE_REQUEST DMA words, 32 shift-bits per
// word, up to DMAMaxLen-1 data words per message (one word of each
// message is reserved as a header, patched with the message's true bit
// count once known), sending as many messages as needed and flagging
// the final one with address=tmsFinalFlag when lastTMS closes out the
// scan.
func (j *JtagOverNoc) ShiftData(lastTMS bool, tx []byte, bits int) ([]byte, error) {
	if _, err := adapter.ValidateShiftBuffers(tx, bits); err != nil {
		return nil, jtagerr.New(jtagerr.GIGO, "noc: %v", err)
	}

	words := packBitsToWords(tx, bits)
	rx := make([]byte, (bits+7)/8)
	rxBit := 0

	const dataWordsPerMsg = DMAMaxLen - 1
	for off := 0; off < len(words); off += dataWordsPerMsg {
		end := off + dataWordsPerMsg
		if end > len(words) {
			end = len(words)
		}
		isFinal := end == len(words)

		bitCountThisMsg := (end - off) * 32
		if isFinal {
			bitCountThisMsg = bits - off*32
		}
		msg := make([]uint32, 1+(end-off))
		msg[0] = uint32(bitCountThisMsg)
		copy(msg[1:], words[off:end])

		addr := uint32(0)
		if isFinal && lastTMS {
			addr = tmsFinalFlag
		}

		if err := j.bridge.SendDMA(DMAFrame{
			From:    j.endpoint,
			To:      j.target,
			Opcode:  DMAWriteRequest,
			Len:     uint16(len(msg)),
			Address: addr,
			Data:    msg,
		}); err != nil {
			return nil, jtagerr.Wrap(jtagerr.Network, err, "noc: sending shift_data chunk")
		}

		reply, err := j.bridge.RecvDMA()
		if err != nil {
			return nil, jtagerr.Wrap(jtagerr.Network, err, "noc: waiting for shift_data ack")
		}
		if reply.Opcode != DMAReadData {
			return nil, jtagerr.New(jtagerr.Firmware, "noc: expected READ_DATA ack, got opcode %d", reply.Opcode)
		}
		// The reply mirrors the request's header word followed by the
		// captured TDO words for that message's data words.
		replyData := reply.Data
		if len(replyData) > 0 {
			replyData = replyData[1:]
		}
		for _, w := range replyData {
			for b := 0; b < 32 && rxBit < bits; b++ {
				if w&(1<<uint(b)) != 0 {
					rx[rxBit/8] |= 1 << uint(rxBit%8)
				}
				rxBit++
			}
		}
	}

	j.counters.ShiftOps++
	j.counters.DataBits += uint64(bits)
	return rx, nil
}

// ShiftTMS is carried the same way as ShiftData, with the TMS bits as
// payload and no TDI data of interest; NocJtagInterface multiplexes both
// over the same WRITE_REQUEST path.
func (j *JtagOverNoc) ShiftTMS(tdiLevel bool, tms []byte, bits int) error {
	_, err := j.ShiftData(false, tms, bits)
	if err == nil {
		j.counters.ModeBits += uint64(bits)
	}
	return err
}

func (j *JtagOverNoc) IdleClocks(n int) error {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, (n+7)/8)
	if _, err := j.ShiftData(false, buf, n); err != nil {
		return err
	}
	j.counters.IdleClocks += uint64(n)
	return nil
}

func (j *JtagOverNoc) ResetTAP(hard bool) error {
	return j.ShiftTMS(false, []byte{0xFF}, 5)
}

func (j *JtagOverNoc) SetSpeed(hz int) error {
	return jtagerr.New(jtagerr.Unimplemented, "noc: bridge-side clock rate is fixed by the fabric, not host-settable")
}

func (j *JtagOverNoc) Counters() adapter.Counters {
	return j.counters
}

// IsSplitScanSupported always reports false: NocJtagInterface's
// split-scan methods are UNIMPLEMENTED on both the hardware bridge and
// this Go adapter, matching its hardware-side sibling. Preserve per
// SPEC_FULL.md §9.
func (j *JtagOverNoc) IsSplitScanSupported() bool { return false }

func (j *JtagOverNoc) ShiftDataSplitWrite(lastTMS bool, tx []byte, bits int) error {
	return jtagerr.New(jtagerr.Unimplemented, "noc: split-scan write is not implemented over the NoC bridge")
}

func (j *JtagOverNoc) ShiftDataSplitRead(bits int) ([]byte, error) {
	return nil, jtagerr.New(jtagerr.Unimplemented, "noc: split-scan read is not implemented over the NoC bridge")
}

// packBitsToWords packs tx's bits LSB-first into 32-bit words, zero-padding
// the final word, matching the "32 shift-bits per word" rule.
func packBitsToWords(tx []byte, bits int) []uint32 {
	n := (bits + 31) / 32
	if n == 0 {
		n = 1
	}
	words := make([]uint32, n)
	for i := 0; i < bits; i++ {
		byteIdx := i / 8
		if byteIdx >= len(tx) {
			break
		}
		if tx[byteIdx]&(1<<uint(i%8)) != 0 {
			words[i/32] |= 1 << uint(i%32)
		}
	}
	return words
}
