package noc

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/openjtaghal/jtaghal/jtagerr"
)

// Frame kind bytes prefixing every message pkg/nocswitch and a TCPBridge
// exchange: a 1-byte discriminator since RPC frames are a fixed 16
// bytes and DMA frames carry their own length in the header, so no
// further outer framing is needed.
const (
	kindRPC byte = 0
	kindDMA byte = 1
)

// ReadFrame reads one kind-prefixed frame from r and reports which kind
// it was; exactly one of the two return values is non-zero-valued.
func ReadFrame(r io.Reader) (rpc *RPCFrame, dma *DMAFrame, err error) {
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return nil, nil, err
	}

	switch kind[0] {
	case kindRPC:
		buf := make([]byte, RPCFrameSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, nil, err
		}
		f, err := UnpackRPC(buf)
		if err != nil {
			return nil, nil, err
		}
		return &f, nil, nil

	case kindDMA:
		header := make([]byte, dmaHeaderSize)
		if _, err := io.ReadFull(r, header); err != nil {
			return nil, nil, err
		}
		wordLen := binary.BigEndian.Uint16(header[6:8])
		buf := make([]byte, dmaHeaderSize+4*int(wordLen))
		copy(buf, header)
		if _, err := io.ReadFull(r, buf[dmaHeaderSize:]); err != nil {
			return nil, nil, err
		}
		f, err := UnpackDMA(buf)
		if err != nil {
			return nil, nil, err
		}
		return nil, &f, nil

	default:
		return nil, nil, jtagerr.New(jtagerr.Framing, "noc: unrecognized frame kind byte %#x", kind[0])
	}
}

// WriteRPC writes a kind-prefixed RPC frame.
func WriteRPC(w io.Writer, f RPCFrame) error {
	buf, err := PackRPC(f)
	if err != nil {
		return err
	}
	return writePrefixed(w, kindRPC, buf)
}

// WriteDMA writes a kind-prefixed DMA frame.
func WriteDMA(w io.Writer, f DMAFrame) error {
	buf, err := PackDMA(f)
	if err != nil {
		return err
	}
	return writePrefixed(w, kindDMA, buf)
}

func writePrefixed(w io.Writer, kind byte, buf []byte) error {
	if _, err := w.Write([]byte{kind}); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// TCPBridge adapts a net.Conn carrying kind-prefixed NoC frames to the
// Bridge interface JtagOverNoc consumes, and is also what
// pkg/nocswitch's client and bridge-side connections speak.
type TCPBridge struct {
	Conn net.Conn
}

func (b *TCPBridge) SendDMA(f DMAFrame) error {
	return WriteDMA(b.Conn, f)
}

func (b *TCPBridge) RecvDMA() (DMAFrame, error) {
	for {
		rpc, dma, err := ReadFrame(b.Conn)
		if err != nil {
			return DMAFrame{}, err
		}
		if dma != nil {
			return *dma, nil
		}
		_ = rpc // RPC traffic interleaved on the same connection is not this call's concern
	}
}
