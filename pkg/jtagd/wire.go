package jtagd

import (
	"encoding/binary"
	"io"

	"github.com/openjtaghal/jtaghal/jtagerr"
)

// All multi-byte fields on this wire are little-endian; see the package
// doc comment for why this protocol breaks from the module's usual
// big-endian convention.
var byteOrder = binary.LittleEndian

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, jtagerr.Wrap(jtagerr.Network, err, "jtagd: read u8")
	}
	return b[0], nil
}

func writeUint8(w io.Writer, v uint8) error {
	if _, err := w.Write([]byte{v}); err != nil {
		return jtagerr.Wrap(jtagerr.Network, err, "jtagd: write u8")
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, jtagerr.Wrap(jtagerr.Network, err, "jtagd: read u32")
	}
	return byteOrder.Uint32(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	byteOrder.PutUint32(b[:], v)
	if _, err := w.Write(b[:]); err != nil {
		return jtagerr.Wrap(jtagerr.Network, err, "jtagd: write u32")
	}
	return nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, jtagerr.Wrap(jtagerr.Network, err, "jtagd: read u64")
	}
	return byteOrder.Uint64(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	byteOrder.PutUint64(b[:], v)
	if _, err := w.Write(b[:]); err != nil {
		return jtagerr.Wrap(jtagerr.Network, err, "jtagd: write u64")
	}
	return nil
}

func readBytes(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, jtagerr.Wrap(jtagerr.Network, err, "jtagd: read %d bytes", n)
	}
	return buf, nil
}

func writeBytes(w io.Writer, buf []byte) error {
	if _, err := w.Write(buf); err != nil {
		return jtagerr.Wrap(jtagerr.Network, err, "jtagd: write %d bytes", len(buf))
	}
	return nil
}

// readPascalString reads a 16-bit length prefix followed by that many
// raw (non-NUL-terminated) bytes, per §4.6's "string responses use a
// 16-bit length prefix" rule.
func readPascalString(r io.Reader) (string, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", jtagerr.Wrap(jtagerr.Network, err, "jtagd: read string length")
	}
	n := byteOrder.Uint16(lb[:])
	buf, err := readBytes(r, int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func writePascalString(w io.Writer, s string) error {
	if len(s) > 65535 {
		return jtagerr.New(jtagerr.GIGO, "jtagd: string %d bytes exceeds 16-bit length prefix", len(s))
	}
	var lb [2]byte
	byteOrder.PutUint16(lb[:], uint16(len(s)))
	if _, err := w.Write(lb[:]); err != nil {
		return jtagerr.Wrap(jtagerr.Network, err, "jtagd: write string length")
	}
	return writeBytes(w, []byte(s))
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func byteToBool(b byte) bool { return b != 0 }

func bitsToBytes(bits int) int { return (bits + 7) / 8 }
