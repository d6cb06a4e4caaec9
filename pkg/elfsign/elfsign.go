// Package elfsign implements the ELF signature scheme from
// SPEC_FULL.md §4.7: a fixed-size HMAC-SHA256 signature segment over a
// MIPS executable's entry point and loadable segment contents.
//
// Grounded on antikernel's src/elfsign/main.cpp: the canonical
// data-to-sign buffer (entry point word followed by every PT_LOAD
// segment's in-file bytes, skipping p_vaddr==0 segments), the
// PT_LOPROC+5 signature segment convention, and the HMAC key derivation
// (SHA-512 of the password) are all carried over unchanged; debug/elf
// replaces the original's mmap'd Elf32_Ehdr/Elf32_Phdr structs for
// parsing, with a raw os.File kept alongside for the read-modify-write
// of the signature bytes debug/elf cannot perform.
package elfsign

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"debug/elf"
	"encoding/binary"
	"os"

	"github.com/openjtaghal/jtaghal/jtagerr"
)

// sigSegmentType is PT_LOPROC+5, the reserved program header type this
// scheme repurposes to carry the signature.
const sigSegmentType = elf.PT_LOPROC + 5

// sigSize is the fixed signature segment length; anything else is a
// malformed file.
const sigSize = 32

// unsignedPlaceholder is what an as-built, never-signed image carries in
// its signature region.
var unsignedPlaceholder = bytes.Repeat([]byte{'A'}, sigSize)

// Status classifies a signature segment's content relative to the
// computed expected signature.
type Status int

const (
	// StatusUnsigned means the signature region still holds the
	// 'A'*32 placeholder.
	StatusUnsigned Status = iota
	// StatusValid means the stored signature matches the computed one.
	StatusValid
	// StatusInvalid means the stored signature is neither the
	// placeholder nor a match.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusUnsigned:
		return "unsigned"
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Result reports a Verify or Sign call's finding before any write.
type Result struct {
	Entry     uint32
	SigOffset int64
	Expected  [sigSize]byte
	Stored    [sigSize]byte
	Status    Status
}

// DeriveKey computes the fixed 512-bit HMAC key from a signing password,
// per §4.7 step 5.
func DeriveKey(password []byte) [sha512.Size]byte {
	return sha512.Sum512(password)
}

// canonicalBuffer re-implements the original's data_to_sign vector: the
// entry point word (target byte order, unswapped) followed by the
// in-file bytes of every PT_LOAD segment whose p_vaddr is non-zero, in
// program-header order.
func canonicalBuffer(f *elf.File, raw []byte) ([]byte, error) {
	if f.Class != elf.ELFCLASS32 {
		return nil, jtagerr.New(jtagerr.Framing, "elfsign: not a 32-bit ELF file")
	}
	if f.Data != elf.ELFDATA2MSB {
		return nil, jtagerr.New(jtagerr.Framing, "elfsign: not a big-endian ELF file")
	}
	if f.Type != elf.ET_EXEC {
		return nil, jtagerr.New(jtagerr.Framing, "elfsign: not an executable (ET_EXEC)")
	}
	if f.Machine != elf.EM_MIPS {
		return nil, jtagerr.New(jtagerr.Framing, "elfsign: not a MIPS executable")
	}

	var buf bytes.Buffer
	var entry [4]byte
	binary.BigEndian.PutUint32(entry[:], uint32(f.Entry))
	buf.Write(entry[:])

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Vaddr == 0 {
			continue
		}
		end := p.Off + p.Filesz
		if end > uint64(len(raw)) {
			return nil, jtagerr.New(jtagerr.Framing, "elfsign: PT_LOAD segment at offset %#x extends past end of file", p.Off)
		}
		buf.Write(raw[p.Off:end])
	}
	return buf.Bytes(), nil
}

// locateSignature finds the PT_LOPROC+5 segment and validates its size.
func locateSignature(f *elf.File) (*elf.Prog, error) {
	for _, p := range f.Progs {
		if p.Type != sigSegmentType {
			continue
		}
		if p.Filesz != sigSize {
			return nil, jtagerr.New(jtagerr.Framing, "elfsign: signature segment is %d bytes, want %d", p.Filesz, sigSize)
		}
		return p, nil
	}
	return nil, jtagerr.New(jtagerr.Framing, "elfsign: no PT_LOPROC+5 signature segment found")
}

// Verify computes the expected HMAC and compares it against the stored
// signature, without modifying the file.
func Verify(path string, password []byte) (Result, error) {
	raw, f, err := openELF(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	return compute(raw, password, f)
}

// Sign computes the expected HMAC and overwrites the signature segment
// in place.
func Sign(path string, password []byte) (Result, error) {
	raw, file, err := openELFReadWrite(path)
	if err != nil {
		return Result{}, err
	}
	defer file.Close()

	res, err := compute(raw, password, nil)
	if err != nil {
		return Result{}, err
	}
	if _, err := file.WriteAt(res.Expected[:], res.SigOffset); err != nil {
		return Result{}, jtagerr.Wrap(jtagerr.Framing, err, "elfsign: write signature")
	}
	res.Status = StatusValid
	res.Stored = res.Expected
	return res, nil
}

func compute(raw []byte, password []byte, _ *os.File) (Result, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return Result{}, jtagerr.Wrap(jtagerr.Framing, err, "elfsign: parse ELF")
	}
	defer f.Close()

	data, err := canonicalBuffer(f, raw)
	if err != nil {
		return Result{}, err
	}
	sigProg, err := locateSignature(f)
	if err != nil {
		return Result{}, err
	}

	key := DeriveKey(password)
	mac := hmac.New(sha256.New, key[:])
	mac.Write(data)
	var expected [sigSize]byte
	copy(expected[:], mac.Sum(nil))

	var stored [sigSize]byte
	copy(stored[:], raw[sigProg.Off:sigProg.Off+sigSize])

	res := Result{
		Entry:     uint32(f.Entry),
		SigOffset: int64(sigProg.Off),
		Expected:  expected,
		Stored:    stored,
	}
	switch {
	case bytes.Equal(stored[:], unsignedPlaceholder):
		res.Status = StatusUnsigned
	case hmac.Equal(stored[:], expected[:]):
		res.Status = StatusValid
	default:
		res.Status = StatusInvalid
	}
	return res, nil
}

func openELF(path string) ([]byte, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, jtagerr.Wrap(jtagerr.Framing, err, "elfsign: open %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, nil, jtagerr.Wrap(jtagerr.Framing, err, "elfsign: read %s", path)
	}
	return raw, f, nil
}

func openELFReadWrite(path string) ([]byte, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, jtagerr.Wrap(jtagerr.Framing, err, "elfsign: open %s read-write", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, nil, jtagerr.Wrap(jtagerr.Framing, err, "elfsign: read %s", path)
	}
	return raw, f, nil
}
