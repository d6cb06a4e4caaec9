package elfsign

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	ehdrSize  = 52
	phdrSize  = 32
	phoff     = ehdrSize
	segOffset = phoff + 2*phdrSize
)

// buildTestELF assembles a minimal 32-bit big-endian MIPS ET_EXEC image
// by hand: one PT_LOAD segment carrying payload, plus a PT_LOPROC+5
// signature segment holding sigContent (32 bytes).
func buildTestELF(t *testing.T, payload []byte, sigContent [32]byte) []byte {
	t.Helper()

	loadOff := uint32(segOffset)
	sigOff := loadOff + uint32(len(payload))

	var buf bytes.Buffer

	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 1 // ELFCLASS32
	ident[5] = 2 // ELFDATA2MSB
	ident[6] = 1 // EV_CURRENT
	buf.Write(ident)

	be := binary.BigEndian
	write16 := func(v uint16) { var b [2]byte; be.PutUint16(b[:], v); buf.Write(b[:]) }
	write32 := func(v uint32) { var b [4]byte; be.PutUint32(b[:], v); buf.Write(b[:]) }

	write16(uint16(elf.ET_EXEC))
	write16(uint16(elf.EM_MIPS))
	write32(1) // e_version
	write32(0x80000000) // e_entry
	write32(phoff)
	write32(0) // e_shoff
	write32(0) // e_flags
	write16(ehdrSize)
	write16(phdrSize)
	write16(2) // e_phnum
	write16(0) // e_shentsize
	write16(0) // e_shnum
	write16(0) // e_shstrndx

	writePhdr := func(typ, offset, vaddr, filesz uint32) {
		write32(typ)
		write32(offset)
		write32(vaddr)
		write32(vaddr) // p_paddr
		write32(filesz)
		write32(filesz) // p_memsz
		write32(5)      // p_flags: R+X
		write32(4)      // p_align
	}
	writePhdr(uint32(elf.PT_LOAD), loadOff, 0x80000000, uint32(len(payload)))
	writePhdr(uint32(elf.PT_LOPROC)+5, sigOff, 0, 32)

	buf.Write(payload)
	buf.Write(sigContent[:])

	return buf.Bytes()
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.elf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestVerifyReportsUnsignedPlaceholder(t *testing.T) {
	var placeholder [32]byte
	copy(placeholder[:], bytes.Repeat([]byte{'A'}, 32))
	path := writeTemp(t, buildTestELF(t, []byte("payload-bytes..."), placeholder))

	res, err := Verify(path, []byte("hunter2"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Status != StatusUnsigned {
		t.Errorf("Status = %v, want StatusUnsigned", res.Status)
	}
	if res.Entry != 0x80000000 {
		t.Errorf("Entry = %#x, want 0x80000000", res.Entry)
	}
}

func TestSignThenVerifyRoundTrips(t *testing.T) {
	var placeholder [32]byte
	copy(placeholder[:], bytes.Repeat([]byte{'A'}, 32))
	path := writeTemp(t, buildTestELF(t, []byte("payload-bytes..."), placeholder))

	password := []byte("correct horse battery staple")
	if _, err := Sign(path, password); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	res, err := Verify(path, password)
	if err != nil {
		t.Fatalf("Verify after sign: %v", err)
	}
	if res.Status != StatusValid {
		t.Errorf("Status = %v, want StatusValid", res.Status)
	}
}

func TestVerifyReportsInvalidForWrongPassword(t *testing.T) {
	var placeholder [32]byte
	copy(placeholder[:], bytes.Repeat([]byte{'A'}, 32))
	path := writeTemp(t, buildTestELF(t, []byte("payload-bytes..."), placeholder))

	if _, err := Sign(path, []byte("correct password")); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	res, err := Verify(path, []byte("wrong password"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Status != StatusInvalid {
		t.Errorf("Status = %v, want StatusInvalid", res.Status)
	}
}

func TestVerifyRejectsBadSignatureSize(t *testing.T) {
	// Build a file whose second program header (the would-be signature
	// segment) has the wrong size, matching step 4's "p_filesz must be
	// exactly 32" rule.
	data := buildTestELF(t, []byte("payload-bytes..."), [32]byte{})
	// p_filesz for the signature segment lives at offset
	// phoff + phdrSize (second header) + 16 (p_type,p_offset,p_vaddr,p_paddr).
	filesOffset := phoff + phdrSize + 16
	binary.BigEndian.PutUint32(data[filesOffset:], 31)

	path := writeTemp(t, data)
	if _, err := Verify(path, []byte("x")); err == nil {
		t.Fatal("Verify succeeded on a malformed signature segment, want error")
	}
}

func TestVerifyRejectsNonMIPSMachine(t *testing.T) {
	data := buildTestELF(t, []byte("payload-bytes..."), [32]byte{})
	binary.BigEndian.PutUint16(data[18:], uint16(elf.EM_ARM))

	path := writeTemp(t, data)
	if _, err := Verify(path, []byte("x")); err == nil {
		t.Fatal("Verify succeeded on a non-MIPS ELF, want error")
	}
}
