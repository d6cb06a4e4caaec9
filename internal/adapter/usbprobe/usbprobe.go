package usbprobe

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/internal/bitio"
)

// Adapter is a CMSIS-DAP-style USB probe implementing internal/adapter.Adapter.
//
// Grounded on pkg/jtag/cmsisdap.go's CMSISDAPAdapter: the connect/query
// sequence and reset/clock command usage are carried over, with ShiftIR
// and ShiftDR collapsed into the single ShiftData primitive the rest of
// this module expects, and run-length TMS encoding moved into ShiftTMS.
type Adapter struct {
	usb   *usbTransport
	proto *protocol

	info    adapter.Info
	speedHz int

	mu sync.Mutex

	counters adapter.Counters
}

// Open connects to a CMSIS-DAP-style probe at the given VID:PID and
// switches it into JTAG mode.
func Open(vid, pid uint16) (*Adapter, error) {
	usb, err := openUSBTransport(vid, pid)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		usb:     usb,
		proto:   newProtocol(usb.packetSize),
		speedHz: 1_000_000,
	}

	if err := a.queryInfo(); err != nil {
		usb.close()
		return nil, fmt.Errorf("usbprobe: query info: %w", err)
	}
	if err := a.connect(); err != nil {
		usb.close()
		return nil, fmt.Errorf("usbprobe: connect: %w", err)
	}
	if err := a.SetSpeed(a.speedHz); err != nil {
		usb.close()
		return nil, fmt.Errorf("usbprobe: set default speed: %w", err)
	}
	return a, nil
}

func (a *Adapter) queryInfo() error {
	get := func(id byte) string {
		resp, err := a.usb.writeRead(a.proto.encodeInfo(id))
		if err != nil {
			return ""
		}
		s, _ := a.proto.decodeInfo(resp)
		return s
	}

	vendor := get(infoVendorID)
	product := get(infoProductID)
	serial := get(infoSerialNum)

	resp, err := a.usb.writeRead(a.proto.encodeInfo(infoFirmwareVer))
	var major, minor int
	if err == nil {
		if s, derr := a.proto.decodeInfo(resp); derr == nil && len(s) >= 2 {
			word := binary.LittleEndian.Uint16([]byte(s[:2]))
			major, minor = decodeFirmwareVersion(word)
		}
	}

	a.info = adapter.Info{
		Name:          "CMSIS-DAP Probe",
		Vendor:        vendor,
		Model:         product,
		SerialNumber:  serial,
		FirmwareMajor: major,
		FirmwareMinor: minor,
		MinFrequency:  1_000,
		MaxFrequency:  10_000_000,
	}
	return nil
}

func (a *Adapter) connect() error {
	resp, err := a.usb.writeRead(a.proto.encodeConnect())
	if err != nil {
		return err
	}
	return a.proto.decodeConnect(resp)
}

func (a *Adapter) Info() (adapter.Info, error) { return a.info, nil }

func (a *Adapter) Counters() adapter.Counters { return a.counters }

func (a *Adapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return fmt.Errorf("usbprobe: frequency %d Hz out of range [%d, %d]", hz, a.info.MinFrequency, a.info.MaxFrequency)
	}
	resp, err := a.usb.writeRead(a.proto.encodeSetClock(uint32(hz)))
	if err != nil {
		return fmt.Errorf("usbprobe: set clock: %w", err)
	}
	if err := a.proto.decodeSetClock(resp); err != nil {
		return err
	}
	a.speedHz = hz
	return nil
}

func (a *Adapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hard {
		resp, err := a.usb.writeRead(a.proto.encodeResetTarget())
		if err != nil {
			return fmt.Errorf("usbprobe: hard reset: %w", err)
		}
		return a.proto.decodeResetTarget(resp)
	}
	return a.shiftTMSLocked(false, bitio.BoolsToBytes(bitio.AllBits(5, true)), 5)
}

func (a *Adapter) IdleClocks(n int) error {
	if n <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.shiftTMSLocked(false, bitio.BoolsToBytes(bitio.AllBits(n, false)), n); err != nil {
		return err
	}
	a.counters.IdleClocks += uint64(n)
	return nil
}

// ShiftData shifts bits of tx through TDI/TDO, holding TMS low except on
// the final bit when lastTMS is set.
func (a *Adapter) ShiftData(lastTMS bool, tx []byte, bits int) ([]byte, error) {
	if _, err := adapter.ValidateShiftBuffers(tx, bits); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	txBits := bitio.BytesToBools(padBytes(tx, bits), bits)
	seqs, counts := buildDataSequences(lastTMS, txBits)

	resp, err := a.usb.writeRead(a.proto.encodeJTAGSequence(seqs))
	if err != nil {
		return nil, fmt.Errorf("usbprobe: shift data: %w", err)
	}
	tdoBufs, err := a.proto.decodeJTAGSequence(resp, seqs)
	if err != nil {
		return nil, err
	}

	var rxBits []bool
	for i, buf := range tdoBufs {
		rxBits = append(rxBits, bitio.BytesToBools(buf, counts[i])...)
	}
	a.counters.ShiftOps++
	a.counters.DataBits += uint64(bits)
	return bitio.BoolsToBytes(rxBits), nil
}

// ShiftTMS clocks bits TMS bits while holding TDI at tdiLevel.
func (a *Adapter) ShiftTMS(tdiLevel bool, tms []byte, bits int) error {
	if bits <= 0 {
		return fmt.Errorf("usbprobe: bits must be positive, got %d", bits)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.shiftTMSLocked(tdiLevel, tms, bits); err != nil {
		return err
	}
	a.counters.ModeBits += uint64(bits)
	return nil
}

func (a *Adapter) shiftTMSLocked(tdiLevel bool, tms []byte, bits int) error {
	tmsBits := bitio.BytesToBools(padBytes(tms, bits), bits)
	seqs := buildTMSSequences(tdiLevel, tmsBits)

	resp, err := a.usb.writeRead(a.proto.encodeJTAGSequence(seqs))
	if err != nil {
		return fmt.Errorf("usbprobe: shift TMS: %w", err)
	}
	_, err = a.proto.decodeJTAGSequence(resp, seqs)
	return err
}

// Close releases the underlying USB handle.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.usb.writeRead(a.proto.encodeDisconnect())
	return a.usb.close()
}

// buildDataSequences splits a shift into <=64-bit DAP_JTAG_Sequence chunks,
// holding TMS low throughout except for a one-bit trailing chunk carrying
// lastTMS when set, since a single sequence can only carry one TMS value.
func buildDataSequences(lastTMS bool, txBits []bool) (seqs []sequence, counts []int) {
	total := len(txBits)
	pos := 0
	for pos < total {
		n := total - pos
		if n > 64 {
			n = 64
		}

		// A single sequence carries one TMS value, so when this chunk
		// would reach the end and lastTMS is set, peel the final bit
		// into its own one-bit sequence.
		if pos+n == total && lastTMS && n > 1 {
			n--
		}

		tms := pos+n == total && lastTMS
		seqs = append(seqs, newSequence(n, tms, true, bitio.BoolsToBytes(txBits[pos:pos+n])))
		counts = append(counts, n)
		pos += n
	}
	return seqs, counts
}

// buildTMSSequences run-length encodes tms, which may change on every bit,
// into <=64-bit chunks sharing a single TMS value, with tdi held at
// tdiLevel throughout.
func buildTMSSequences(tdiLevel bool, tmsBits []bool) []sequence {
	var seqs []sequence
	pos := 0
	for pos < len(tmsBits) {
		val := tmsBits[pos]
		n := 0
		for pos+n < len(tmsBits) && n < 64 && tmsBits[pos+n] == val {
			n++
		}
		seqs = append(seqs, newSequence(n, val, false, bitio.BoolsToBytes(bitio.AllBits(n, tdiLevel))))
		pos += n
	}
	return seqs
}

func padBytes(b []byte, bits int) []byte {
	need := (bits + 7) / 8
	if len(b) >= need {
		return b
	}
	out := make([]byte, need)
	copy(out, b)
	return out
}
