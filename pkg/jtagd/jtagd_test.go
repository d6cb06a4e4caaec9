package jtagd

import (
	"net"
	"testing"

	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/jtagerr"
)

func startServer(t *testing.T) *Client {
	t.Helper()

	sim := adapter.NewSimChain(adapter.Info{Name: "sim"}, []adapter.SimDevice{
		{IDCode: 0x12345678, HasIDCode: true, IRLength: 8},
	})
	srv := &Server{Name: "sim-adapter", Serial: "SN001", UserID: "unit-test", Freq: 10_000_000, Adapter: sim}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	go srv.Serve(l)

	c, err := Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInfoRoundTrip(t *testing.T) {
	c := startServer(t)

	info, err := c.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "sim-adapter" || info.SerialNumber != "SN001" || info.MaxFrequency != 10_000_000 {
		t.Errorf("Info = %+v, want name=sim-adapter serial=SN001 freq=10000000", info)
	}
}

func TestShiftDataRoundTripsThroughBypass(t *testing.T) {
	c := startServer(t)

	if err := c.TestLogicReset(); err != nil {
		t.Fatalf("TestLogicReset: %v", err)
	}
	if err := c.ResetToIdle(); err != nil {
		t.Fatalf("ResetToIdle: %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := c.EnterShiftIR(); err != nil {
		t.Fatalf("EnterShiftIR: %v", err)
	}
	if _, err := c.ShiftData(true, []byte{0xFF}, 8); err != nil { // load all-ones IR = BYPASS
		t.Fatalf("ShiftData (IR): %v", err)
	}
	if err := c.LeaveExit1IR(); err != nil {
		t.Fatalf("LeaveExit1IR: %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := c.EnterShiftDR(); err != nil {
		t.Fatalf("EnterShiftDR: %v", err)
	}
	tdo, err := c.ShiftData(true, []byte{0x55}, 8)
	if err != nil {
		t.Fatalf("ShiftData (DR): %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(tdo) != 1 {
		t.Fatalf("ShiftData returned %d bytes, want 1", len(tdo))
	}
	// BYPASS is one flip-flop that captures 0, so TDO is TDI delayed by one
	// bit: 0x55 (LSB first 1,0,1,0,...) comes back as 0xAA.
	if tdo[0] != 0xAA {
		t.Errorf("ShiftData (DR) returned %#02x, want 0xaa (0x55 delayed one bit through BYPASS)", tdo[0])
	}

	counters := c.Counters()
	if counters.ShiftOps != 2 || counters.DataBits != 16 {
		t.Errorf("Counters = %+v, want 2 shift ops / 16 data bits", counters)
	}
}

func TestShiftTMSIsUnimplemented(t *testing.T) {
	c := startServer(t)

	err := c.ShiftTMS(false, []byte{0x01}, 1)
	if kind, ok := jtagerr.KindOf(err); !ok || kind != jtagerr.Unimplemented {
		t.Fatalf("ShiftTMS error = %v, want Unimplemented", err)
	}
}

func TestSplitScanNotSupportedBySimAdapter(t *testing.T) {
	c := startServer(t)

	if c.IsSplitScanSupported() {
		t.Error("IsSplitScanSupported() = true, want false (SimChain has no split-scan pipeline)")
	}
}

func TestHasGPIOFalseForSimAdapter(t *testing.T) {
	c := startServer(t)

	if c.HasGPIO() {
		t.Error("HasGPIO() = true, want false (SimChain implements no GPIOBank)")
	}
}

func TestRemotePerfCountersReflectShiftOps(t *testing.T) {
	c := startServer(t)

	if err := c.ResetToIdle(); err != nil {
		t.Fatalf("ResetToIdle: %v", err)
	}
	if err := c.EnterShiftDR(); err != nil {
		t.Fatalf("EnterShiftDR: %v", err)
	}
	if _, err := c.ShiftData(true, []byte{0x00}, 4); err != nil {
		t.Fatalf("ShiftData: %v", err)
	}
	if err := c.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ops, err := c.RemoteShiftOps()
	if err != nil {
		t.Fatalf("RemoteShiftOps: %v", err)
	}
	if ops != 1 {
		t.Errorf("RemoteShiftOps() = %d, want 1", ops)
	}

	bits, err := c.RemoteDataBits()
	if err != nil {
		t.Fatalf("RemoteDataBits: %v", err)
	}
	if bits != 4 {
		t.Errorf("RemoteDataBits() = %d, want 4", bits)
	}
}
