package jtagd

import (
	"log"
	"net"
	"sync"

	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/jtagerr"
)

// Server wraps a single physical (or simulated) adapter and speaks the
// jtagd wire protocol to any number of concurrently connected clients.
// One goroutine per connection; the adapter mutex is acquired per
// request rather than held across a connection's lifetime, per §4.6's
// "must not starve other clients" concurrency rule.
type Server struct {
	Name   string
	Serial string
	UserID string
	Freq   int

	Adapter adapter.Adapter

	mu sync.Mutex
}

// Serve accepts connections from l until it returns an error, handling
// each on its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		op, err := readUint8(conn)
		if err != nil {
			return
		}
		if err := s.dispatch(conn, opcode(op)); err != nil {
			log.Printf("jtagd: connection %s: %v", conn.RemoteAddr(), err)
			return
		}
		if opcode(op) == opQuit {
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, op opcode) error {
	switch op {
	case opGetName:
		return writePascalString(conn, s.Name)
	case opGetSerial:
		return writePascalString(conn, s.Serial)
	case opGetUserID:
		return writePascalString(conn, s.UserID)
	case opGetFreq:
		return writeUint32(conn, uint32(s.Freq))

	case opShiftData, opShiftDataWO:
		return s.handleShiftData(conn, op == opShiftDataWO)
	case opShiftDataWriteOnly:
		return s.handleShiftDataWriteOnly(conn)
	case opShiftDataReadOnly:
		return s.handleShiftDataReadOnly(conn)
	case opSplitSupported:
		supported := adapter.SupportsSplitScan(s.Adapter)
		return writeUint8(conn, boolToByte(supported))

	case opDummyClock:
		n, err := readUint32(conn)
		if err != nil {
			return err
		}
		return s.withAdapter(func() error { return s.Adapter.IdleClocks(int(n)) })
	case opDummyClockDeferred:
		// No write buffering layer sits in front of this adapter, so a
		// deferred dummy-clock request is applied immediately; the
		// client still issues Commit() afterward per the protocol.
		n, err := readUint32(conn)
		if err != nil {
			return err
		}
		return s.withAdapter(func() error { return s.Adapter.IdleClocks(int(n)) })

	case opTLR:
		return s.withAdapter(func() error { return s.Adapter.ResetTAP(false) })
	case opEnterSIR:
		return s.withAdapter(func() error { return s.Adapter.ShiftTMS(false, []byte{0x03}, 4) })
	case opLeaveE1IR:
		// Exit1-IR -(1)-> Update-IR -(0)-> Run-Test/Idle.
		return s.withAdapter(func() error { return s.Adapter.ShiftTMS(false, []byte{0x01}, 2) })
	case opEnterSDR:
		return s.withAdapter(func() error { return s.Adapter.ShiftTMS(false, []byte{0x01}, 3) })
	case opLeaveE1DR:
		// Exit1-DR -(1)-> Update-DR -(0)-> Run-Test/Idle.
		return s.withAdapter(func() error { return s.Adapter.ShiftTMS(false, []byte{0x01}, 2) })
	case opResetIdle:
		// Test-Logic-Reset -(0)-> Run-Test/Idle.
		return s.withAdapter(func() error { return s.Adapter.ShiftTMS(false, []byte{0x00}, 1) })

	case opCommit:
		if err := s.withAdapter(func() error { return adapter.Flush(s.Adapter) }); err != nil {
			return err
		}
		return writeUint8(conn, 0)

	case opHasGPIO:
		_, ok := s.Adapter.(adapter.GPIOBank)
		return writeUint8(conn, boolToByte(ok))
	case opGetGPIOPinCount:
		bank, ok := s.Adapter.(adapter.GPIOBank)
		count := 0
		if ok {
			count = bank.GPIOPinCount()
		}
		return writeUint8(conn, uint8(count))
	case opReadGPIOState:
		return s.handleReadGPIOState(conn)
	case opWriteGPIOState:
		return s.handleWriteGPIOState(conn)

	case opPerfShiftOps:
		return writeUint64(conn, s.Adapter.Counters().ShiftOps)
	case opPerfRecoverableErrs:
		return writeUint64(conn, s.Adapter.Counters().RecoverableErrors)
	case opPerfDataBits:
		return writeUint64(conn, s.Adapter.Counters().DataBits)
	case opPerfModeBits:
		return writeUint64(conn, s.Adapter.Counters().ModeBits)
	case opPerfDummyClocks:
		return writeUint64(conn, s.Adapter.Counters().IdleClocks)
	case opPerfShiftTime:
		return writeUint64(conn, uint64(s.Adapter.Counters().ShiftTime))

	case opQuit:
		return nil

	default:
		return jtagerr.New(jtagerr.Framing, "jtagd: unrecognized opcode %#x", byte(op))
	}
}

func (s *Server) withAdapter(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Server) handleShiftData(conn net.Conn, writeOnly bool) error {
	lastTMS, err := readUint8(conn)
	if err != nil {
		return err
	}
	count, err := readUint32(conn)
	if err != nil {
		return err
	}
	data, err := readBytes(conn, bitsToBytes(int(count)))
	if err != nil {
		return err
	}

	var rcv []byte
	err = s.withAdapter(func() error {
		var e error
		rcv, e = s.Adapter.ShiftData(byteToBool(lastTMS), data, int(count))
		return e
	})
	if err != nil {
		return err
	}
	if writeOnly {
		return nil
	}
	return writeBytes(conn, rcv)
}

func (s *Server) handleShiftDataWriteOnly(conn net.Conn) error {
	lastTMS, err := readUint8(conn)
	if err != nil {
		return err
	}
	count, err := readUint32(conn)
	if err != nil {
		return err
	}
	wantResponse, err := readUint8(conn)
	if err != nil {
		return err
	}
	data, err := readBytes(conn, bitsToBytes(int(count)))
	if err != nil {
		return err
	}

	var rcv []byte
	shiftErr := s.withAdapter(func() error {
		var e error
		rcv, e = s.Adapter.ShiftData(byteToBool(lastTMS), data, int(count))
		return e
	})
	if shiftErr != nil {
		return writeUint8(conn, statusFailed)
	}
	if err := writeUint8(conn, statusOK); err != nil {
		return err
	}
	if wantResponse != 0 {
		return writeBytes(conn, rcv)
	}
	return nil
}

// handleShiftDataReadOnly always reports the read as already completed
// (status 0) since this server has no split-scan pipeline of its own to
// defer into; a genuinely split-capable backend would report status 1
// and stream the captured bits on a later request.
func (s *Server) handleShiftDataReadOnly(conn net.Conn) error {
	if _, err := readUint32(conn); err != nil {
		return err
	}
	return writeUint8(conn, statusOK)
}

func (s *Server) handleReadGPIOState(conn net.Conn) error {
	bank, ok := s.Adapter.(adapter.GPIOBank)
	if !ok {
		return jtagerr.New(jtagerr.GIGO, "jtagd: READ_GPIO_STATE on a non-GPIO adapter")
	}
	var mask uint32
	err := s.withAdapter(func() error {
		var e error
		mask, e = bank.ReadGPIO()
		return e
	})
	if err != nil {
		return err
	}
	count := bank.GPIOPinCount()
	buf := make([]byte, count)
	for i := 0; i < count; i++ {
		if mask&(1<<uint(i)) != 0 {
			buf[i] = 1 // bit0 = value; bit1 (direction) is not modeled by GPIOBank
		}
	}
	return writeBytes(conn, buf)
}

func (s *Server) handleWriteGPIOState(conn net.Conn) error {
	bank, ok := s.Adapter.(adapter.GPIOBank)
	if !ok {
		return jtagerr.New(jtagerr.GIGO, "jtagd: WRITE_GPIO_STATE on a non-GPIO adapter")
	}
	count := bank.GPIOPinCount()
	buf, err := readBytes(conn, count)
	if err != nil {
		return err
	}
	var mask uint32
	for i, v := range buf {
		if v&1 != 0 {
			mask |= 1 << uint(i)
		}
	}
	return s.withAdapter(func() error { return bank.WriteGPIO(mask) })
}
