// Package nocswitch implements the TCP NoC switch daemon from
// SPEC_FULL.md §4.5: a single process fanning RPC/DMA frames between
// many TCP clients and one hardware-side bridge, allocating each client
// a synthetic ephemeral endpoint address.
//
// Grounded on antikernel's usage patterns in tests/NocSwitchDMAPing and
// tests/NocSwitchDMARace (one allocated endpoint per client, frames
// re-stamped with that endpoint on the way to the bridge) and on the
// teacher's goroutine-per-connection daemon shape, rewritten around
// pkg/noc's frame types instead of a raw byte-pipe relay.
package nocswitch

import (
	"log"
	"net"
	"sync"

	"github.com/openjtaghal/jtaghal/jtagerr"
	"github.com/openjtaghal/jtaghal/pkg/noc"
)

// ephemeralBase and ephemeralTop bound the endpoint address range the
// switch allocates to clients, per §3's "ephemeral client addresses"
// and §4.5's `[0xC000, 0xFFFF]` allocation window. 0xFFFF itself is the
// broadcast address and is never allocated to a client.
const (
	ephemeralBase = 0xC000
	ephemeralTop  = 0xFFFE
)

// clientSendQueueDepth bounds the per-client outbound channel; a full
// channel means "drop and count" rather than block the bridge path, per
// §4.5's backpressure rule.
const clientSendQueueDepth = 256

// client is the switch's per-connection state.
type client struct {
	endpoint uint16
	conn     net.Conn
	send     chan frame
	dropped  uint64
}

type frame struct {
	rpc *noc.RPCFrame
	dma *noc.DMAFrame
}

// Switch owns the endpoint allocator and the live client set. The zero
// value is not usable; construct with New.
type Switch struct {
	bridge net.Conn

	mu        sync.Mutex
	clients   map[uint16]*client
	nextFree  uint16
	freePool  []uint16
	unknownTo uint64
}

// New creates a Switch relaying frames to the given bridge connection
// (a second TCP endpoint representing the hardware-side bridge, or an
// in-process simulated bridge in tests).
func New(bridge net.Conn) *Switch {
	return &Switch{
		bridge:   bridge,
		clients:  make(map[uint16]*client),
		nextFree: ephemeralBase,
	}
}

// Serve accepts connections from l until it returns an error (including
// on listener close), running each client to completion in its own
// goroutine.
func (s *Switch) Serve(l net.Listener) error {
	go s.readBridge()

	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handleClient(conn)
	}
}

func (s *Switch) allocate() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.freePool); n > 0 {
		ep := s.freePool[n-1]
		s.freePool = s.freePool[:n-1]
		return ep, nil
	}
	if s.nextFree > ephemeralTop {
		return 0, jtagerr.New(jtagerr.GIGO, "nocswitch: ephemeral endpoint space exhausted")
	}
	ep := s.nextFree
	s.nextFree++
	return ep, nil
}

// release returns an endpoint to the free pool. The caller is
// responsible for the grace-interval delay §4.5 calls for before
// in-flight bridge replies have necessarily drained.
func (s *Switch) release(ep uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freePool = append(s.freePool, ep)
}

func (s *Switch) handleClient(conn net.Conn) {
	defer conn.Close()

	ep, err := s.allocate()
	if err != nil {
		log.Printf("nocswitch: rejecting connection from %s: %v", conn.RemoteAddr(), err)
		return
	}

	c := &client{endpoint: ep, conn: conn, send: make(chan frame, clientSendQueueDepth)}
	s.mu.Lock()
	s.clients[ep] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, ep)
		s.mu.Unlock()
		s.release(ep)
		close(c.send)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeToClient(c)
	}()

	s.readFromClient(c)
	wg.Wait()
}

// readFromClient relays frames from one client socket to the bridge,
// stamping from=endpoint on every frame regardless of what the client
// wrote, per §4.5.
func (s *Switch) readFromClient(c *client) {
	for {
		rpc, dma, err := noc.ReadFrame(c.conn)
		if err != nil {
			return
		}
		if rpc != nil {
			rpc.From = c.endpoint
			if err := noc.WriteRPC(s.bridge, *rpc); err != nil {
				return
			}
		}
		if dma != nil {
			dma.From = c.endpoint
			if err := noc.WriteDMA(s.bridge, *dma); err != nil {
				return
			}
		}
	}
}

// writeToClient drains a client's outbound queue to its socket; this is
// the one mutex-free goroutine-owns-its-sink writer per direction §4.5
// calls for.
func (s *Switch) writeToClient(c *client) {
	for f := range c.send {
		var err error
		switch {
		case f.rpc != nil:
			err = noc.WriteRPC(c.conn, *f.rpc)
		case f.dma != nil:
			err = noc.WriteDMA(c.conn, *f.dma)
		}
		if err != nil {
			return
		}
	}
}

// readBridge relays frames arriving from the bridge to whichever
// client(s) they address, applying the switching rules from §4.5.
func (s *Switch) readBridge() {
	for {
		rpc, dma, err := noc.ReadFrame(s.bridge)
		if err != nil {
			return
		}
		var to uint16
		switch {
		case rpc != nil:
			to = rpc.To
		case dma != nil:
			to = dma.To
		}

		if to == 0xFFFF {
			s.broadcast(frame{rpc: rpc, dma: dma})
			continue
		}

		s.mu.Lock()
		target, ok := s.clients[to]
		s.mu.Unlock()
		if !ok {
			s.mu.Lock()
			s.unknownTo++
			s.mu.Unlock()
			continue
		}
		s.deliver(target, frame{rpc: rpc, dma: dma})
	}
}

func (s *Switch) broadcast(f frame) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.deliver(c, f)
	}
}

// deliver enqueues f for c without ever blocking the bridge-reading
// goroutine: a full channel means the frame is dropped and counted.
func (s *Switch) deliver(c *client, f frame) {
	select {
	case c.send <- f:
	default:
		s.mu.Lock()
		c.dropped++
		s.mu.Unlock()
		log.Printf("nocswitch: dropped frame for endpoint %#04x, client backpressured", c.endpoint)
	}
}

// UnknownDestinationCount reports how many bridge frames were dropped
// for addressing an endpoint with no live client, the counter §4.5's
// "dropped with a counter increment" rule calls for.
func (s *Switch) UnknownDestinationCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unknownTo
}
