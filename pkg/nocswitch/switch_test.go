package nocswitch

import (
	"net"
	"testing"
	"time"

	"github.com/openjtaghal/jtaghal/pkg/noc"
)

func startSwitch(t *testing.T) (clientConn net.Conn, bridgeConn net.Conn) {
	t.Helper()

	bridgeServer, bridgeClient := net.Pipe()
	sw := New(bridgeClient)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	go sw.Serve(l)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, bridgeServer
}

// TestClientFrameIsStampedWithAllocatedEndpoint matches §4.5: a frame
// arriving from a client has its "from" field overwritten with that
// client's allocated endpoint before reaching the bridge.
func TestClientFrameIsStampedWithAllocatedEndpoint(t *testing.T) {
	conn, bridge := startSwitch(t)

	if err := noc.WriteRPC(conn, noc.RPCFrame{From: 0x9999, To: 0x0010, Type: noc.RPCCall}); err != nil {
		t.Fatalf("WriteRPC: %v", err)
	}

	bridge.SetReadDeadline(time.Now().Add(2 * time.Second))
	rpc, dma, err := noc.ReadFrame(bridge)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if dma != nil || rpc == nil {
		t.Fatalf("got dma=%v rpc=%v, want an RPC frame", dma, rpc)
	}
	if rpc.From != ephemeralBase {
		t.Errorf("From = %#04x, want the first allocated endpoint %#04x (client-supplied from must be ignored)", rpc.From, ephemeralBase)
	}
	if rpc.To != 0x0010 {
		t.Errorf("To = %#04x, want 0x0010", rpc.To)
	}
}

// TestBridgeFrameReachesAddressedClient matches §4.5's forwarding rule
// for frames arriving from the bridge addressed to an allocated client.
func TestBridgeFrameReachesAddressedClient(t *testing.T) {
	conn, bridge := startSwitch(t)

	// Give the switch a moment to register the client's endpoint before
	// addressing a frame to it.
	if err := noc.WriteRPC(conn, noc.RPCFrame{To: 1}); err != nil {
		t.Fatalf("priming WriteRPC: %v", err)
	}
	bridge.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := noc.ReadFrame(bridge); err != nil {
		t.Fatalf("priming ReadFrame: %v", err)
	}

	if err := noc.WriteRPC(bridge, noc.RPCFrame{From: 0x0010, To: ephemeralBase, Type: noc.RPCReturnSuccess}); err != nil {
		t.Fatalf("WriteRPC from bridge: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	rpc, _, err := noc.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame at client: %v", err)
	}
	if rpc.From != 0x0010 {
		t.Errorf("From = %#04x, want 0x0010", rpc.From)
	}
}
