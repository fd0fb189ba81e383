package mqtt

import (
	"net/netip"
	"testing"
	"time"

	"github.com/netkit/netkit/core"
	"github.com/netkit/netkit/core/socket"
)

func newTestManager(t *testing.T) *core.Manager {
	t.Helper()
	m, err := core.New(netip.MustParseAddrPort("8.8.8.8:53"))
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	t.Cleanup(m.Free)
	return m
}

func pollUntil(t *testing.T, m *core.Manager, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := m.Poll(20); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if cond() {
			return
		}
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestQoS1PublishIsAcked(t *testing.T) {
	m := newTestManager(t)

	var serverGotPublish bool
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *core.Connection, ev core.Event, data any) {
		if ev == EvPublish {
			serverGotPublish = true
		}
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.ProtoHandler = WireProtoHandler(false)
	addr, err := socket.LocalAddr(ln.FD())
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}

	var gotAck uint16
	var sentID uint16
	clReady := false
	cl, err := m.Connect("tcp://"+addr.String(), func(c *core.Connection, ev core.Event, data any) {
		switch ev {
		case core.EvConnect:
			sentID = Publish(c, "a/b", []byte("hi"), QoS1, false)
			clReady = true
		case EvAck:
			gotAck = data.(uint16)
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	cl.ProtoHandler = WireProtoHandler(true)

	pollUntil(t, m, 3*time.Second, func() bool { return clReady && serverGotPublish && gotAck != 0 })

	if gotAck != sentID {
		t.Fatalf("gotAck=%d, want %d", gotAck, sentID)
	}
}

func TestQoS2PublishCompletesFourPacketExchange(t *testing.T) {
	m := newTestManager(t)

	ln, err := m.Listen("tcp://127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.ProtoHandler = WireProtoHandler(false)
	addr, _ := socket.LocalAddr(ln.FD())

	var completed bool
	var sentID uint16
	cl, err := m.Connect("tcp://"+addr.String(), func(c *core.Connection, ev core.Event, data any) {
		switch ev {
		case core.EvConnect:
			sentID = Publish(c, "a/b", []byte("hi"), QoS2, false)
		case EvAck:
			if data.(uint16) == sentID {
				completed = true
			}
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	cl.ProtoHandler = WireProtoHandler(true)

	pollUntil(t, m, 3*time.Second, func() bool { return completed })
}

func TestEvCmdFiresForEveryPacket(t *testing.T) {
	m := newTestManager(t)

	var cmdCount int
	var sawPublishPacket bool
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *core.Connection, ev core.Event, data any) {
		if ev == EvCmd {
			cmdCount++
			if data.(*Packet).Type == PacketPublish {
				sawPublishPacket = true
			}
		}
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.ProtoHandler = WireProtoHandler(false)
	addr, err := socket.LocalAddr(ln.FD())
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}

	_, err = m.Connect("tcp://"+addr.String(), func(c *core.Connection, ev core.Event, data any) {
		if ev == core.EvConnect {
			Publish(c, "a/b", []byte("hi"), QoS0, false)
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return sawPublishPacket })

	if cmdCount == 0 {
		t.Fatal("expected EvCmd to fire for the inbound PUBLISH packet")
	}
}

func TestAllocIDWrapsPastZero(t *testing.T) {
	st := &idState{nextID: 0xffff}
	if id := st.allocID(); id != 1 {
		t.Fatalf("expected wraparound to skip 0, got %d", id)
	}
}
