package websocket

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

func TestWireProtoHandlerReassemblesFragments(t *testing.T) {
	m := newTestManager(t)

	var got string
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *core.Connection, ev core.Event, data any) {
		if ev == EvMsg {
			got = string(data.(*Message).Payload)
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
			var buf []byte
			buf = WriteFrame(buf, OpText, []byte("hel"), false, true)
			buf = WriteFrame(buf, OpContinuation, []byte("lo"), true, true)
			_ = c.Write(buf)
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return got != "" })

	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestWireProtoHandlerAutoPong(t *testing.T) {
	m := newTestManager(t)

	var gotCtl *Message
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *core.Connection, ev core.Event, data any) {
		if ev == EvCtl {
			gotCtl = data.(*Message)
		}
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.ProtoHandler = WireProtoHandler(false)
	addr, _ := socket.LocalAddr(ln.FD())

	var gotPong bool
	_, err = m.Connect("tcp://"+addr.String(), func(c *core.Connection, ev core.Event, data any) {
		switch ev {
		case core.EvConnect:
			_ = c.Write(WriteFrame(nil, OpPing, []byte("ping-payload"), true, true))
		case core.EvRead:
			f, ok, _ := ParseFrame(c.Recv.Bytes())
			if ok && f.OpCode == OpPong && string(f.Payload) == "ping-payload" {
				gotPong = true
			}
			c.Recv.Delete(0, c.Recv.Len())
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return gotPong })

	if gotCtl == nil || gotCtl.OpCode != OpPing || string(gotCtl.Payload) != "ping-payload" {
		t.Fatalf("expected EvCtl for the ping frame, got %v", gotCtl)
	}
}
