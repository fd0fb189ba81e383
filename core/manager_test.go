package core

import (
	"net/netip"
	"testing"
	"time"

	"github.com/netkit/netkit/core/socket"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(netip.MustParseAddrPort("8.8.8.8:53"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Free)
	return m
}

// pollUntil drives m.Poll in a tight loop until cond returns true or the
// deadline elapses, the way a single-threaded event loop test has to
// since there is no blocking "wait for event" API by design.
func pollUntil(t *testing.T, m *Manager, timeout time.Duration, cond func() bool) {
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

func TestListenAcceptEcho(t *testing.T) {
	m := newTestManager(t)

	var serverGotOpen, serverGotData bool
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *Connection, ev Event, data any) {
		switch ev {
		case EvAccept:
			serverGotOpen = true
		case EvRead:
			serverGotData = true
			_ = c.Write(c.Recv.Bytes())
			c.Recv.Delete(0, c.Recv.Len())
		}
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr, err := socket.LocalAddr(ln.FD())
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}

	var clientGotReply bool
	var replyBytes []byte
	cl, err := m.Connect("tcp://"+addr.String(), func(c *Connection, ev Event, data any) {
		switch ev {
		case EvConnect:
			_ = c.Write([]byte("ping"))
		case EvRead:
			replyBytes = append(replyBytes, c.Recv.Bytes()...)
			clientGotReply = true
			c.Recv.Delete(0, c.Recv.Len())
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = cl

	pollUntil(t, m, 3*time.Second, func() bool { return serverGotOpen && serverGotData && clientGotReply })

	if string(replyBytes) != "ping" {
		t.Fatalf("reply = %q, want %q", replyBytes, "ping")
	}
}

func TestDrainClosesAfterFlush(t *testing.T) {
	m := newTestManager(t)

	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *Connection, ev Event, data any) {
		if ev == EvAccept {
			_ = c.Write([]byte("bye"))
			c.Drain()
		}
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr, _ := socket.LocalAddr(ln.FD())

	var closed bool
	_, err = m.Connect("tcp://"+addr.String(), func(c *Connection, ev Event, data any) {
		if ev == EvClose {
			closed = true
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return closed })
}

func TestMakePipeWakeup(t *testing.T) {
	m := newTestManager(t)

	var woke bool
	pipe, err := m.MakePipe(func(c *Connection, ev Event, data any) {
		if ev == EvRead {
			woke = true
		}
	}, nil)
	if err != nil {
		t.Fatalf("MakePipe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = m.Wakeup(pipe)
		close(done)
	}()

	pollUntil(t, m, 3*time.Second, func() bool { return woke })
	<-done
}

func TestTimerFiresDuringPoll(t *testing.T) {
	m := newTestManager(t)
	var fired bool
	m.Timers.Add(time.Now(), 10*time.Millisecond, 0, func(any) { fired = true }, nil)

	pollUntil(t, m, 3*time.Second, func() bool { return fired })
}
