package core

import (
	"testing"
	"time"

	"github.com/netkit/netkit/core/observability"
	"github.com/netkit/netkit/core/socket"
)

func TestWithMonitorRecordsEventDispatch(t *testing.T) {
	m := newTestManager(t)
	pm := observability.NewPerformanceMonitor()
	m.WithMonitor(pm)

	if m.Monitor() != pm {
		t.Fatal("Monitor() did not return the attached PerformanceMonitor")
	}

	var serverGotData bool
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *Connection, ev Event, data any) {
		if ev == EvRead {
			serverGotData = true
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

	_, err = m.Connect("tcp://"+addr.String(), func(c *Connection, ev Event, data any) {
		if ev == EvConnect {
			_ = c.Write([]byte("ping"))
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return serverGotData })

	if pm.EventCount(EvRead.String()) == 0 {
		t.Fatal("expected at least one READ event recorded against the monitor")
	}
	if pm.EventCount(EvConnect.String()) == 0 {
		t.Fatal("expected at least one CONNECT event recorded against the monitor")
	}
}

func TestWithoutMonitorDoesNotPanic(t *testing.T) {
	m := newTestManager(t)

	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *Connection, ev Event, data any) {}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr, _ := socket.LocalAddr(ln.FD())

	var connected bool
	_, err = m.Connect("tcp://"+addr.String(), func(c *Connection, ev Event, data any) {
		if ev == EvConnect {
			connected = true
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return connected })
}
