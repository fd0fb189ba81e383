package http

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

func TestWireProtoHandlerServerReceivesRequest(t *testing.T) {
	m := newTestManager(t)

	var gotMethod, gotURI string
	var replied bool
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *core.Connection, ev core.Event, data any) {
		if ev == EvMsg {
			msg := data.(*Message)
			gotMethod, gotURI = msg.Method, msg.URI
			_ = c.Write(Reply(200, nil, "ok"))
			replied = true
		}
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.ProtoHandler = WireProtoHandler(true)

	addr, err := socket.LocalAddr(ln.FD())
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}

	var gotStatus int
	cl, err := m.Connect("tcp://"+addr.String(), func(c *core.Connection, ev core.Event, data any) {
		switch ev {
		case core.EvConnect:
			_ = c.Write([]byte("GET /items?x=1 HTTP/1.1\r\nHost: test\r\n\r\n"))
		case EvMsg:
			gotStatus = data.(*Message).Status
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	cl.ProtoHandler = WireProtoHandler(false)

	pollUntil(t, m, 3*time.Second, func() bool { return replied && gotStatus != 0 })

	if gotMethod != "GET" || gotURI != "/items" {
		t.Fatalf("unexpected request fields: method=%q uri=%q", gotMethod, gotURI)
	}
	if gotStatus != 200 {
		t.Fatalf("unexpected status %d", gotStatus)
	}
}

func TestWireProtoHandlerChunkedRequest(t *testing.T) {
	m := newTestManager(t)

	var chunks [][]byte
	var finalSeen bool
	var assembled *Message
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *core.Connection, ev core.Event, data any) {
		switch ev {
		case EvChunk:
			ch := data.(*Chunk)
			if ch.Final {
				finalSeen = true
			} else {
				chunks = append(chunks, append([]byte(nil), ch.Data...))
			}
		case EvMsg:
			if msg := data.(*Message); msg.IsChunked() {
				assembled = msg
			}
		}
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.ProtoHandler = WireProtoHandler(true)
	addr, _ := socket.LocalAddr(ln.FD())

	_, err = m.Connect("tcp://"+addr.String(), func(c *core.Connection, ev core.Event, data any) {
		if ev == core.EvConnect {
			req := "POST /upload HTTP/1.1\r\nHost: test\r\nTransfer-Encoding: chunked\r\n\r\n"
			req += "5\r\nhello\r\n5\r\nworld\r\n0\r\n\r\n"
			_ = c.Write([]byte(req))
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return finalSeen && assembled != nil })

	if len(chunks) != 2 || string(chunks[0]) != "hello" || string(chunks[1]) != "world" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
	if assembled == nil || string(assembled.Body) != "helloworld" {
		t.Fatalf("unexpected assembled body: %v", assembled)
	}
	if assembled.Method != "POST" || assembled.URI != "/upload" {
		t.Fatalf("assembled message lost its headers: %+v", assembled)
	}
}

func TestDeleteChunkExcludesFromAssembledBody(t *testing.T) {
	m := newTestManager(t)

	var assembled *Message
	ln, err := m.Listen("tcp://127.0.0.1:0", func(c *core.Connection, ev core.Event, data any) {
		switch ev {
		case EvChunk:
			ch := data.(*Chunk)
			if !ch.Final {
				DeleteChunk(c)
			}
		case EvMsg:
			if msg := data.(*Message); msg.IsChunked() {
				assembled = msg
			}
		}
	}, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.ProtoHandler = WireProtoHandler(true)
	addr, _ := socket.LocalAddr(ln.FD())

	_, err = m.Connect("tcp://"+addr.String(), func(c *core.Connection, ev core.Event, data any) {
		if ev == core.EvConnect {
			req := "POST /upload HTTP/1.1\r\nHost: test\r\nTransfer-Encoding: chunked\r\n\r\n"
			req += "5\r\nhello\r\n5\r\nworld\r\n0\r\n\r\n"
			_ = c.Write([]byte(req))
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return assembled != nil })

	if len(assembled.Body) != 0 {
		t.Fatalf("expected empty body after DeleteChunk, got %q", assembled.Body)
	}
}
