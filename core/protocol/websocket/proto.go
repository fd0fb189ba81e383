package websocket

import "github.com/netkit/netkit/core"

// EvMsg fires once a complete (possibly reassembled from fragments)
// text or binary message has arrived; data is a *Message. EvCtl fires
// for every control frame (ping, pong, close), with data a *Message
// carrying the frame's opcode and payload, alongside netkit's own
// auto-reply behavior (ping gets an automatic pong; close gets a
// matching close frame and drains the connection; pong gets no reply).
const (
	EvMsg core.Event = core.EvUser + 100 + iota
	EvCtl
)

// Message is a complete, reassembled WebSocket message, or (for EvCtl)
// a single control frame's opcode and payload.
type Message struct {
	OpCode  OpCode
	Payload []byte
}

type wsState struct {
	masked     bool // true on a client connection: outgoing frames are masked
	fragOp     OpCode
	fragments  [][]byte
	fragmented bool
}

// WireProtoHandler returns a core.Handler for Connection.ProtoHandler
// that accumulates RFC6455 frames off Recv into EvMsg events, per
// original_source/src/ws.c's ws_process: text/binary frames with Fin
// set fire immediately; Fin-unset frames accumulate until a
// continuation frame with Fin set arrives; every control frame fires
// EvCtl before netkit's own auto-reply runs (ping auto-replies with
// pong; close echoes a close frame back and marks the connection
// draining).
//
// masked selects whether frames this side sends should be masked (true
// for a client, false for a server) — RFC6455 §5.1 requires masking
// only on frames sent from client to server.
func WireProtoHandler(masked bool) core.Handler {
	return func(c *core.Connection, ev core.Event, data any) {
		if ev == core.EvRead {
			Init(c, masked)
			c.ProtoData.(*wsState).drain(c)
		}
	}
}

// Init attaches websocket framing state to c, so that Send (called
// before any frame has ever been read) masks correctly. WireProtoHandler
// calls this itself on first EvRead; callers that send immediately
// after a handshake completes, with no read in between, should call it
// explicitly first.
func Init(c *core.Connection, masked bool) {
	if _, ok := c.ProtoData.(*wsState); !ok {
		c.ProtoData = &wsState{masked: masked}
	}
}

func (st *wsState) drain(c *core.Connection) {
	for {
		buf := c.Recv.Bytes()
		frame, ok, err := ParseFrame(buf)
		if err != nil {
			c.Close()
			return
		}
		if !ok {
			return
		}
		st.handleFrame(c, frame)
		c.Recv.Delete(0, frame.Consumed)
	}
}

func (st *wsState) handleFrame(c *core.Connection, f *Frame) {
	switch f.OpCode {
	case OpText, OpBinary:
		if f.Fin {
			c.Fire(EvMsg, &Message{OpCode: f.OpCode, Payload: f.Payload})
			return
		}
		st.fragmented = true
		st.fragOp = f.OpCode
		st.fragments = append(st.fragments[:0], f.Payload)
	case OpContinuation:
		if !st.fragmented {
			return
		}
		st.fragments = append(st.fragments, f.Payload)
		if f.Fin {
			total := 0
			for _, frag := range st.fragments {
				total += len(frag)
			}
			payload := make([]byte, 0, total)
			for _, frag := range st.fragments {
				payload = append(payload, frag...)
			}
			c.Fire(EvMsg, &Message{OpCode: st.fragOp, Payload: payload})
			st.fragmented = false
			st.fragments = nil
		}
	case OpPing:
		c.Fire(EvCtl, &Message{OpCode: f.OpCode, Payload: f.Payload})
		_ = c.Write(Wrap(f.Payload, OpPong, st.masked))
	case OpPong:
		c.Fire(EvCtl, &Message{OpCode: f.OpCode, Payload: f.Payload})
	case OpClose:
		c.Fire(EvCtl, &Message{OpCode: f.OpCode, Payload: f.Payload})
		_ = c.Write(Wrap(nil, OpClose, st.masked))
		c.Drain()
	}
}

// Send wraps payload as a single Fin text or binary frame and writes it
// to c, masking it if c is a client-side connection.
func Send(c *core.Connection, opcode OpCode, payload []byte) error {
	st, _ := c.ProtoData.(*wsState)
	masked := st != nil && st.masked
	return c.Write(Wrap(payload, opcode, masked))
}
