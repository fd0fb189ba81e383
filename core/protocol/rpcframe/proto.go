package rpcframe

import (
	"github.com/netkit/netkit/core"
)

// EvFrame fires once a complete frame has been parsed off Recv; data is
// a *Frame.
const EvFrame core.Event = core.EvUser + 400

// WireProtoHandler returns a core.Handler for Connection.ProtoHandler
// that decodes rpcframe frames off Recv and fires EvFrame per frame, the
// same drain-on-EvRead shape protocol/mqtt and protocol/websocket use.
func WireProtoHandler() core.Handler {
	return func(c *core.Connection, ev core.Event, data any) {
		if ev != core.EvRead {
			return
		}
		for {
			buf := c.Recv.Bytes()
			f, n, err := Decode(buf)
			if err != nil {
				c.Fire(core.EvError, err)
				c.Recv.Delete(0, c.Recv.Len())
				return
			}
			if f == nil {
				return
			}
			c.Recv.Delete(0, n)
			c.Fire(EvFrame, f)
		}
	}
}

// Send encodes and writes a frame.
func Send(c *core.Connection, f *Frame) error {
	return c.Write(f.Encode())
}

// SendRequest builds and sends a TypeRequest frame with the given
// metadata and payload.
func SendRequest(c *core.Connection, requestID uint32, metadata, payload []byte) error {
	f := New(TypeRequest, requestID)
	f.Metadata = metadata
	f.Payload = payload
	return Send(c, f)
}

// SendResponse builds and sends a TypeResponse frame.
func SendResponse(c *core.Connection, requestID uint32, payload []byte) error {
	f := New(TypeResponse, requestID)
	f.Payload = payload
	return Send(c, f)
}

// SendError builds and sends a TypeError frame, carrying msg as the
// payload.
func SendError(c *core.Connection, requestID uint32, msg string) error {
	f := New(TypeError, requestID)
	f.Payload = []byte(msg)
	return Send(c, f)
}
