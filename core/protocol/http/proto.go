package http

import "github.com/netkit/netkit/core"

// EvMsg fires once a full request (server side) or response (client
// side) has accumulated in Recv; data is a *Message whose fields view
// directly into the connection's receive buffer and are only valid
// until the handler returns, the same borrow rule iobuf.Buffer itself
// documents. For a chunked body, EvMsg fires twice: once with the
// parsed headers as soon as they're available, and again after the
// terminating zero-length chunk, with Body set to every chunk's data
// the handler didn't release via DeleteChunk. EvChunk fires once per
// decoded chunk of a chunked-transfer body, including the final
// zero-length one, with data a *Chunk.
const (
	EvMsg core.Event = core.EvUser + iota
	EvChunk
)

// connState is per-connection parse progress, stashed in
// Connection.ProtoData since the ProtoHandler closure returned by
// WireProtoHandler is shared across every connection a listener or
// dialer produces.
type connState struct {
	// headerDone describes an in-progress chunked message whose headers
	// have already been parsed (and EvMsg already fired for) but whose
	// body isn't fully buffered yet.
	headerDone  bool
	chunkOffset int

	headerMsg  *Message // headers of the chunked message still draining
	body       []byte   // assembled from chunks not released via DeleteChunk
	chunkFreed bool     // DeleteChunk called for the chunk being dispatched
}

// DeleteChunk releases the chunk currently being delivered to EvChunk
// from the assembled body a chunked message's final EvMsg carries,
// matching an application that streams chunk data out itself (to a
// file, say) instead of buffering the whole request. Calling it outside
// an EvChunk handler has no effect.
func DeleteChunk(c *core.Connection) {
	if st, ok := c.ProtoData.(*connState); ok {
		st.chunkFreed = true
	}
}

// WireProtoHandler returns a core.Handler suitable for Connection.ProtoHandler
// that incrementally parses HTTP/1.x off Recv and fires EvMsg (and, for
// chunked bodies, EvChunk) as complete units accumulate, consuming the
// parsed bytes from Recv the way the teacher's handleRead in
// core/engine.go drove core/http.ParseRequest off its own growable read
// buffer — generalized here to run from Connection.Fire's EvRead step
// instead of being called directly from the accept loop, and to handle
// both request and response framing since a netkit Connection can be a
// client or a server.
//
// server selects request framing (true) or response framing (false). A
// listener assigns the returned Handler to its own ProtoHandler field;
// accepted connections inherit it automatically (see Manager.Poll's
// acceptOne). A dialing connection assigns it directly after Connect
// returns.
func WireProtoHandler(server bool) core.Handler {
	return func(c *core.Connection, ev core.Event, data any) {
		if ev == core.EvRead {
			st, _ := c.ProtoData.(*connState)
			if st == nil {
				st = &connState{}
				c.ProtoData = st
			}
			st.drain(c, server)
		}
	}
}

func (st *connState) drain(c *core.Connection, server bool) {
	for {
		if st.headerDone {
			if !st.drainChunks(c) {
				return
			}
			continue
		}
		buf := c.Recv.Bytes()
		if len(buf) == 0 {
			return
		}
		msg, consumed, err := Parse(buf, server)
		if err != nil {
			return // incomplete; wait for more bytes next EvRead
		}
		if msg.IsChunked() {
			c.Fire(EvMsg, msg)
			st.headerDone = true
			st.chunkOffset = consumed
			st.headerMsg = msg
			st.body = nil
			continue
		}
		c.Fire(EvMsg, msg)
		c.Recv.Delete(0, consumed)
	}
}

// drainChunks walks as many complete chunks as are currently buffered,
// past a chunked message's already-fired headers. It reports false,
// leaving Recv untouched, once the buffered chunks run out before the
// terminating zero-length chunk. Once that chunk arrives, it fires EvMsg
// with the headers plus the assembled body, deletes everything consumed
// (headers and all chunks) and resets state so the next call to drain
// starts a fresh message.
func (st *connState) drainChunks(c *core.Connection) bool {
	buf := c.Recv.Bytes()
	for {
		chunk, ok, err := NextChunk(buf[st.chunkOffset:])
		if err != nil || !ok {
			return false
		}
		st.chunkFreed = false
		c.Fire(EvChunk, chunk)
		if !chunk.Final && !st.chunkFreed {
			st.body = append(st.body, chunk.Data...)
		}
		st.chunkOffset += chunk.Consumed
		if chunk.Final {
			final := *st.headerMsg
			final.Body = st.body
			final.Whole = buf[:st.chunkOffset]
			c.Fire(EvMsg, &final)

			c.Recv.Delete(0, st.chunkOffset)
			st.headerDone = false
			st.chunkOffset = 0
			st.headerMsg = nil
			st.body = nil
			return true
		}
	}
}
