package core

import (
	"net/netip"
	"time"

	"github.com/netkit/netkit/core/iobuf"
	"github.com/netkit/netkit/core/tlsdrv"
)

// Flag is a bitmask of the mutually-compatible state flags spec.md §3
// exposes on every connection. Exactly one of Listening|Client|Accepted
// is set for the lifetime of a connection that owns a real socket; a
// pipe connection (see Manager.MakePipe) sets none of the three.
type Flag uint32

const (
	FlagListening Flag = 1 << iota
	FlagClient
	FlagAccepted
	FlagResolving
	FlagConnecting
	FlagTLS
	FlagTLSHandshake
	FlagUDP
	FlagWebSocket
	FlagHexdumping
	FlagDraining
	FlagClosing
	FlagReadable
	FlagWritable
	FlagPipe
)

// Has reports whether all bits in f are set.
func (fl Flag) Has(f Flag) bool { return fl&f == f }

// MaxRecvBufSize bounds how large Recv may grow before a connection is
// considered misbehaving and drained/closed, per spec.md §4.6 step 3e.
// A var rather than a const so an application can tune it from
// config.Config.RecvBufferCap at startup.
var MaxRecvBufSize = 16 << 20

// Connection is one TCP, UDP or pipe endpoint owned by a Manager. Its
// identity, peer address, buffers and handler fields are public, the way
// the teacher's Connection struct in core/engine.go exposes its own; the
// socket handle, TLS state, state flags, resolve state and list links are
// unexported and read through accessor methods (FD, Flags, IsListening
// and the rest). The struct is generalized
// from one fixed HTTP-only state machine to the full resolve / connect /
// TLS-handshake / steady-state / drain lifecycle spec.md §4.6 describes.
type Connection struct {
	ID    uint64
	Label string
	Mgr   *Manager

	fd   int
	Peer netip.AddrPort

	Recv *iobuf.Buffer
	Send *iobuf.Buffer

	Handler      Handler
	UserData     any
	ProtoHandler Handler
	ProtoData    any

	tls        *tlsdrv.Driver
	pendingTLS *tlsdrv.Config

	flags Flag

	// resolve state
	dnsTxID     uint16
	dnsHost     string
	dnsPort     uint16
	dnsDeadline time.Time

	connectURL string

	next, prev *Connection
}

// Flags returns the connection's current state flags, for callers that
// want to branch on more than one bit at a time (is_draining and
// is_closing are both terminal, for instance).
func (c *Connection) Flags() Flag { return c.flags }

func (c *Connection) set(f Flag)   { c.flags |= f }
func (c *Connection) clear(f Flag) { c.flags &^= f }

// IsListening, IsClient, IsAccepted report which of the three mutually
// exclusive roles this connection has.
func (c *Connection) IsListening() bool { return c.flags.Has(FlagListening) }
func (c *Connection) IsClient() bool    { return c.flags.Has(FlagClient) }
func (c *Connection) IsAccepted() bool  { return c.flags.Has(FlagAccepted) }
func (c *Connection) IsResolving() bool { return c.flags.Has(FlagResolving) }
func (c *Connection) IsConnecting() bool { return c.flags.Has(FlagConnecting) }
func (c *Connection) IsTLS() bool        { return c.flags.Has(FlagTLS) }
func (c *Connection) IsTLSHandshake() bool { return c.flags.Has(FlagTLSHandshake) }
func (c *Connection) IsUDP() bool          { return c.flags.Has(FlagUDP) }
func (c *Connection) IsWebSocket() bool    { return c.flags.Has(FlagWebSocket) }
func (c *Connection) IsDraining() bool     { return c.flags.Has(FlagDraining) }
func (c *Connection) IsClosing() bool      { return c.flags.Has(FlagClosing) }

// SetWebSocket marks the connection as carrying WebSocket framing, set by
// the websocket package once the upgrade handshake completes.
func (c *Connection) SetWebSocket() { c.set(FlagWebSocket) }

// SetHexdumping toggles verbose wire-level logging of this connection's
// traffic through whatever logger the application installed.
func (c *Connection) SetHexdumping(on bool) {
	if on {
		c.set(FlagHexdumping)
	} else {
		c.clear(FlagHexdumping)
	}
}
func (c *Connection) IsHexdumping() bool { return c.flags.Has(FlagHexdumping) }

// Close requests the connection close immediately at the end of the
// current poll step, abandoning any unsent bytes still in Send.
func (c *Connection) Close() { c.set(FlagClosing) }

// Drain requests the connection flush Send and then close, once
// Send.Len() reaches zero.
func (c *Connection) Drain() { c.set(FlagDraining) }

// FD exposes the raw file descriptor for collaborators (e.g. sendfile)
// that need it; spec.md calls this an "opaque socket/file-descriptor
// handle" but a Go program has no way to keep it opaque and still hand
// it to syscalls the core doesn't wrap.
func (c *Connection) FD() int { return c.fd }

// Write queues data to be sent on the next writable poll step. It never
// blocks: it appends to Send and returns immediately, matching
// mg_send's semantics. On a connection still mid TLS handshake, callers
// should wait for EvConnect/the handshake's completion (is_tls_hs
// clearing) before writing application data, the same restriction a
// real TLS socket imposes.
func (c *Connection) Write(data []byte) error {
	if c.flags.Has(FlagClosing) {
		return nil
	}
	if c.tls != nil {
		_, err := c.tls.Write(data)
		if err != nil && err != tlsdrv.ErrWantIO {
			return err
		}
		return c.Send.Append(c.tls.Outgoing(), BufferGranularity)
	}
	return c.Send.Append(data, BufferGranularity)
}

// EnableTLS wraps the connection in a TLS session. cfg.IsClient controls
// whether a client or server handshake is driven. The handshake itself
// runs incrementally from the poll loop once is_tls_hs is set.
func (c *Connection) EnableTLS(cfg *tlsdrv.Config) {
	c.tls = tlsdrv.New(cfg)
	c.set(FlagTLS | FlagTLSHandshake)
}

// feedRaw hands raw bytes just read off the socket to the TLS driver (if
// any) and returns the application-layer bytes to append to Recv.
func (c *Connection) feedRaw(raw []byte) ([]byte, error) {
	if c.tls == nil {
		return raw, nil
	}
	c.tls.Feed(raw)
	var out []byte
	buf := make([]byte, 65536)
	for {
		n, err := c.tls.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if err == tlsdrv.ErrWantIO {
				break
			}
			return out, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// drainTLSOutgoing moves any ciphertext the TLS driver produced (from a
// handshake step or from feedRaw/Write) into Send, where the ordinary
// writable path flushes it to the socket.
func (c *Connection) drainTLSOutgoing() {
	if c.tls == nil {
		return
	}
	if out := c.tls.Outgoing(); len(out) > 0 {
		_ = c.Send.Append(out, BufferGranularity)
	}
}
