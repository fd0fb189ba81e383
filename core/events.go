package core

import "time"

// Event identifies what just happened to a connection. Protocol packages
// (http, websocket, mqtt, sntp) define their own event values starting at
// EvUser and pass them through Connection.Fire so the dispatch order and
// the ProtoHandler-then-Handler rule stay centralized here instead of
// being reimplemented per protocol.
type Event int

const (
	// EvOpen fires once, synchronously, right after a connection is
	// constructed by Listen, Connect, MakePipe or an accept and linked
	// into the manager's list, so a handler can stash user data.
	EvOpen Event = iota
	EvResolve
	EvConnect
	EvAccept
	EvTLSHS
	EvRead
	EvWrite
	EvPoll
	EvClose
	EvError
	// EvUser is the first event value available to protocol packages.
	EvUser
)

func (e Event) String() string {
	switch e {
	case EvOpen:
		return "OPEN"
	case EvResolve:
		return "RESOLVE"
	case EvConnect:
		return "CONNECT"
	case EvAccept:
		return "ACCEPT"
	case EvTLSHS:
		return "TLS_HS"
	case EvRead:
		return "READ"
	case EvWrite:
		return "WRITE"
	case EvPoll:
		return "POLL"
	case EvClose:
		return "CLOSE"
	case EvError:
		return "ERROR"
	default:
		return "USER"
	}
}

// Handler is the callback shape for both a connection's user handler and
// its protocol handler. data's dynamic type depends on ev: int for
// EvRead/EvWrite (bytes transferred), error for EvError, time.Duration
// for EvPoll (elapsed time since the previous poll step), nil otherwise,
// or a protocol-specific message type for ev >= EvUser.
type Handler func(c *Connection, ev Event, data any)

// Fire runs the protocol handler first, then the user handler, per the
// two-stage dispatch pipeline: the protocol handler may inspect or
// mutate Recv/Send and synthesize its own higher-level events (by
// calling Fire again, re-entrantly, with ev >= EvUser) before the raw
// event is handed to the user's own handler.
func (c *Connection) Fire(ev Event, data any) {
	var start time.Time
	monitored := c.Mgr != nil && c.Mgr.monitor != nil
	if monitored {
		start = time.Now()
	}
	if c.ProtoHandler != nil {
		c.ProtoHandler(c, ev, data)
	}
	if c.Handler != nil {
		c.Handler(c, ev, data)
	}
	if monitored {
		c.Mgr.monitor.RecordRequest(ev.String(), time.Since(start), ev == EvError)
	}
}
