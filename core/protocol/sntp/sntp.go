// Package sntp implements the SNTP client spec.md §4.10 describes:
// Connect opens a UDP socket to the server, Send rate-limits requests to
// once an hour, and incoming responses are parsed into the Unix epoch
// and fired as an EvTime event. The 48-byte NTP v4 client packet format
// has no teacher analog in this corpus — grounded instead in the same
// fixed-layout binary.BigEndian field-at-a-time style the mqtt and
// websocket packages use for their own wire formats in this module.
package sntp

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/netkit/netkit/core"
)

// EvTime fires once a valid SNTP response has been parsed; data is a
// *Time.
const EvTime core.Event = core.EvUser + 300

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01), per spec.md §4.10.
const ntpEpochOffset = 2208988800

const packetSize = 48

// Time is a parsed SNTP response, seconds and microseconds since the
// Unix epoch.
type Time struct {
	Seconds      int64
	Microseconds int64
}

// BuildRequest encodes a 48-byte NTP v4 client request packet: LI=0,
// VN=4, Mode=3 (client) in the first byte, every other field zero
// except the (arbitrary) transmit timestamp, which servers are not
// required to echo back but some implementations use for buffer
// diversity.
func BuildRequest(now time.Time) []byte {
	pkt := make([]byte, packetSize)
	pkt[0] = 0x23 // LI=0, VN=4, Mode=3
	secs := uint32(now.Unix() + ntpEpochOffset)
	binary.BigEndian.PutUint32(pkt[40:], secs)
	return pkt
}

// ParseResponse decodes a server's 48-byte response packet, reading the
// transmit timestamp (bytes 40-47: seconds since 1900, then a 32-bit
// fraction) and converting it to the Unix epoch.
func ParseResponse(pkt []byte) (*Time, error) {
	if len(pkt) < packetSize {
		return nil, fmt.Errorf("sntp: short packet (%d bytes)", len(pkt))
	}
	mode := pkt[0] & 0x07
	if mode != 4 && mode != 5 { // server or broadcast
		return nil, fmt.Errorf("sntp: unexpected mode %d in response", mode)
	}
	ntpSecs := binary.BigEndian.Uint32(pkt[40:])
	frac := binary.BigEndian.Uint32(pkt[44:])
	if ntpSecs < ntpEpochOffset {
		return nil, fmt.Errorf("sntp: transmit timestamp predates the Unix epoch")
	}
	return &Time{
		Seconds:      int64(ntpSecs) - ntpEpochOffset,
		Microseconds: int64(frac) * 1_000_000 / (1 << 32),
	}, nil
}

type connState struct {
	lastSent time.Time
}

const minInterval = time.Hour

// WireProtoHandler returns a core.Handler for Connection.ProtoHandler
// that parses SNTP responses off Recv and fires EvTime.
func WireProtoHandler() core.Handler {
	return func(c *core.Connection, ev core.Event, data any) {
		if ev == core.EvRead {
			buf := c.Recv.Bytes()
			if len(buf) < packetSize {
				return
			}
			if t, err := ParseResponse(buf[:packetSize]); err == nil {
				c.Fire(EvTime, t)
			}
			c.Recv.Delete(0, packetSize)
		}
	}
}

// Connect opens a UDP connection to rawURL (e.g. "udp://time.google.com:123"),
// wiring WireProtoHandler so incoming responses fire EvTime.
func Connect(m *core.Manager, rawURL string, handler core.Handler, userData any) (*core.Connection, error) {
	c, err := m.Connect(rawURL, handler, userData)
	if err != nil {
		return nil, err
	}
	c.ProtoHandler = WireProtoHandler()
	return c, nil
}

// Send writes an SNTP request to c, rate-limited to one request per
// hour per connection; calls within the lockout window are silently
// dropped, matching spec.md §4.10's "SNTP has a 1-hour min-interval
// lockout".
func Send(c *core.Connection, now time.Time) {
	st, _ := c.ProtoData.(*connState)
	if st == nil {
		st = &connState{}
		c.ProtoData = st
	}
	if !st.lastSent.IsZero() && now.Sub(st.lastSent) < minInterval {
		return
	}
	st.lastSent = now
	_ = c.Write(BuildRequest(now))
}
