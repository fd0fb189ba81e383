package core

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

// fakeNXDomainResolver answers the first query it receives with an
// authoritative NXDOMAIN, echoing back the query's transaction ID and
// question the way a real resolver would.
func fakeNXDomainResolver(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		var p dnsmessage.Parser
		hdr, err := p.Start(buf[:n])
		if err != nil {
			return
		}
		q, err := p.Question()
		if err != nil {
			return
		}
		b := dnsmessage.NewBuilder(nil, dnsmessage.Header{
			ID:       hdr.ID,
			Response: true,
			RCode:    dnsmessage.RCodeNameError,
		})
		_ = b.StartQuestions()
		_ = b.Question(q)
		pkt, err := b.Finish()
		if err != nil {
			return
		}
		_, _ = conn.WriteToUDP(pkt, addr)
	}()

	return conn
}

func TestNXDomainFiresErrorAndCloses(t *testing.T) {
	fakeDNS := fakeNXDomainResolver(t)

	resolver := netip.MustParseAddrPort(fakeDNS.LocalAddr().String())
	m, err := New(resolver)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Free)

	var gotErr error
	var closed bool
	_, err = m.Connect("tcp://nonexistent.invalid:80", func(c *Connection, ev Event, data any) {
		switch ev {
		case EvError:
			gotErr = data.(error)
		case EvClose:
			closed = true
		}
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pollUntil(t, m, 3*time.Second, func() bool { return closed })

	if gotErr == nil {
		t.Fatal("expected EvError to fire before the connection closed")
	}
}
