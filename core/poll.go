package core

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/netkit/netkit/core/dns"
	"github.com/netkit/netkit/core/socket"
	"github.com/netkit/netkit/core/tlsdrv"
)

func netipAddrPort(ip netip.Addr, port uint16) netip.AddrPort {
	return netip.AddrPortFrom(ip, port)
}

// Poll runs exactly one step of the reactor, per spec.md §4.6: advance
// timers, wait up to timeoutMs for readiness, then walk the connection
// list once in order advancing each connection's own state machine.
// Poll is not reentrant — calling it from within a handler is undefined,
// the same restriction the teacher's single-goroutine Engine.Run loop
// carries implicitly by never being called from a handler either.
func (m *Manager) Poll(timeoutMs int) error {
	now := time.Now()
	m.Timers.Advance(now)

	events, err := m.poller.Wait(timeoutMs)
	if err != nil {
		return err
	}
	ready := make(map[int]socket.Event, len(events))
	for _, ev := range events {
		ready[ev.Fd] = ev
	}

	if ev, ok := ready[m.dnsFD]; ok && ev.Readable {
		m.pollDNS()
	}
	m.reapExpiredDNS(now)

	for c := m.head; c != nil; c = c.next {
		ev, hasEvent := ready[c.fd]
		c.clear(FlagReadable | FlagWritable)
		if hasEvent {
			if ev.Readable {
				c.set(FlagReadable)
			}
			if ev.Writable {
				c.set(FlagWritable)
			}
		}

		if c.flags.Has(FlagConnecting) {
			if !c.flags.Has(FlagWritable) {
				continue
			}
			m.advanceConnecting(c)
			if c.flags.Has(FlagClosing) {
				continue
			}
			// Fall through to the TLS/read/write steps below: the
			// same writable notification that completed the connect
			// may also mean there's room to flush a handler's first
			// Write call made from its EvConnect callback.
		}
		if c.flags.Has(FlagTLSHandshake) {
			m.advanceHandshake(c)
		}
		if c.flags.Has(FlagListening) && !c.flags.Has(FlagUDP) {
			if c.flags.Has(FlagReadable) {
				m.acceptOne(c)
			}
			continue
		}
		// A UDP "listening" socket never accepts: it's a single fd
		// fielding datagrams from any peer, so it falls through to the
		// same read/write handling as a connected UDP socket below.
		if c.flags.Has(FlagReadable) {
			m.readOne(c)
		}
		if c.Send.Len() > 0 && c.flags.Has(FlagWritable) {
			m.writeOne(c)
		}
		m.syncPollerInterest(c)
		c.Fire(EvPoll, now.Sub(m.lastPoll))
	}

	m.sweepClosed()
	m.lastPoll = now
	return nil
}

func (m *Manager) pollDNS() {
	buf := make([]byte, 512)
	for {
		n, _, err := socket.RecvFromUDP(m.dnsFD, buf)
		if err != nil {
			return
		}
		ans, perr := dns.ParseResponse(buf[:n])
		if perr != nil {
			var nx *dns.NXDomainError
			if errors.As(perr, &nx) {
				if c, ok := m.dnsPending[nx.TxID]; ok {
					delete(m.dnsPending, nx.TxID)
					c.Fire(EvError, fmt.Errorf("core: DNS resolve of %q: %w", c.dnsHost, perr))
					c.set(FlagClosing)
				}
			}
			// malformed or answerless: ignore and let the deadline in
			// reapExpiredDNS decide whether to give up.
			continue
		}
		c, ok := m.dnsPending[ans.TxID]
		if !ok {
			continue
		}
		delete(m.dnsPending, ans.TxID)
		c.Fire(EvResolve, ans.IP)
		target := netipAddrPort(ans.IP, c.dnsPort)
		if err := m.beginConnect(c, target); err != nil {
			c.Fire(EvError, err)
			c.set(FlagClosing)
			continue
		}
	}
}

func (m *Manager) reapExpiredDNS(now time.Time) {
	for txid, c := range m.dnsPending {
		if now.After(c.dnsDeadline) {
			delete(m.dnsPending, txid)
			c.Fire(EvError, fmt.Errorf("core: DNS resolve of %q timed out", c.dnsHost))
			c.set(FlagClosing)
		}
	}
}

func (m *Manager) advanceConnecting(c *Connection) {
	if err := socket.ConnectError(c.fd); err != nil {
		c.Fire(EvError, err)
		c.set(FlagClosing)
		return
	}
	m.onConnected(c)
	m.syncPollerInterest(c)
}

func (m *Manager) advanceHandshake(c *Connection) {
	if c.tls == nil {
		c.clear(FlagTLSHandshake)
		return
	}
	if c.flags.Has(FlagReadable) {
		buf := c.Recv.Tail(4096)
		n, err := socket.Recv(c.fd, buf)
		if err != nil && err != socket.ErrWouldBlock {
			c.Fire(EvError, err)
			c.set(FlagClosing)
			return
		}
		if n > 0 {
			c.tls.Feed(buf[:n])
		}
	}
	err := c.tls.Handshake()
	c.drainTLSOutgoing()
	if err == nil {
		c.clear(FlagTLSHandshake)
		return
	}
	if err != tlsdrv.ErrWantIO {
		c.Fire(EvError, err)
		c.set(FlagClosing)
	}
}

func (m *Manager) acceptOne(listener *Connection) {
	fd, peer, err := socket.Accept(listener.fd)
	if err != nil {
		return
	}
	c := m.newConn()
	c.fd = fd
	c.Peer = peer
	c.Handler = listener.Handler
	c.UserData = listener.UserData
	c.ProtoHandler = listener.ProtoHandler
	c.Recv = newBuf()
	c.Send = newBuf()
	c.set(FlagAccepted)
	if err := m.poller.Add(fd, false); err != nil {
		socket.Close(fd)
		return
	}
	m.byFD[fd] = c
	m.link(c)
	c.Fire(EvOpen, nil)
	c.Fire(EvAccept, nil)
}

func (m *Manager) readOne(c *Connection) {
	if c.flags.Has(FlagPipe) {
		m.readPipe(c)
		return
	}
	for {
		buf := c.Recv.Tail(4096)
		var n int
		var err error
		if c.flags.Has(FlagUDP) {
			var from netip.AddrPort
			n, from, err = socket.RecvFromUDP(c.fd, buf)
			if err == nil && n > 0 {
				// Track the most recent sender so Write() on a UDP
				// listening socket replies to whoever just spoke,
				// and so a client socket that was never connect()'d
				// at the OS level still has somewhere to send to.
				c.Peer = from
			}
		} else {
			n, err = socket.Recv(c.fd, buf)
		}
		if err != nil {
			if err == socket.ErrWouldBlock {
				return
			}
			c.Fire(EvError, err)
			c.set(FlagClosing)
			return
		}
		if n == 0 {
			if !c.flags.Has(FlagUDP) {
				c.set(FlagClosing)
			}
			return
		}
		raw := buf[:n]
		app, terr := c.feedRaw(raw)
		c.drainTLSOutgoing()
		if terr != nil {
			c.Fire(EvError, terr)
			c.set(FlagClosing)
			return
		}
		if c.tls != nil {
			if len(app) > 0 {
				_ = c.Recv.Append(app, BufferGranularity)
				c.Fire(EvRead, len(app))
			}
		} else {
			c.Recv.Commit(n)
			c.Fire(EvRead, n)
		}
		if c.Recv.Len() > MaxRecvBufSize {
			c.Fire(EvError, fmt.Errorf("core: recv buffer exceeded %d bytes", MaxRecvBufSize))
			c.set(FlagClosing)
			return
		}
		if n < len(buf) {
			return
		}
	}
}

func (m *Manager) readPipe(c *Connection) {
	var buf [64]byte
	n, err := socket.Recv(c.fd, buf[:])
	if err != nil || n == 0 {
		return
	}
	c.Fire(EvRead, n)
}

func (m *Manager) writeOne(c *Connection) {
	for c.Send.Len() > 0 {
		pending := c.Send.Bytes()
		var n int
		var err error
		if c.flags.Has(FlagUDP) {
			n, err = socket.SendToUDP(c.fd, pending, c.Peer)
		} else {
			n, err = socket.Send(c.fd, pending)
		}
		if err != nil {
			if err == socket.ErrWouldBlock {
				return
			}
			c.Fire(EvError, err)
			c.set(FlagClosing)
			return
		}
		if n == 0 {
			return
		}
		c.Send.Delete(0, n)
		c.Fire(EvWrite, n)
		if n < len(pending) {
			// Partial write: the socket's own send buffer is full, wait
			// for the next writable notification instead of looping.
			break
		}
	}
	if c.flags.Has(FlagDraining) && c.Send.Len() == 0 {
		c.set(FlagClosing)
	}
}

// syncPollerInterest tells the poller whether this connection currently
// needs writable notifications, so a steady-state connection with an
// empty Send doesn't spin on a hot EPOLLOUT/EVFILT_WRITE wakeup.
func (m *Manager) syncPollerInterest(c *Connection) {
	wantWritable := c.Send.Len() > 0 || c.flags.Has(FlagTLSHandshake)
	_ = m.poller.Modify(c.fd, wantWritable)
}

func (m *Manager) sweepClosed() {
	c := m.head
	for c != nil {
		next := c.next
		if c.flags.Has(FlagDraining) && c.Send.Len() == 0 {
			c.set(FlagClosing)
		}
		if c.flags.Has(FlagClosing) {
			c.Fire(EvClose, nil)
			m.destroy(c)
		}
		c = next
	}
}

func (m *Manager) destroy(c *Connection) {
	m.unlink(c)
	delete(m.byFD, c.fd)
	if c.fd >= 0 {
		m.poller.Remove(c.fd)
		socket.Close(c.fd)
	}
	if wfd, ok := c.ProtoData.(int); ok && c.flags.Has(FlagPipe) {
		socket.Close(wfd)
	}
	c.Recv.Free()
	c.Send.Free()
}
