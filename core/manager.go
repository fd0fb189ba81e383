// Package core implements the event manager / poll loop and the
// connection state machine spec.md §4.6 calls "the heart of the
// system" — grounded in the teacher's Engine (core/engine.go), whose
// map-of-connections-plus-epoll design generalizes here from a single
// HTTP-only accept/read loop into the full resolve → connect →
// TLS-handshake → steady-state → drain/close lifecycle, with a doubly
// linked connection list (spec.md's "singly-linked list" extended so
// O(1) removal doesn't need a list scan) instead of the teacher's
// map[int]*Connection, since the poll step must visit connections in a
// stable, documented order.
package core

import (
	"errors"
	"net/netip"
	"time"

	"github.com/netkit/netkit/core/addr"
	"github.com/netkit/netkit/core/dns"
	"github.com/netkit/netkit/core/iobuf"
	"github.com/netkit/netkit/core/observability"
	"github.com/netkit/netkit/core/socket"
	"github.com/netkit/netkit/core/timers"
	"github.com/netkit/netkit/core/tlsdrv"
	"golang.org/x/sys/unix"
)

// DefaultDNSTimeout bounds how long a resolve may stay pending before
// the connection is closed with an error, per spec.md §5's "DNS has an
// explicit timeout" rule.
const DefaultDNSTimeout = 3 * time.Second

// Manager owns every connection's lifecycle, the timer wheel, and the
// shared non-blocking DNS socket. It is not safe for concurrent use from
// more than one goroutine; Wakeup is the sole exception, per spec.md §5.
type Manager struct {
	head, tail *Connection
	byFD       map[int]*Connection
	poller     socket.Poller
	nextID     uint64

	Timers *timers.Wheel

	dnsServer   netip.AddrPort
	dnsFD       int
	dnsTimeout  time.Duration
	dnsPending  map[uint16]*Connection
	enableIPv6  bool

	lastPoll time.Time

	monitor *observability.PerformanceMonitor

	UserData any
}

// WithMonitor attaches pm to the manager: every Connection.Fire call on
// one of its connections is timed and recorded against the event's
// String() name, per spec.md's dispatch helper hook for supplemented
// observability. Passing nil detaches a previously attached monitor.
func (m *Manager) WithMonitor(pm *observability.PerformanceMonitor) *Manager {
	m.monitor = pm
	return m
}

// Monitor returns the manager's attached PerformanceMonitor, or nil.
func (m *Manager) Monitor() *observability.PerformanceMonitor { return m.monitor }

// New creates a Manager with its own poller and a UDP socket for DNS
// queries against resolver (e.g. netip.MustParseAddrPort("8.8.8.8:53")).
func New(resolver netip.AddrPort) (*Manager, error) {
	p, err := socket.NewPoller()
	if err != nil {
		return nil, err
	}
	dnsFD, err := socket.Open(socket.UDP, resolver.Addr().Is6())
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Add(dnsFD, false); err != nil {
		socket.Close(dnsFD)
		p.Close()
		return nil, err
	}
	return &Manager{
		byFD:       make(map[int]*Connection),
		poller:     p,
		Timers:     timers.NewWheel(),
		dnsServer:  resolver,
		dnsFD:      dnsFD,
		dnsTimeout: DefaultDNSTimeout,
		dnsPending: make(map[uint16]*Connection),
		lastPoll:   time.Now(),
	}, nil
}

// SetDNSTimeout overrides DefaultDNSTimeout.
func (m *Manager) SetDNSTimeout(d time.Duration) { m.dnsTimeout = d }

// SetEnableIPv6 controls whether Connect resolves a bare hostname to
// an AAAA record instead of A.
func (m *Manager) SetEnableIPv6(enable bool) { m.enableIPv6 = enable }

func (m *Manager) link(c *Connection) {
	c.next = m.head
	c.prev = nil
	if m.head != nil {
		m.head.prev = c
	}
	m.head = c
	if m.tail == nil {
		m.tail = c
	}
}

func (m *Manager) unlink(c *Connection) {
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		m.head = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	} else {
		m.tail = c.prev
	}
	c.next, c.prev = nil, nil
}

func (m *Manager) newConn() *Connection {
	m.nextID++
	c := &Connection{
		ID:  m.nextID,
		Mgr: m,
		fd:  -1,
	}
	return c
}

// Listen opens a listening socket for rawURL ("tcp://host:port",
// "udp://host:port", or scheme-less "host:port" for TCP) and links it
// into the manager. handler receives EvAccept for every inbound
// connection once accepted, with data set to nil.
func (m *Manager) Listen(rawURL string, handler Handler, userData any) (*Connection, error) {
	u, err := addr.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	ip, err := resolveLiteralOrFail(u.Host)
	if err != nil {
		return nil, err
	}
	kind := socket.TCP
	if u.Scheme == "udp" {
		kind = socket.UDP
	}
	fd, err := socket.Open(kind, ip.Is6())
	if err != nil {
		return nil, err
	}
	ap := netip.AddrPortFrom(ip, u.Port)
	if err := socket.Bind(fd, ap); err != nil {
		socket.Close(fd)
		return nil, err
	}
	if kind == socket.TCP {
		if err := socket.Listen(fd, 1024); err != nil {
			socket.Close(fd)
			return nil, err
		}
	}
	c := m.newConn()
	c.fd = fd
	c.Handler = handler
	c.UserData = userData
	c.set(FlagListening)
	if kind == socket.UDP {
		c.set(FlagUDP)
	}
	c.Recv = newBuf()
	c.Send = newBuf()
	if err := m.poller.Add(fd, false); err != nil {
		socket.Close(fd)
		return nil, err
	}
	m.byFD[fd] = c
	m.link(c)
	c.Fire(EvOpen, nil)
	return c, nil
}

// Connect begins connecting to rawURL. If the host is a literal address
// the socket connects immediately (non-blocking); otherwise the
// connection starts in is_resolving and a DNS query is issued against
// the manager's resolver. handler receives EvConnect once the TCP
// handshake completes.
func (m *Manager) Connect(rawURL string, handler Handler, userData any) (*Connection, error) {
	return m.connect(rawURL, nil, handler, userData)
}

// ConnectTLS is Connect followed by an automatic TLS client handshake:
// is_tls and is_tls_hs are set the instant the TCP handshake completes,
// per spec.md §4.6 step 3b ("for TLS clients, also set is_tls_hs"),
// using cfg (IsClient is forced true regardless of what the caller set).
func (m *Manager) ConnectTLS(rawURL string, cfg *tlsdrv.Config, handler Handler, userData any) (*Connection, error) {
	cfgCopy := *cfg
	cfgCopy.IsClient = true
	return m.connect(rawURL, &cfgCopy, handler, userData)
}

func (m *Manager) connect(rawURL string, tlsCfg *tlsdrv.Config, handler Handler, userData any) (*Connection, error) {
	u, err := addr.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	c := m.newConn()
	c.Handler = handler
	c.UserData = userData
	c.Recv = newBuf()
	c.Send = newBuf()
	c.set(FlagClient)
	if u.Scheme == "udp" {
		c.set(FlagUDP)
	}
	c.connectURL = rawURL
	c.pendingTLS = tlsCfg

	if ip, err := addr.ParseIP(u.Host); err == nil {
		if err := m.beginConnect(c, netip.AddrPortFrom(ip, u.Port)); err != nil {
			return nil, err
		}
		m.link(c)
		c.Fire(EvOpen, nil)
		return c, nil
	}

	c.set(FlagResolving)
	c.dnsHost = u.Host
	c.dnsPort = u.Port
	c.dnsTxID = uint16(m.nextID)
	c.dnsDeadline = time.Now().Add(m.dnsTimeout)
	m.dnsPending[c.dnsTxID] = c
	query, err := dns.BuildQuery(c.dnsTxID, u.Host, m.enableIPv6)
	if err != nil {
		return nil, err
	}
	if _, err := socket.SendToUDP(m.dnsFD, query, m.dnsServer); err != nil {
		return nil, err
	}
	m.link(c)
	c.Fire(EvOpen, nil)
	return c, nil
}

func (m *Manager) beginConnect(c *Connection, target netip.AddrPort) error {
	fd, err := socket.Open(boolToKind(c.flags.Has(FlagUDP)), target.Addr().Is6())
	if err != nil {
		return err
	}
	c.fd = fd
	c.Peer = target
	if c.flags.Has(FlagUDP) {
		m.byFD[fd] = c
		if err := m.poller.Add(fd, false); err != nil {
			socket.Close(fd)
			return err
		}
		c.clear(FlagResolving)
		c.Fire(EvConnect, nil)
		return nil
	}
	inProgress, err := socket.Connect(fd, target)
	if err != nil {
		socket.Close(fd)
		return err
	}
	m.byFD[fd] = c
	c.clear(FlagResolving)
	if !inProgress {
		if err := m.poller.Add(fd, false); err != nil {
			return err
		}
		m.onConnected(c)
		return nil
	}
	c.set(FlagConnecting)
	return m.poller.Add(fd, true)
}

func (m *Manager) onConnected(c *Connection) {
	c.clear(FlagConnecting)
	if c.pendingTLS != nil {
		c.EnableTLS(c.pendingTLS)
		c.pendingTLS = nil
	}
	c.Fire(EvConnect, nil)
}

func boolToKind(udp bool) socket.Kind {
	if udp {
		return socket.UDP
	}
	return socket.TCP
}

func resolveLiteralOrFail(host string) (netip.Addr, error) {
	if host == "" {
		return netip.IPv4Unspecified(), nil
	}
	return addr.ParseIP(host)
}

// BufferGranularity is the chunk size a new connection's Recv/Send
// buffers grow by, settable from config.Config.RecvBufferGranularity
// at startup.
var BufferGranularity = iobuf.DefaultAlign

func newBuf() *iobuf.Buffer { return iobuf.New(4096, BufferGranularity) }

// MakePipe creates a cross-thread wakeup connection backed by a
// self-pipe: Wakeup writes a byte from any goroutine, and the next poll
// step delivers EvRead to handler on the manager's own goroutine. This
// is the only thread-safe entry point into an otherwise single-threaded
// reactor, per spec.md §4.6.
func (m *Manager) MakePipe(handler Handler, userData any) (*Connection, error) {
	var pair [2]int
	if err := unix.Pipe2(pair[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	c := m.newConn()
	c.fd = pair[0]
	c.Handler = handler
	c.UserData = userData
	c.set(FlagPipe)
	c.Recv = newBuf()
	c.Send = newBuf()
	c.ProtoData = pair[1] // write end, retrieved by Wakeup
	if err := m.poller.Add(pair[0], false); err != nil {
		unix.Close(pair[0])
		unix.Close(pair[1])
		return nil, err
	}
	m.byFD[pair[0]] = c
	m.link(c)
	c.Fire(EvOpen, nil)
	return c, nil
}

// Wakeup writes a single byte to pipe's write end, unblocking the
// manager's next Poll call if it's waiting. Safe to call from any
// goroutine.
func (m *Manager) Wakeup(pipe *Connection) error {
	wfd, ok := pipe.ProtoData.(int)
	if !ok {
		return errors.New("core: not a pipe connection")
	}
	_, err := unix.Write(wfd, []byte{0})
	if err != nil && errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return err
}

// Free closes every connection, delivering EvClose to each first, and
// releases the manager's own poller and DNS socket.
func (m *Manager) Free() {
	for c := m.head; c != nil; {
		next := c.next
		m.destroy(c)
		c = next
	}
	m.poller.Remove(m.dnsFD)
	socket.Close(m.dnsFD)
	m.poller.Close()
}
