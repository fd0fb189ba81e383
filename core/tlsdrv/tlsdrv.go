// Package tlsdrv implements the TLS driver shim spec.md §4.5 requires:
// a bytes-in/bytes-out state machine the connection reactor can drive
// without ever blocking on a real socket. It is grounded in the
// teacher's engine.go syscall.Read/Write loop, generalized to pass
// through crypto/tls via an in-process duplex pipe instead of a real
// file descriptor, since Go's standard TLS stack has no public
// BIO-style non-blocking handshake entry point the way OpenSSL or
// mbedTLS do in the original Mongoose drivers.
//
// No third-party TLS library is used: crypto/tls is the correct
// ecosystem choice here, and none of the pack's dependencies provide an
// alternative non-blocking TLS implementation to wire in instead.
package tlsdrv

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"sync"
	"time"
)

// ErrWantIO indicates the handshake or read made progress internally
// but needs more ciphertext written out, or more ciphertext fed in,
// before it can continue. Callers treat it exactly like EAGAIN.
var ErrWantIO = errors.New("tlsdrv: operation would block on I/O")

// Config mirrors the subset of crypto/tls.Config spec.md §4.5 exposes:
// certificate, server name (for client SNI and verification), and
// whether to skip verification (self-signed / testing).
type Config struct {
	Certificates       []tls.Certificate
	ServerName         string
	InsecureSkipVerify bool
	IsClient           bool
	RootCAs            *x509.CertPool
}

// Driver drives one TLS session over an in-memory duplex pipe: the
// reactor writes received ciphertext into Feed, calls Handshake/Read/
// Write, and drains whatever ciphertext those produced via Outgoing.
// Every call is synchronous and non-blocking: the pipe never blocks,
// it returns errWouldBlockPipe instead, which Handshake/Read/Write
// translate to ErrWantIO.
type Driver struct {
	conn         *tls.Conn
	rawIn        *pipeEnd
	rawOut       *pipeEnd
	handshook    bool
	handshakeErr error
}

// New creates a Driver.
func New(cfg *Config) *Driver {
	app, netSide := newPipePair()
	d := &Driver{rawIn: netSide.read, rawOut: netSide.write}

	tlsCfg := &tls.Config{
		Certificates:       cfg.Certificates,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RootCAs:            cfg.RootCAs,
	}
	if cfg.IsClient {
		d.conn = tls.Client(app, tlsCfg)
	} else {
		d.conn = tls.Server(app, tlsCfg)
	}
	return d
}

// Feed appends raw ciphertext received from the socket into the
// driver's input pipe, to be consumed by the next Handshake/Read call.
func (d *Driver) Feed(ciphertext []byte) {
	d.rawIn.feed(ciphertext)
}

// Outgoing drains ciphertext the driver has produced and that the
// reactor must now write to the real socket.
func (d *Driver) Outgoing() []byte {
	return d.rawOut.drain()
}

// Handshook reports whether the TLS handshake has completed.
func (d *Driver) Handshook() bool { return d.handshook }

// Handshake advances the TLS handshake using only what's already been
// fed via Feed. It returns ErrWantIO if the handshake needs more input
// or has produced output that must be flushed via Outgoing first.
func (d *Driver) Handshake() error {
	if d.handshook {
		return nil
	}
	if d.handshakeErr != nil {
		return d.handshakeErr
	}
	err := d.conn.Handshake()
	if err == nil {
		d.handshook = true
		return nil
	}
	if errors.Is(err, errWouldBlockPipe) {
		return ErrWantIO
	}
	d.handshakeErr = err
	return err
}

// Read returns decrypted application bytes, or ErrWantIO if the
// handshake isn't done or no full record has arrived yet.
func (d *Driver) Read(buf []byte) (int, error) {
	if !d.handshook {
		if err := d.Handshake(); err != nil {
			return 0, err
		}
	}
	n, err := d.conn.Read(buf)
	if err != nil {
		if errors.Is(err, errWouldBlockPipe) {
			return n, ErrWantIO
		}
		return n, err
	}
	return n, nil
}

// Write encrypts and queues app data for Outgoing; it never blocks on a
// real socket, only on the in-memory pipe's own growth.
func (d *Driver) Write(data []byte) (int, error) {
	if !d.handshook {
		if err := d.Handshake(); err != nil {
			return 0, err
		}
	}
	n, err := d.conn.Write(data)
	if err != nil && errors.Is(err, errWouldBlockPipe) {
		return n, ErrWantIO
	}
	return n, err
}

// Close tears down the session.
func (d *Driver) Close() error {
	return d.conn.Close()
}

// --- in-memory non-blocking duplex pipe -----------------------------

var errWouldBlockPipe = errors.New("tlsdrv: pipe would block")

type pipeEnd struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (p *pipeEnd) feed(b []byte) {
	p.mu.Lock()
	p.buf.Write(b)
	p.mu.Unlock()
}

func (p *pipeEnd) drain() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, p.buf.Len())
	copy(out, p.buf.Bytes())
	p.buf.Reset()
	return out
}

func (p *pipeEnd) read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() == 0 {
		return 0, errWouldBlockPipe
	}
	return p.buf.Read(b)
}

func (p *pipeEnd) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

// appEnd is the net.Conn crypto/tls operates on; its Read/Write are
// wired to the opposite pipeEnds from the ones the reactor drives via
// Feed/Outgoing, so bytes written by tls.Conn become "outgoing
// ciphertext" and bytes fed in become what tls.Conn reads.
type appEnd struct {
	read  *pipeEnd
	write *pipeEnd
}

type netEndPair struct {
	read  *pipeEnd
	write *pipeEnd
}

func newPipePair() (appEnd, netEndPair) {
	a2n := &pipeEnd{} // app writes here, net drains it (outgoing)
	n2a := &pipeEnd{} // net feeds here, app reads it (incoming)
	return appEnd{read: n2a, write: a2n}, netEndPair{read: a2n, write: n2a}
}

func (a appEnd) Read(b []byte) (int, error)  { return a.read.read(b) }
func (a appEnd) Write(b []byte) (int, error) { return a.write.write(b) }
func (a appEnd) Close() error                { return nil }
func (a appEnd) LocalAddr() net.Addr         { return pipeAddr{} }
func (a appEnd) RemoteAddr() net.Addr        { return pipeAddr{} }
func (a appEnd) SetDeadline(time.Time) error      { return nil }
func (a appEnd) SetReadDeadline(time.Time) error  { return nil }
func (a appEnd) SetWriteDeadline(time.Time) error { return nil }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "tlsdrv-pipe" }
