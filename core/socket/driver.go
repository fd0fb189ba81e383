// Package socket implements the abstract socket driver spec.md §4.4
// requires: open/bind/listen/accept/connect/send/recv, all non-blocking,
// plus a bounded readiness wait. It is grounded in the teacher's
// core/poller package and core/engine.go's syscall.Accept/Read/Write
// calls, generalized from syscall to golang.org/x/sys/unix (the
// actively maintained surface for exactly this job, already present as
// a direct dependency in the teacher and in the dtn7 and uringnet pack
// repos) and from a read-only readiness set to a read-or-write one, since
// the reactor needs to know when a connecting or TLS-handshaking socket
// becomes writable, not just when an established one becomes readable.
package socket

import (
	"errors"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by Send/Recv/Accept/SendToUDP/RecvFromUDP in
// place of the platform's EAGAIN/EWOULDBLOCK, so callers never need to
// branch on a raw errno. Connect reports a pending connect through its
// inProgress result instead.
var ErrWouldBlock = errors.New("socket: operation would block")

// Kind identifies the socket's transport.
type Kind int

const (
	TCP Kind = iota
	UDP
)

// Open creates a non-blocking socket of the given kind and address family.
func Open(kind Kind, v6 bool) (fd int, err error) {
	family := unix.AF_INET
	if v6 {
		family = unix.AF_INET6
	}
	typ := unix.SOCK_STREAM
	if kind == UDP {
		typ = unix.SOCK_DGRAM
	}
	fd, err = unix.Socket(family, typ, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if kind == TCP {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}
	return fd, nil
}

// Bind binds fd to addr.
func Bind(fd int, addr netip.AddrPort) error {
	return unix.Bind(fd, toSockaddr(addr))
}

// Listen marks fd as a listening socket with the given backlog.
func Listen(fd, backlog int) error {
	return unix.Listen(fd, backlog)
}

// Accept accepts one pending connection on a non-blocking listener fd.
// It returns ErrWouldBlock when there is nothing to accept.
func Accept(fd int) (clientFd int, peer netip.AddrPort, err error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return -1, netip.AddrPort{}, ErrWouldBlock
		}
		return -1, netip.AddrPort{}, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, netip.AddrPort{}, err
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	_ = unix.SetsockoptInt(nfd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	return nfd, fromSockaddr(sa), nil
}

// Connect begins a non-blocking connect. A nil error with inProgress true
// means the caller must wait for writability and then call ConnectError.
func Connect(fd int, addr netip.AddrPort) (inProgress bool, err error) {
	err = unix.Connect(fd, toSockaddr(addr))
	if err == nil {
		return false, nil
	}
	if errors.Is(err, unix.EINPROGRESS) {
		return true, nil
	}
	return false, err
}

// ConnectError retrieves the pending error on a socket that just became
// writable after a non-blocking Connect, per spec.md §4.6 step 3b
// ("check socket error").
func ConnectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// Send writes data to fd, returning ErrWouldBlock if the socket buffer is
// full.
func Send(fd int, data []byte) (n int, err error) {
	n, err = unix.Write(fd, data)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Recv reads into buf, returning ErrWouldBlock if there's nothing to read
// right now, and (0, nil) on a clean peer shutdown (n == 0 is not an
// error — callers distinguish it from ErrWouldBlock and from a real error
// to implement spec.md §8's "zero-byte read yields exactly one CLOSE").
func Recv(fd int, buf []byte) (n int, err error) {
	n, err = unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// SendToUDP writes a single datagram to addr on an unconnected UDP
// socket, as used by the DNS client and by SNTP before a connection has
// a fixed peer.
func SendToUDP(fd int, data []byte, addr netip.AddrPort) (int, error) {
	err := unix.Sendto(fd, data, 0, toSockaddr(addr))
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return len(data), nil
}

// RecvFromUDP reads a single datagram and the address it came from.
func RecvFromUDP(fd int, buf []byte) (n int, from netip.AddrPort, err error) {
	n, sa, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, netip.AddrPort{}, ErrWouldBlock
		}
		return 0, netip.AddrPort{}, err
	}
	return n, fromSockaddr(sa), nil
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// PeerAddr reports the remote endpoint of fd.
func PeerAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return fromSockaddr(sa), nil
}

// LocalAddr reports the local endpoint of fd, needed after binding to
// port 0 to discover the port the kernel actually assigned.
func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return fromSockaddr(sa), nil
}

func toSockaddr(addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr()
	if ip.Is4() || ip.Is4In6() {
		var sa unix.SockaddrInet4
		sa.Port = int(addr.Port())
		b := ip.As4()
		copy(sa.Addr[:], b[:])
		return &sa
	}
	var sa unix.SockaddrInet6
	sa.Port = int(addr.Port())
	b := ip.As16()
	copy(sa.Addr[:], b[:])
	return &sa
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	default:
		return netip.AddrPort{}
	}
}
