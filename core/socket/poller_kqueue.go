//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package socket

import "golang.org/x/sys/unix"

// kqueuePoller is a kqueue-based I/O multiplexer, grounded in the
// teacher's core/poller/kqueue.go, generalized to register a
// writability filter per fd on request instead of read-only.
type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewPoller creates the platform-appropriate Poller.
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
	}, nil
}

func (p *kqueuePoller) register(fd int, writable bool, add bool) error {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if !add {
		flags = unix.EV_DELETE
	}
	evs := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  flags,
	}}
	if add {
		writeFlags := uint16(unix.EV_ADD | unix.EV_ENABLE)
		if !writable {
			writeFlags = unix.EV_DELETE
		}
		evs = append(evs, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  writeFlags,
		})
	} else {
		evs = append(evs, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  unix.EV_DELETE,
		})
	}
	for _, ev := range evs {
		// Deleting a filter that was never added returns ENOENT; that's
		// fine, it just means this direction wasn't registered.
		if _, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil); err != nil && err != unix.ENOENT {
			if ev.Flags&unix.EV_ADD != 0 {
				return err
			}
		}
	}
	return nil
}

func (p *kqueuePoller) Add(fd int, writable bool) error {
	return p.register(fd, writable, true)
}

func (p *kqueuePoller) Modify(fd int, writable bool) error {
	return p.register(fd, writable, true)
}

func (p *kqueuePoller) Remove(fd int) error {
	return p.register(fd, false, false)
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1e6,
		}
	}
	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	byFd := make(map[int]*Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		fd := int(e.Ident)
		ev, ok := byFd[fd]
		if !ok {
			ev = &Event{Fd: fd}
			byFd[fd] = ev
			order = append(order, fd)
		}
		switch e.Filter {
		case unix.EVFILT_READ:
			ev.Readable = true
		case unix.EVFILT_WRITE:
			ev.Writable = true
		}
	}
	out := make([]Event, 0, len(order))
	for _, fd := range order {
		out = append(out, *byFd[fd])
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
