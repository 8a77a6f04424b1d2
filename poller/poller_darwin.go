//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package poller

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	liberr "github.com/nabbar/reactor/errors"
	"golang.org/x/sys/unix"
)

func newDefault(log hclog.Logger) (Poller, error) { return newKqueue(log) }

func newEpoll(hclog.Logger) (Poller, error) {
	return nil, liberr.NewErrorTrace(CodeUnsupportedBackend, "epoll is not available on this platform", "poller_darwin.go", 0, nil)
}

type fdEntry struct {
	cb     Callback
	mask   Mask
	active bool
}

// kqueuePoller mirrors the FastPoller design from the eventloop package:
// modify diffs the old and new filter sets, issuing paired
// EV_DELETE/EV_ADD+EV_ENABLE changelists so callers see a unified
// POLL*-style mask despite kqueue's per-filter registration model.
type kqueuePoller struct {
	kq     int
	fds    map[int]*fdEntry
	mu     sync.RWMutex
	events [256]unix.Kevent_t
	log    hclog.Logger
}

func newKqueue(log hclog.Logger) (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, liberr.NewErrorTrace(CodeUnsupportedBackend, "kqueue failed", "poller_darwin.go", 0, err)
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq, fds: make(map[int]*fdEntry), log: log}, nil
}

func (p *kqueuePoller) Add(fd int, mask Mask, cb Callback) error {
	p.mu.Lock()
	if _, ok := p.fds[fd]; ok {
		p.mu.Unlock()
		return liberr.NewErrorTrace(CodeAlreadyRegistered, "fd already registered", "poller_darwin.go", 0, nil)
	}
	p.fds[fd] = &fdEntry{cb: cb, mask: mask, active: true}
	p.mu.Unlock()

	kevs := maskToKevents(fd, mask, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevs) > 0 {
		if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
			p.mu.Lock()
			delete(p.fds, fd)
			p.mu.Unlock()
			return liberr.NewErrorTrace(CodeUnsupportedBackend, "kevent add failed", "poller_darwin.go", 0, err)
		}
	}
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	p.mu.Lock()
	e, ok := p.fds[fd]
	if !ok {
		p.mu.Unlock()
		return liberr.NewErrorTrace(CodeNotRegistered, "fd not registered", "poller_darwin.go", 0, nil)
	}
	mask := e.mask
	delete(p.fds, fd)
	p.mu.Unlock()

	kevs := maskToKevents(fd, mask, unix.EV_DELETE)
	if len(kevs) > 0 {
		_, _ = unix.Kevent(p.kq, kevs, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) modify(fd int, newMask Mask) error {
	p.mu.Lock()
	e, ok := p.fds[fd]
	if !ok {
		p.mu.Unlock()
		return liberr.NewErrorTrace(CodeNotRegistered, "fd not registered", "poller_darwin.go", 0, nil)
	}
	old := e.mask
	e.mask = newMask
	p.mu.Unlock()

	if removed := old &^ newMask; removed != 0 {
		if kevs := maskToKevents(fd, removed, unix.EV_DELETE); len(kevs) > 0 {
			_, _ = unix.Kevent(p.kq, kevs, nil, nil)
		}
	}
	if added := newMask &^ old; added != 0 {
		if kevs := maskToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE); len(kevs) > 0 {
			if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
				return liberr.NewErrorTrace(CodeUnsupportedBackend, "kevent modify failed", "poller_darwin.go", 0, err)
			}
		}
	}
	return nil
}

func (p *kqueuePoller) SetMask(fd int, mask Mask) error { return p.modify(fd, mask) }

func (p *kqueuePoller) OrMask(fd int, m Mask) error {
	p.mu.RLock()
	e, ok := p.fds[fd]
	p.mu.RUnlock()
	if !ok {
		return liberr.NewErrorTrace(CodeNotRegistered, "fd not registered", "poller_darwin.go", 0, nil)
	}
	return p.modify(fd, e.mask|m)
}

func (p *kqueuePoller) AndMask(fd int, m Mask) error {
	p.mu.RLock()
	e, ok := p.fds[fd]
	p.mu.RUnlock()
	if !ok {
		return liberr.NewErrorTrace(CodeNotRegistered, "fd not registered", "poller_darwin.go", 0, nil)
	}
	return p.modify(fd, e.mask&m)
}

func (p *kqueuePoller) Dispatch(timeout time.Duration) (int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeout / time.Second),
			Nsec: int64(timeout % time.Second),
		}
	}
	n, err := unix.Kevent(p.kq, nil, p.events[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, liberr.NewErrorTrace(CodeUnsupportedBackend, "kevent wait failed", "poller_darwin.go", 0, err)
	}
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		fd := int(ev.Ident)
		p.mu.RLock()
		e, ok := p.fds[fd]
		var entry fdEntry
		if ok {
			entry = *e
		}
		p.mu.RUnlock()
		// ENOENT ("entry vanished") surfaces as EV_ERROR with no matching
		// registration; silently skip per the spec's swallow policy.
		if !ok || !entry.active || entry.cb == nil {
			continue
		}
		del := false
		entry.cb(fd, keventToMask(ev), &del)
		if del {
			_ = p.Remove(fd)
		}
	}
	return n, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}

func maskToKevents(fd int, mask Mask, flags uint16) []unix.Kevent_t {
	var kevs []unix.Kevent_t
	if mask&MaskRead != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if mask&MaskWrite != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevs
}

func keventToMask(ev *unix.Kevent_t) Mask {
	var m Mask
	switch ev.Filter {
	case unix.EVFILT_READ:
		m |= MaskRead
	case unix.EVFILT_WRITE:
		m |= MaskWrite
	}
	if ev.Flags&unix.EV_ERROR != 0 {
		m |= MaskError
	}
	if ev.Flags&unix.EV_EOF != 0 {
		m |= MaskHangup
	}
	return m
}
