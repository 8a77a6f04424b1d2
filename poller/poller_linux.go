//go:build linux

package poller

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	liberr "github.com/nabbar/reactor/errors"
	"golang.org/x/sys/unix"
)

func newDefault(log hclog.Logger) (Poller, error) { return newEpoll(log) }

func newKqueue(hclog.Logger) (Poller, error) {
	return nil, liberr.NewErrorTrace(CodeUnsupportedBackend, "kqueue is not available on linux", "poller_linux.go", 0, nil)
}

type fdEntry struct {
	cb     Callback
	mask   Mask
	active bool
}

// epollPoller mirrors the FastPoller design from the eventloop package:
// a map of registrations keyed by fd, an epoll fd, and a preallocated
// event buffer, guarded by an RWMutex that is never held during the
// blocking wait or while a callback executes.
type epollPoller struct {
	epfd   int
	fds    map[int]*fdEntry
	mu     sync.RWMutex
	events [256]unix.EpollEvent
	log    hclog.Logger
}

func newEpoll(log hclog.Logger) (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, liberr.NewErrorTrace(CodeUnsupportedBackend, "epoll_create1 failed", "poller_linux.go", 0, err)
	}
	return &epollPoller{epfd: fd, fds: make(map[int]*fdEntry), log: log}, nil
}

func (p *epollPoller) Add(fd int, mask Mask, cb Callback) error {
	if fd < 0 {
		return liberr.NewErrorTrace(CodeUnsupportedBackend, "fd out of range", "poller_linux.go", 0, nil)
	}
	p.mu.Lock()
	if _, ok := p.fds[fd]; ok {
		p.mu.Unlock()
		return liberr.NewErrorTrace(CodeAlreadyRegistered, "fd already registered", "poller_linux.go", 0, nil)
	}
	p.fds[fd] = &fdEntry{cb: cb, mask: mask, active: true}
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.mu.Lock()
		delete(p.fds, fd)
		p.mu.Unlock()
		return liberr.NewErrorTrace(CodeUnsupportedBackend, "epoll_ctl add failed", "poller_linux.go", 0, err)
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	p.mu.Lock()
	if _, ok := p.fds[fd]; !ok {
		p.mu.Unlock()
		return liberr.NewErrorTrace(CodeNotRegistered, "fd not registered", "poller_linux.go", 0, nil)
	}
	delete(p.fds, fd)
	p.mu.Unlock()
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

func (p *epollPoller) setMaskLocked(fd int, mask Mask) error {
	e, ok := p.fds[fd]
	if !ok {
		return liberr.NewErrorTrace(CodeNotRegistered, "fd not registered", "poller_linux.go", 0, nil)
	}
	e.mask = mask
	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) SetMask(fd int, mask Mask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.setMaskLocked(fd, mask); err != nil {
		return err
	}
	return nil
}

func (p *epollPoller) OrMask(fd int, m Mask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.fds[fd]
	if !ok {
		return liberr.NewErrorTrace(CodeNotRegistered, "fd not registered", "poller_linux.go", 0, nil)
	}
	return p.setMaskLocked(fd, e.mask|m)
}

func (p *epollPoller) AndMask(fd int, m Mask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.fds[fd]
	if !ok {
		return liberr.NewErrorTrace(CodeNotRegistered, "fd not registered", "poller_linux.go", 0, nil)
	}
	return p.setMaskLocked(fd, e.mask&m)
}

func (p *epollPoller) Dispatch(timeout time.Duration) (int, error) {
	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}
	n, err := unix.EpollWait(p.epfd, p.events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, liberr.NewErrorTrace(CodeUnsupportedBackend, "epoll_wait failed", "poller_linux.go", 0, err)
	}
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		p.mu.RLock()
		e, ok := p.fds[fd]
		var entry fdEntry
		if ok {
			entry = *e
		}
		p.mu.RUnlock()
		if !ok || !entry.active || entry.cb == nil {
			continue
		}
		del := false
		entry.cb(fd, epollToMask(p.events[i].Events), &del)
		if del {
			_ = p.Remove(fd)
		}
	}
	return n, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

func maskToEpoll(m Mask) uint32 {
	var e uint32
	if m&MaskRead != 0 {
		e |= unix.EPOLLIN
	}
	if m&MaskWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToMask(e uint32) Mask {
	var m Mask
	if e&unix.EPOLLIN != 0 {
		m |= MaskRead
	}
	if e&unix.EPOLLOUT != 0 {
		m |= MaskWrite
	}
	if e&unix.EPOLLERR != 0 {
		m |= MaskError
	}
	if e&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		m |= MaskHangup
	}
	return m
}
