// Package poller implements the reactor's pluggable readiness
// multiplexer: epoll on Linux, kqueue on Darwin/BSD, selected through
// New("auto"|"epoll"|"kqueue").
package poller

import (
	"time"

	"github.com/hashicorp/go-hclog"
	liberr "github.com/nabbar/reactor/errors"
)

const (
	CodeUnsupportedBackend = 6200 + iota
	CodeAlreadyRegistered
	CodeNotRegistered
	CodeClosed
)

// Mask is a unified POLL*-style interest/readiness bitmask, independent
// of the epoll/kqueue backend's own representation.
type Mask uint8

const (
	MaskNone  Mask = 0
	MaskRead  Mask = 1 << iota
	MaskWrite
	MaskError
	MaskHangup
)

// Callback is invoked once per ready event with the event's mask and a
// mutable DelThis flag; if the callback sets *delThis, the poller removes
// the fd before returning from Dispatch.
type Callback func(fd int, events Mask, delThis *bool)

// Poller is the reactor's readiness multiplexer.
type Poller interface {
	// Add registers fd with an initial interest mask and callback.
	// Fails if fd is out of range or already registered.
	Add(fd int, mask Mask, cb Callback) error
	// Remove unregisters fd.
	Remove(fd int) error
	// SetMask replaces fd's interest mask.
	SetMask(fd int, mask Mask) error
	// OrMask ORs m into fd's current interest mask.
	OrMask(fd int, m Mask) error
	// AndMask ANDs m into fd's current interest mask.
	AndMask(fd int, m Mask) error
	// Dispatch waits up to timeout for readiness and delivers each ready
	// event to its callback exactly once. EINTR is treated as a
	// zero-event timeout. Returns the number of ready events the backend
	// reported, including skipped ones for fds no longer registered.
	Dispatch(timeout time.Duration) (int, error)
	// Close releases the backend's kernel resources.
	Close() error
}

// Kind names a backend. KindAuto picks epoll on Linux and kqueue
// elsewhere.
type Kind string

const (
	KindAuto   Kind = "auto"
	KindEpoll  Kind = "epoll"
	KindKqueue Kind = "kqueue"
)

// New constructs a Poller of the requested kind.
func New(kind Kind, log hclog.Logger) (Poller, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	switch kind {
	case KindAuto, "":
		return newDefault(log)
	case KindEpoll:
		return newEpoll(log)
	case KindKqueue:
		return newKqueue(log)
	default:
		return nil, liberr.NewErrorTrace(CodeUnsupportedBackend, "unsupported poller backend: "+string(kind), "poller.go", 0, nil)
	}
}
