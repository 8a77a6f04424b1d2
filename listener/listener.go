// Package listener implements a Channel specialized for accept: on
// readiness it accepts one connection and hands it to a factory that
// produces an application channel bound to the same poller (the factory,
// not the listener, starts any TLS handshake).
package listener

import (
	"crypto/tls"
	"net"

	"github.com/hashicorp/go-hclog"
	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/poller"
	"github.com/nabbar/reactor/socket"
)

const (
	CodeBind = 6700 + iota
	CodeAccept
)

// Tag classifies a listener so the Instance can apply per-tag policy
// (service, admin, custom), matching the config keys in spec.md §6
// (svc/svcssl/http/https/admin/adminssl).
type Tag string

const (
	TagService    Tag = "svc"
	TagServiceSSL Tag = "svcssl"
	TagHTTP       Tag = "http"
	TagHTTPS      Tag = "https"
	TagAdmin      Tag = "admin"
	TagAdminSSL   Tag = "adminssl"
)

// Factory produces an application channel for one accepted connection.
type Factory func(conn net.Conn, fd int, peer net.Addr) error

// Listener is a bound, non-blocking TCP acceptor registered with a
// Poller.
type Listener struct {
	Tag Tag

	sock    *socket.Socket
	poller  poller.Poller
	factory Factory
	tlsConf *tls.Config
	log     hclog.Logger
}

// New binds addr and registers the listening fd with p. Accepted
// connections are handed to factory; if tlsConf is non-nil the factory
// is expected to start the new channel's TLS handshake (the listener
// itself makes no assumption about the channel type).
func New(tag Tag, addr string, family socket.Family, p poller.Poller, factory Factory, tlsConf *tls.Config, log hclog.Logger) (*Listener, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	sock, err := socket.Bind(addr, family)
	if err != nil {
		return nil, liberr.NewErrorTrace(CodeBind, "listener bind failed", "listener.go", 0, err)
	}
	l := &Listener{Tag: tag, sock: sock, poller: p, factory: factory, tlsConf: tlsConf, log: log}
	if err := p.Add(sock.Fd(), poller.MaskRead, l.onEvent); err != nil {
		_ = sock.Close()
		return nil, liberr.NewErrorTrace(CodeBind, "listener poller registration failed", "listener.go", 0, err)
	}
	return l, nil
}

// Close unregisters and closes the listening socket.
func (l *Listener) Close() error {
	_ = l.poller.Remove(l.sock.Fd())
	return l.sock.Close()
}

func (l *Listener) onEvent(fd int, events poller.Mask, delThis *bool) {
	if events&poller.MaskError != 0 || events&poller.MaskHangup != 0 {
		l.log.Error("listener socket error", "fd", fd)
		*delThis = true
		return
	}
	// One accept per readiness event: net.Listener.Accept blocks when
	// nothing is pending, and the level-triggered poller reports the
	// listener again while more connections wait.
	ns, peer, err := l.sock.Accept()
	if err != nil {
		l.log.Error("accept failed", "error", err)
		return
	}
	if ns == nil {
		return // nothing pending
	}
	if cerr := l.factory(ns.Conn(), ns.Fd(), peer); cerr != nil {
		l.log.Error("listener factory failed", "error", cerr)
		_ = ns.Close()
	}
}
