// Package socket is a thin non-blocking socket facade over net.Dialer /
// net.Listener / syscall.RawConn, exposing connect/accept/bind/close and
// an "again" classifier the reactor uses to decide whether a failed
// syscall should be retried on the next readiness event.
package socket

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	liberr "github.com/nabbar/reactor/errors"
)

const (
	CodeDial = 6100 + iota
	CodeListen
	CodeAccept
	CodeRawConn
)

// Family selects the IP family used for Connect/Listen.
type Family uint8

const (
	FamilyAuto Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) network(base string) string {
	switch f {
	case FamilyIPv4:
		return base + "4"
	case FamilyIPv6:
		return base + "6"
	default:
		return base
	}
}

// Socket wraps a net.Conn (client/accepted side) or net.Listener (server
// side) plus its raw file descriptor, which the poller registers
// directly.
type Socket struct {
	conn net.Conn
	ln   net.Listener
	fd   int
	raw  syscall.RawConn
}

// Connect dials host:service and returns once the connection is
// established or has failed; the dial blocks for up to 5s and async is
// not consulted.
func Connect(host, service string, family Family, async bool) (*Socket, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	network := family.network("tcp")
	conn, err := d.Dial(network, net.JoinHostPort(host, service))
	if err != nil {
		return nil, liberr.NewErrorTrace(CodeDial, "dial failed", "socket.go", 0, err)
	}
	return newFromConn(conn)
}

// ConnectAsync dials host:service under ctx and returns once the
// connection is established or has failed; the dial blocks, so there is
// no in-progress connect to poll for. CheckConnectError still reads
// SO_ERROR off the returned Socket.
func ConnectAsync(ctx context.Context, host, service string, family Family) (*Socket, error) {
	d := net.Dialer{}
	network := family.network("tcp")
	conn, err := d.DialContext(ctx, network, net.JoinHostPort(host, service))
	if err != nil {
		return nil, liberr.NewErrorTrace(CodeDial, "dial failed", "socket.go", 0, err)
	}
	return newFromConn(conn)
}

// Bind creates a non-blocking listening socket on addr.
func Bind(addr string, family Family) (*Socket, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), family.network("tcp"), addr)
	if err != nil {
		return nil, liberr.NewErrorTrace(CodeListen, "listen failed", "socket.go", 0, err)
	}
	s := &Socket{ln: ln}
	if tl, ok := ln.(*net.TCPListener); ok {
		raw, rerr := tl.SyscallConn()
		if rerr == nil {
			s.raw = raw
			_ = raw.Control(func(fd uintptr) { s.fd = int(fd) })
		}
	}
	return s, nil
}

// Accept accepts one pending connection from a listening Socket.
func (s *Socket) Accept() (*Socket, net.Addr, error) {
	if s.ln == nil {
		return nil, nil, liberr.NewErrorTrace(CodeAccept, "not a listening socket", "socket.go", 0, nil)
	}
	c, err := s.ln.Accept()
	if err != nil {
		if IsAgain(err) {
			return nil, nil, nil
		}
		return nil, nil, liberr.NewErrorTrace(CodeAccept, "accept failed", "socket.go", 0, err)
	}
	ns, err := newFromConn(c)
	if err != nil {
		return nil, nil, err
	}
	return ns, c.RemoteAddr(), nil
}

func newFromConn(conn net.Conn) (*Socket, error) {
	s := &Socket{conn: conn}
	if tc, ok := conn.(*net.TCPConn); ok {
		raw, err := tc.SyscallConn()
		if err == nil {
			s.raw = raw
			_ = raw.Control(func(fd uintptr) { s.fd = int(fd) })
		}
	}
	return s, nil
}

// Fd returns the raw file descriptor for poller registration.
func (s *Socket) Fd() int { return s.fd }

// Conn returns the underlying net.Conn, nil for a listening Socket.
func (s *Socket) Conn() net.Conn { return s.conn }

// Listener returns the underlying net.Listener, nil for a connection Socket.
func (s *Socket) Listener() net.Listener { return s.ln }

// IsConnected reports whether this Socket wraps a live connection.
func (s *Socket) IsConnected() bool { return s.conn != nil && s.fd > 0 }

// Close releases the underlying fd.
func (s *Socket) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// IsAgain classifies EAGAIN, EWOULDBLOCK, and EINTR as retryable, per the
// spec's s_isAgain contract.
func IsAgain(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// CheckConnectError reads SO_ERROR off a socket whose connect completed
// asynchronously (writable event). A nil return means the connect
// succeeded.
func (s *Socket) CheckConnectError() error {
	if s.raw == nil {
		return nil
	}
	var sockErr error
	err := s.raw.Control(func(fd uintptr) {
		v, gerr := syscall.GetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_ERROR)
		if gerr != nil {
			sockErr = gerr
			return
		}
		if v != 0 {
			sockErr = syscall.Errno(v)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
