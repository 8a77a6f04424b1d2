// Package channel implements the reactor's per-connection state machine:
// connect, optional TLS handshake, optional application handshake,
// framed read/write loop, and bounded at-most-once release.
package channel

import (
	"crypto/tls"
	"net"
	"sync"

	"github.com/hashicorp/go-hclog"
	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/iobuf"
	"github.com/nabbar/reactor/packet"
	"github.com/nabbar/reactor/poller"
)

// Config bundles the construction-time dependencies of a Channel.
type Config struct {
	Registry *Registry
	Poller   poller.Poller
	Handler  Handler
	Framer   Framer
	TLS      *tls.Config // nil disables TLS for this channel
	IsServer bool        // server-side TLS handshake vs client-side
	Log      hclog.Logger
}

// Channel drives one fd through {connect -> TLS handshake -> optional
// extra handshake -> read/write loop -> expire/release}.
type Channel struct {
	mu sync.Mutex

	name       uint32
	generation uint32
	registry   *Registry
	poller     poller.Poller
	handler    Handler
	framer     Framer
	log        hclog.Logger

	fd   int
	conn net.Conn

	rbuf *iobuf.Buffer
	wbuf *iobuf.Buffer

	tlsConf   *tls.Config
	tlsConn   *tls.Conn
	isServer  bool

	instanceState InstanceState
	connectState  ConnectState
	recvState     RecvState
	checkType     CheckType

	// extraHandshake, when non-nil, is driven after a successful TLS
	// handshake (or immediately after TCP connect, if TLS is disabled)
	// before the channel reaches ConnectSuccess. Nothing in this module
	// assigns it, so it stays nil for channels built with New.
	extraHandshake func(ch *Channel) (done bool, err error)

	writeIterLimit int
}

// New constructs a Channel without an fd yet (ConnectNone); call Connect
// or Attach to bind it.
func New(cfg Config) *Channel {
	if cfg.Log == nil {
		cfg.Log = hclog.NewNullLogger()
	}
	ch := &Channel{
		registry:       cfg.Registry,
		poller:         cfg.Poller,
		handler:        cfg.Handler,
		framer:         cfg.Framer,
		log:            cfg.Log,
		fd:             -1,
		rbuf:           iobuf.New(4096, iobuf.DefaultDelta),
		wbuf:           iobuf.New(4096, iobuf.DefaultDelta),
		tlsConf:        cfg.TLS,
		isServer:       cfg.IsServer,
		instanceState:  InstanceNormal,
		connectState:   ConnectNone,
		recvState:      RecvStart,
		checkType:      CheckNone,
		writeIterLimit: 1,
	}
	ch.name = cfg.Registry.alloc(ch)
	ch.generation = nextGeneration()
	return ch
}

// Name returns the channel's process-wide unique name.
func (c *Channel) Name() uint32 { return c.name }

// Generation distinguishes successive incarnations of the same fd slot.
func (c *Channel) Generation() uint32 { return c.generation }

func (c *Channel) InstanceState() InstanceState { c.mu.Lock(); defer c.mu.Unlock(); return c.instanceState }
func (c *Channel) ConnectState() ConnectState   { c.mu.Lock(); defer c.mu.Unlock(); return c.connectState }
func (c *Channel) RecvState() RecvState         { c.mu.Lock(); defer c.mu.Unlock(); return c.recvState }

// Attach binds an already-connected net.Conn (e.g. one produced by
// Listener.Accept) to this channel and registers it with the poller.
func (c *Channel) Attach(conn net.Conn, fd int) error {
	c.mu.Lock()
	c.conn = conn
	c.fd = fd
	c.mu.Unlock()

	if c.tlsConf != nil {
		return c.startTLS()
	}
	return c.finishHandshakes()
}

// Connect binds an already-dialed conn and drives the handshakes; async
// is not consulted.
func (c *Channel) Connect(conn net.Conn, fd int, async bool) error {
	c.mu.Lock()
	c.conn = conn
	c.fd = fd
	c.mu.Unlock()

	// socket.Connect and socket.ConnectAsync both return only once the
	// connect has finished, so there is no ConnectState::Send window to
	// model here.
	if c.tlsConf != nil {
		return c.startTLS()
	}
	return c.finishHandshakes()
}

func (c *Channel) setConnectState(s ConnectState) {
	c.mu.Lock()
	c.connectState = s
	c.mu.Unlock()
}

func (c *Channel) finishHandshakes() error {
	if c.extraHandshake != nil {
		c.setConnectState(ConnectExHandshaking)
		done, err := c.extraHandshake(c)
		if err != nil {
			c.setConnectState(ConnectFail)
			c.handler.EventError(c, ErrExHandshaking, err)
			return err
		}
		if !done {
			return nil // will be re-driven by eventRead/eventWrite
		}
	}
	return c.onConnectSuccess()
}

func (c *Channel) onConnectSuccess() error {
	c.mu.Lock()
	c.connectState = ConnectSuccess
	c.recvState = RecvStart
	c.mu.Unlock()

	if c.poller != nil && c.fd >= 0 {
		if err := c.poller.Add(c.fd, poller.MaskRead, c.onPollerEvent); err != nil {
			// already registered is fine if Attach/Connect raced with a
			// retried handshake step; anything else propagates.
			if !isAlreadyRegistered(err) {
				return err
			}
			_ = c.poller.SetMask(c.fd, poller.MaskRead)
		}
	}
	c.handler.EventConnect(c)
	return nil
}

func isAlreadyRegistered(err error) bool {
	e, ok := err.(liberr.Error)
	if !ok {
		return false
	}
	return e.HasCode(liberr.CodeError(poller.CodeAlreadyRegistered))
}

// SetExpired marks the channel Expired: the write buffer is allowed to
// drain before release. Idempotent.
func (c *Channel) SetExpired() {
	c.mu.Lock()
	if c.instanceState == InstanceDelete {
		c.mu.Unlock()
		return
	}
	c.instanceState = InstanceExpired
	c.mu.Unlock()
	if c.wbuf.Len() > 0 {
		_ = c.poller.OrMask(c.fd, poller.MaskWrite)
	} else {
		c.SetRelease()
	}
}

// SetRelease marks the channel Delete; the next reactor pass releases it.
func (c *Channel) SetRelease() {
	c.mu.Lock()
	if c.instanceState == InstanceDelete {
		c.mu.Unlock()
		return
	}
	c.instanceState = InstanceDelete
	c.mu.Unlock()
	if c.fd >= 0 {
		_ = c.poller.OrMask(c.fd, poller.MaskWrite)
	}
}

// releaseInstance closes the fd and unregisters the channel. Called once
// by the poller callback when InstanceDelete is observed.
func (c *Channel) releaseInstance() {
	c.mu.Lock()
	fd := c.fd
	c.fd = -1
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if c.poller != nil && fd >= 0 {
		_ = c.poller.Remove(fd)
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.registry.release(c.name)
}

// Write asks pkt to serialize into the write buffer and arms POLLOUT.
func (c *Channel) Write(pkt packet.Packet) error {
	if err := pkt.Serialize(c.wbuf); err != nil {
		return err
	}
	if c.fd >= 0 {
		return c.poller.OrMask(c.fd, poller.MaskWrite)
	}
	return nil
}

func (c *Channel) onPollerEvent(fd int, events poller.Mask, delThis *bool) {
	c.mu.Lock()
	state := c.instanceState
	cstate := c.connectState
	c.mu.Unlock()

	if state == InstanceDelete {
		*delThis = true
		c.releaseInstance()
		return
	}

	if cstate == ConnectSslHandshaking {
		c.driveTLSHandshake()
		return
	}

	if events&poller.MaskWrite != 0 {
		c.eventWrite()
	}
	if events&poller.MaskRead != 0 {
		c.eventRead()
	}

	c.mu.Lock()
	finalState := c.instanceState
	c.mu.Unlock()
	if finalState == InstanceDelete {
		*delThis = true
		c.releaseInstance()
	}
}
