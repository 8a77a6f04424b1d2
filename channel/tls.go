package channel

import (
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/nabbar/reactor/poller"
)

// handshakeStepTimeout bounds each non-blocking handshake attempt; a
// timeout is treated as the spec's "wantrw" outcome rather than failure.
const handshakeStepTimeout = 10 * time.Millisecond

func (c *Channel) startTLS() error {
	var tconn *tls.Conn
	if c.isServer {
		tconn = tls.Server(c.conn, c.tlsConf)
	} else {
		tconn = tls.Client(c.conn, c.tlsConf)
	}
	c.mu.Lock()
	c.tlsConn = tconn
	c.connectState = ConnectSslHandshaking
	c.mu.Unlock()

	if c.poller != nil && c.fd >= 0 {
		if err := c.poller.Add(c.fd, poller.MaskRead, c.onPollerEvent); err != nil && !isAlreadyRegistered(err) {
			return err
		}
	}
	c.driveTLSHandshake()
	return nil
}

// driveTLSHandshake attempts one Handshake() call under a short deadline
// so a blocked net.Conn read/write looks, from the reactor's point of
// view, like the spec's "wantrw" outcome: the poller mask stays armed
// and the next readiness event re-enters here.
func (c *Channel) driveTLSHandshake() {
	_ = c.conn.SetDeadline(time.Now().Add(handshakeStepTimeout))
	err := c.tlsConn.Handshake()
	_ = c.conn.SetDeadline(time.Time{})

	if err == nil {
		if ferr := c.finishHandshakes(); ferr != nil {
			c.handler.EventError(c, ErrExHandshaking, ferr)
		}
		return
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return // wantrw: stay in SslHandshaking, mask already armed for read
	}

	c.setConnectState(ConnectFail)
	c.handler.EventError(c, ErrSslHandshaking, err)
	c.SetRelease()
}
