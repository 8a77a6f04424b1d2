package channel

import "github.com/nabbar/reactor/poller"

// eventRead is invoked when the fd is readable. It pulls bytes into the
// read buffer, then drains as many complete packets as the framer can
// produce; retryable read errors are swallowed (iobuf.ReadFromFile
// already folds EAGAIN/EINTR into (n, nil)).
func (c *Channel) eventRead() {
	n, err := c.rbuf.ReadFromFile(c.transport())
	if err != nil {
		c.handler.EventError(c, ErrRead, err)
		c.SetRelease()
		return
	}
	if n == 0 {
		c.handlePeerClose()
		return
	}

	pkts, firstLines, state, ferr := c.framer.Feed(c.rbuf)
	c.mu.Lock()
	c.recvState = state
	c.mu.Unlock()

	if ferr != nil {
		c.handler.EventError(c, ErrInvalidPacket, ferr)
		c.mu.Lock()
		c.recvState = RecvStart
		c.mu.Unlock()
		return
	}

	for _, line := range firstLines {
		c.handler.EventReadFirstLine(c, line)
	}
	for _, pkt := range pkts {
		c.handler.EventReadPacket(c, pkt)
		if !c.handler.KeepAlive(c) {
			c.SetExpired()
		}
		c.mu.Lock()
		c.recvState = RecvStart
		c.mu.Unlock()
	}
}

func (c *Channel) handlePeerClose() {
	if c.framer.BodyKeepOpen() {
		if pkt, ok := c.framer.FinalizeOnClose(); ok {
			c.handler.EventReadPacket(c, pkt)
		}
	} else {
		c.handler.EventError(c, ErrReadClose, nil)
	}
	c.SetRelease()
}

// eventWrite drains the write buffer up to writeIterLimit iterations per
// reactor pass.
func (c *Channel) eventWrite() {
	for i := 0; i < c.writeIterLimit; i++ {
		if c.wbuf.Len() == 0 {
			break
		}
		n, err := c.wbuf.WriteToFile(c.transport())
		if err != nil {
			c.handler.EventError(c, ErrWrite, err)
			c.SetRelease()
			return
		}
		if n > 0 {
			c.handler.EventWriteData(c, n)
		}
		if n == 0 {
			break // EAGAIN-equivalent: stop for this pass
		}
	}
	if c.wbuf.Len() == 0 {
		if c.fd >= 0 {
			_ = c.poller.AndMask(c.fd, poller.MaskRead)
		}
		c.mu.Lock()
		expired := c.instanceState == InstanceExpired
		c.mu.Unlock()
		if expired {
			c.SetRelease()
		}
	}
}

// transport returns the live TLS session if the handshake has completed,
// or the raw connection otherwise, so iobuf's read/write helpers work
// identically for plain and TLS channels.
func (c *Channel) transport() netReadWriter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tlsConn != nil {
		return c.tlsConn
	}
	return c.conn
}

type netReadWriter interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}
