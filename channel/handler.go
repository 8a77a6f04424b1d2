package channel

import "github.com/nabbar/reactor/packet"

// Handler receives a Channel's lifecycle events. Embed BaseHandler to get
// no-op defaults for the events a particular channel doesn't care about,
// matching the teacher's pattern of small interfaces with a default
// struct embedded by callers.
type Handler interface {
	// EventConnect fires once, on the transition to ConnectSuccess.
	EventConnect(ch *Channel)
	// EventReadFirstLine fires when a framer reports a first line
	// (HTTP-style framers only; Msg/Redis framers never call this).
	EventReadFirstLine(ch *Channel, line []byte)
	// EventReadPacket fires once per fully framed packet.
	EventReadPacket(ch *Channel, pkt packet.Packet)
	// EventWriteData fires after each successful partial or full write.
	EventWriteData(ch *Channel, n int)
	// EventError fires on any non-retryable error.
	EventError(ch *Channel, kind ErrorKind, errno error)
	// KeepAlive reports whether the channel should stay open after a
	// packet completes the Done recv state.
	KeepAlive(ch *Channel) bool
}

// BaseHandler implements Handler with no-op bodies.
type BaseHandler struct{}

func (BaseHandler) EventConnect(*Channel)                         {}
func (BaseHandler) EventReadFirstLine(*Channel, []byte)           {}
func (BaseHandler) EventReadPacket(*Channel, packet.Packet)       {}
func (BaseHandler) EventWriteData(*Channel, int)                  {}
func (BaseHandler) EventError(*Channel, ErrorKind, error)         {}
func (BaseHandler) KeepAlive(*Channel) bool                       { return true }
