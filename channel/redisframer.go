package channel

import (
	"io"

	"github.com/nabbar/reactor/iobuf"
	"github.com/nabbar/reactor/packet"
	"github.com/nabbar/reactor/packet/resp"
)

// RedisFramer delegates all framing to a resp.Reader, bypassing the
// FirstLine/Header/Body sub-state machine entirely, per spec.md §4.4.
type RedisFramer struct {
	r *resp.Reader
}

func NewRedisFramer() *RedisFramer { return &RedisFramer{r: resp.NewReader()} }

func (f *RedisFramer) BodyKeepOpen() bool                     { return false }
func (f *RedisFramer) FinalizeOnClose() (packet.Packet, bool) { return nil, false }

func (f *RedisFramer) Feed(buf *iobuf.Buffer) ([]packet.Packet, [][]byte, RecvState, error) {
	if err := f.r.Feed(buf); err != nil {
		return nil, nil, RecvError, err
	}
	var out []packet.Packet
	for {
		v, ok := f.r.Next()
		if !ok {
			break
		}
		vv := v
		out = append(out, respPacket{&vv})
	}
	state := RecvBody
	if len(out) > 0 {
		state = RecvDone
	}
	return out, nil, state, nil
}

// respPacket adapts resp.Value (a value type) to the packet.Packet
// interface, which expects pointer-receiver Clear semantics.
type respPacket struct{ v *resp.Value }

func (p respPacket) Serialize(buf *iobuf.Buffer) error  { return p.v.Serialize(buf) }
func (p respPacket) WriteTo(w io.Writer) (int64, error) { return p.v.WriteTo(w) }
func (p respPacket) String() string                     { return p.v.String() }
func (p respPacket) Clear()                              { *p.v = resp.Value{} }
