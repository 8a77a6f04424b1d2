package channel

import (
	"github.com/nabbar/reactor/iobuf"
	"github.com/nabbar/reactor/packet"
	"github.com/nabbar/reactor/packet/msg"
)

// MsgFramer frames the length-prefixed Msg protocol: one header line
// carrying the body length, then exactly that many body bytes. It has no
// FirstLine/Header distinction, per spec.md §4.4.
type MsgFramer struct {
	line []byte
	cur  *msg.Packet
	want int
}

func NewMsgFramer() *MsgFramer { return &MsgFramer{} }

func (f *MsgFramer) BodyKeepOpen() bool                         { return false }
func (f *MsgFramer) FinalizeOnClose() (packet.Packet, bool)     { return nil, false }

func (f *MsgFramer) Feed(buf *iobuf.Buffer) ([]packet.Packet, [][]byte, RecvState, error) {
	var out []packet.Packet
	for {
		if f.cur == nil {
			if !buf.GetLine(&f.line) {
				return out, nil, RecvStart, nil
			}
			cmd, code, txid, bodyLen, attrs, err := msg.ParseHeader(f.line)
			if err != nil {
				return out, nil, RecvError, err
			}
			f.cur = &msg.Packet{Command: cmd, Code: code, TxID: txid, Attrs: attrs}
			f.want = bodyLen
			continue
		}
		if buf.Len() < f.want {
			return out, nil, RecvBody, nil
		}
		body := make([]byte, f.want)
		buf.ReadFromBuffer(body, f.want)
		f.cur.Body = body
		out = append(out, f.cur)
		f.cur = nil
		f.want = 0
	}
}
