// Package msg implements the length-prefixed "Msg" wire protocol: a text
// header line of the form
//
//	<command> <code> <txid> <body-length> [key=value ...]\r\n
//
// followed by exactly body-length bytes of body.
package msg

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/iobuf"
)

const (
	CodeBadHeader = 6300 + iota
	CodeHeaderTooLong
	CodeHeaderTooShort
)

// MinHeaderSize and MaxHeaderSize bound a valid header line, mirroring
// the original's MIN_HEADER_SIZE/MAX_HEADER_SIZE constants.
const (
	MinHeaderSize = len("X 0 0 0\r\n")
	MaxHeaderSize = 4096
)

// Packet is one Msg-protocol message.
type Packet struct {
	Command string
	Code    int
	TxID    uint64
	Attrs   map[string]string
	Body    []byte
}

func New() *Packet { return &Packet{Attrs: make(map[string]string)} }

func (p *Packet) Clear() {
	p.Command, p.Code, p.TxID = "", 0, 0
	for k := range p.Attrs {
		delete(p.Attrs, k)
	}
	p.Body = p.Body[:0]
}

func (p *Packet) String() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %d %d %d", p.Command, p.Code, p.TxID, len(p.Body))
	for k, v := range p.Attrs {
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	b.WriteString("\r\n")
	b.Write(p.Body)
	n, err := w.Write(b.Bytes())
	return int64(n), err
}

// Serialize appends the header line and body to buf.
func (p *Packet) Serialize(buf *iobuf.Buffer) error {
	var b bytes.Buffer
	_, err := p.WriteTo(&b)
	if err != nil {
		return err
	}
	buf.WriteToBuffer(b.Bytes(), b.Len())
	return nil
}

// ParseHeader parses one Msg header line (without the trailing CRLF,
// already stripped by the channel's GetLine call) into command/code/
// txid/body-length/attrs.
func ParseHeader(line []byte) (command string, code int, txid uint64, bodyLen int, attrs map[string]string, err error) {
	if len(line) < MinHeaderSize-2 {
		return "", 0, 0, 0, nil, liberr.NewErrorTrace(CodeHeaderTooShort, "msg header too short", "msg.go", 0, nil)
	}
	if len(line) > MaxHeaderSize {
		return "", 0, 0, 0, nil, liberr.NewErrorTrace(CodeHeaderTooLong, "msg header too long", "msg.go", 0, nil)
	}
	fields := strings.Fields(string(line))
	if len(fields) < 4 {
		return "", 0, 0, 0, nil, liberr.NewErrorTrace(CodeBadHeader, "msg header missing fields", "msg.go", 0, nil)
	}
	command = fields[0]
	code, err = strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, 0, 0, nil, liberr.NewErrorTrace(CodeBadHeader, "msg header bad code", "msg.go", 0, err)
	}
	txid, err = strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return "", 0, 0, 0, nil, liberr.NewErrorTrace(CodeBadHeader, "msg header bad txid", "msg.go", 0, err)
	}
	bodyLen, err = strconv.Atoi(fields[3])
	if err != nil || bodyLen < 0 {
		return "", 0, 0, 0, nil, liberr.NewErrorTrace(CodeBadHeader, "msg header bad body length", "msg.go", 0, err)
	}
	attrs = make(map[string]string, len(fields)-4)
	for _, kv := range fields[4:] {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			attrs[kv[:i]] = kv[i+1:]
		}
	}
	return command, code, txid, bodyLen, attrs, nil
}
