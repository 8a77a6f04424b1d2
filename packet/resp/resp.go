// Package resp implements a RESP (REdis Serialization Protocol) value
// type and a streaming reader that accepts arbitrary chunks and yields
// complete top-level values, per the spec's illustrative parser (§4.7):
// a LIFO stack of partially-built array frames plus a FIFO of completed
// values.
package resp

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/iobuf"
)

const (
	CodeMalformedLength = 6500 + iota
	CodeMalformedType
	CodeLineTooLong
)

type Kind byte

const (
	KindSimpleString Kind = '+'
	KindError        Kind = '-'
	KindInteger      Kind = ':'
	KindBulkString   Kind = '$'
	KindArray        Kind = '*'
)

// Value is a tagged sum type over RESP's five value kinds. Null bulk
// strings and null arrays are distinguished by Null=true.
type Value struct {
	Kind  Kind
	Str   string // simple-string, error, or bulk-string payload
	Int   int64
	Null  bool
	Array []Value
}

func (v Value) Clear() Value { return Value{} }

func (v Value) String() string {
	var b bytes.Buffer
	_, _ = v.WriteTo(&b)
	return b.String()
}

func (v Value) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	writeValue(&b, v)
	n, err := w.Write(b.Bytes())
	return int64(n), err
}

func (v Value) Serialize(buf *iobuf.Buffer) error {
	var b bytes.Buffer
	writeValue(&b, v)
	buf.WriteToBuffer(b.Bytes(), b.Len())
	return nil
}

func writeValue(b *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindSimpleString, KindError:
		b.WriteByte(byte(v.Kind))
		b.WriteString(v.Str)
		b.WriteString("\r\n")
	case KindInteger:
		b.WriteByte(byte(v.Kind))
		b.WriteString(strconv.FormatInt(v.Int, 10))
		b.WriteString("\r\n")
	case KindBulkString:
		if v.Null {
			b.WriteString("$-1\r\n")
			return
		}
		fmt.Fprintf(b, "$%d\r\n", len(v.Str))
		b.WriteString(v.Str)
		b.WriteString("\r\n")
	case KindArray:
		if v.Null {
			b.WriteString("*-1\r\n")
			return
		}
		fmt.Fprintf(b, "*%d\r\n", len(v.Array))
		for _, e := range v.Array {
			writeValue(b, e)
		}
	}
}

type frame struct {
	values []Value
	index  int
}

// Reader is a streaming RESP parser over a *iobuf.Buffer. Feed it bytes
// via the owning Channel's read buffer; call Next repeatedly to drain
// completed top-level values.
type Reader struct {
	stack    []*frame
	done     []Value
	bulkWant int
	inBulk   bool
}

func NewReader() *Reader { return &Reader{} }

// Feed consumes as many complete values as buf currently holds,
// appending them to the internal completed queue. It returns an error
// and clears all parser state on malformed input; the caller is
// expected to tear down the channel.
func (r *Reader) Feed(buf *iobuf.Buffer) error {
	for {
		progressed, err := r.step(buf)
		if err != nil {
			r.reset()
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// Next pops one completed top-level value, if any.
func (r *Reader) Next() (Value, bool) {
	if len(r.done) == 0 {
		return Value{}, false
	}
	v := r.done[0]
	r.done = r.done[1:]
	return v, true
}

func (r *Reader) reset() {
	r.stack = nil
	r.bulkWant = 0
	r.inBulk = false
}

func (r *Reader) step(buf *iobuf.Buffer) (bool, error) {
	if r.inBulk {
		data := buf.GrabRead()
		if len(data) < r.bulkWant+2 {
			return false, nil
		}
		s := string(data[:r.bulkWant])
		buf.MoveRead(r.bulkWant + 2)
		r.inBulk = false
		r.rollup(Value{Kind: KindBulkString, Str: s})
		return true, nil
	}

	if _, ok := buf.PeekLine(); !ok {
		return false, nil
	}
	var lb []byte
	buf.GetLine(&lb)
	if len(lb) == 0 {
		return false, liberr.NewErrorTrace(CodeMalformedType, "empty resp line", "resp.go", 0, nil)
	}

	switch Kind(lb[0]) {
	case KindSimpleString, KindError:
		r.rollup(Value{Kind: Kind(lb[0]), Str: string(lb[1:])})
	case KindInteger:
		iv, err := strconv.ParseInt(string(lb[1:]), 10, 64)
		if err != nil {
			return false, liberr.NewErrorTrace(CodeMalformedLength, "bad resp integer", "resp.go", 0, err)
		}
		r.rollup(Value{Kind: KindInteger, Int: iv})
	case KindBulkString:
		l, err := strconv.Atoi(string(lb[1:]))
		if err != nil {
			return false, liberr.NewErrorTrace(CodeMalformedLength, "bad resp bulk length", "resp.go", 0, err)
		}
		if l < 0 {
			r.rollup(Value{Kind: KindBulkString, Null: true})
		} else {
			r.bulkWant = l
			r.inBulk = true
		}
	case KindArray:
		l, err := strconv.Atoi(string(lb[1:]))
		if err != nil {
			return false, liberr.NewErrorTrace(CodeMalformedLength, "bad resp array length", "resp.go", 0, err)
		}
		if l < 0 {
			r.rollup(Value{Kind: KindArray, Null: true})
		} else if l == 0 {
			r.rollup(Value{Kind: KindArray, Array: []Value{}})
		} else {
			r.stack = append(r.stack, &frame{values: make([]Value, l)})
		}
	default:
		return false, liberr.NewErrorTrace(CodeMalformedType, "bad resp type byte", "resp.go", 0, nil)
	}
	return true, nil
}

// rollup writes v into the current top frame (or completes it as a
// top-level value if the stack is empty), recursively popping any frame
// whose index has reached its count.
func (r *Reader) rollup(v Value) {
	if len(r.stack) == 0 {
		r.done = append(r.done, v)
		return
	}
	top := r.stack[len(r.stack)-1]
	top.values[top.index] = v
	top.index++
	if top.index >= len(top.values) {
		r.stack = r.stack[:len(r.stack)-1]
		r.rollup(Value{Kind: KindArray, Array: top.values})
	}
}
