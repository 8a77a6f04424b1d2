// Package packet defines the marker interface every wire-protocol codec
// implements to plug into a Channel's read/write path, plus the built-in
// opaque-body packet types.
package packet

import (
	"fmt"
	"io"

	"github.com/nabbar/reactor/iobuf"
)

// Packet is any value that can serialize itself for the write path and
// for diagnostics, and reset to a reusable empty state.
type Packet interface {
	// Serialize appends this packet's wire representation to buf.
	Serialize(buf *iobuf.Buffer) error
	// WriteTo writes a human-readable form, for logging/tests.
	WriteTo(w io.Writer) (int64, error)
	// String returns the same human-readable form as a string.
	String() string
	// Clear resets the packet to a reusable empty state.
	Clear()
}

// Blob is an opaque-body packet: exactly the bytes given, no framing.
// Used directly by the echo scenario's framer.
type Blob struct {
	Body []byte
}

func NewBlob(b []byte) *Blob { return &Blob{Body: append([]byte(nil), b...)} }

func (p *Blob) Serialize(buf *iobuf.Buffer) error {
	buf.WriteToBuffer(p.Body, len(p.Body))
	return nil
}

func (p *Blob) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Body)
	return int64(n), err
}

func (p *Blob) String() string { return fmt.Sprintf("Blob(%d bytes)", len(p.Body)) }

func (p *Blob) Clear() { p.Body = p.Body[:0] }
