package channel

import (
	"github.com/nabbar/reactor/iobuf"
	"github.com/nabbar/reactor/packet"
)

// Framer owns a protocol's incremental parser. Feed is called whenever
// new bytes have landed in the channel's read buffer; it returns zero or
// more complete packets and reports the channel's current RecvState for
// observability.
//
// Contract: a framer keeps partial progress in its own state, so Feed may
// advance the read cursor past complete header lines and body bytes even
// when no packet is finished yet (err == nil, len(pkts) == 0); an
// incomplete line is left in buf. A non-nil err reports a malformed
// packet.
type Framer interface {
	// Feed consumes available bytes. firstLines carries any first-line
	// notifications observed during this call (HTTP-style framers
	// only), in order, ahead of any packets completed in the same call.
	Feed(buf *iobuf.Buffer) (pkts []packet.Packet, firstLines [][]byte, state RecvState, err error)
	// BodyKeepOpen reports whether this framer is mid-body with an
	// unknown length, so that peer close should finalize rather than
	// error (the HTTP unknown-length body carve-out).
	BodyKeepOpen() bool
	// FinalizeOnClose is called when BodyKeepOpen is true and the peer
	// closed; it returns the finalized packet, if any.
	FinalizeOnClose() (pkt packet.Packet, ok bool)
}
