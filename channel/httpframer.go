package channel

import (
	"strconv"
	"strings"

	liberr "github.com/nabbar/reactor/errors"
	"github.com/nabbar/reactor/iobuf"
	"github.com/nabbar/reactor/packet"
	"github.com/nabbar/reactor/packet/httpwire"
)

const (
	CodeFirstLineTooLong = 6600 + iota
	CodeHeaderLineTooLong
)

// MaxFirstLineLen and MaxHeaderLineLen bound a single scanned line before
// the framer gives up and reports RecvError.
const (
	MaxFirstLineLen  = 8192
	MaxHeaderLineLen = 8192
)

type httpSubState uint8

const (
	subFirstLine httpSubState = iota
	subHeader
	subBody
)

// HTTPFramer frames HTTP/1.x requests or responses. Server-side channels
// parse requests (IsRequest=true); client-side channels parse responses.
type HTTPFramer struct {
	IsRequest bool

	sub  httpSubState
	line []byte

	req *httpwire.Request
	res *httpwire.Response

	wantLen int
	haveLen bool
	body    []byte
}

func NewHTTPFramer(isRequest bool) *HTTPFramer {
	return &HTTPFramer{IsRequest: isRequest, sub: subFirstLine}
}

func (f *HTTPFramer) BodyKeepOpen() bool {
	return f.sub == subBody && !f.haveLen
}

func (f *HTTPFramer) FinalizeOnClose() (packet.Packet, bool) {
	if f.sub != subBody || f.haveLen {
		return nil, false
	}
	return f.finishBody()
}

func (f *HTTPFramer) finishBody() (packet.Packet, bool) {
	if f.IsRequest {
		f.req.Body = f.body
		p := f.req
		f.reset()
		return p, true
	}
	f.res.Body = f.body
	p := f.res
	f.reset()
	return p, true
}

func (f *HTTPFramer) reset() {
	f.sub = subFirstLine
	f.req = nil
	f.res = nil
	f.wantLen = 0
	f.haveLen = false
	f.body = nil
}

func (f *HTTPFramer) Feed(buf *iobuf.Buffer) ([]packet.Packet, [][]byte, RecvState, error) {
	var pkts []packet.Packet
	var firstLines [][]byte

	for {
		switch f.sub {
		case subFirstLine:
			if _, ok := buf.PeekLine(); !ok {
				if buf.Len() > MaxFirstLineLen {
					return pkts, firstLines, RecvError, liberr.NewErrorTrace(CodeFirstLineTooLong, "http first line too long", "httpframer.go", 0, nil)
				}
				return pkts, firstLines, RecvFirstLine, nil
			}
			buf.GetLine(&f.line)
			if f.IsRequest {
				m, target, ver, err := httpwire.ParseRequestLine(f.line)
				if err != nil {
					return pkts, firstLines, RecvError, err
				}
				f.req = httpwire.NewRequest()
				f.req.Method, f.req.Target, f.req.Version = m, target, ver
			} else {
				ver, status, reason, err := httpwire.ParseStatusLine(f.line)
				if err != nil {
					return pkts, firstLines, RecvError, err
				}
				f.res = httpwire.NewResponse()
				f.res.Version, f.res.Status, f.res.Reason = ver, status, reason
			}
			firstLines = append(firstLines, append([]byte(nil), f.line...))
			f.sub = subHeader

		case subHeader:
			n, ok := buf.PeekLine()
			if !ok {
				if buf.Len() > MaxHeaderLineLen {
					return pkts, firstLines, RecvError, liberr.NewErrorTrace(CodeHeaderLineTooLong, "http header line too long", "httpframer.go", 0, nil)
				}
				return pkts, firstLines, RecvHeader, nil
			}
			if n == 0 {
				buf.GetLine(&f.line) // consume blank line ending headers
				f.enterBody()
				continue
			}
			buf.GetLine(&f.line)
			key, val, err := httpwire.ParseHeaderLine(f.line)
			if err != nil {
				return pkts, firstLines, RecvError, err
			}
			f.headers().Add(key, val)

		case subBody:
			if f.haveLen {
				if buf.Len() < f.wantLen-len(f.body) {
					return pkts, firstLines, RecvBody, nil
				}
				need := f.wantLen - len(f.body)
				chunk := make([]byte, need)
				buf.ReadFromBuffer(chunk, need)
				f.body = append(f.body, chunk...)
				pkt, _ := f.finishBody()
				pkts = append(pkts, pkt)
				return pkts, firstLines, RecvDone, nil
			}
			// unknown length: accumulate everything currently buffered
			// and wait for peer close (BodyKeepOpen) or more data.
			n := buf.Len()
			if n > 0 {
				chunk := make([]byte, n)
				buf.ReadFromBuffer(chunk, n)
				f.body = append(f.body, chunk...)
			}
			return pkts, firstLines, RecvBody, nil
		}
	}
}

func (f *HTTPFramer) headers() *httpwire.Headers {
	if f.IsRequest {
		return f.req.Headers
	}
	return f.res.Headers
}

func (f *HTTPFramer) enterBody() {
	cl := f.headers().Get("Content-Length")
	if cl != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(cl)); err == nil && n >= 0 {
			f.wantLen = n
			f.haveLen = true
		}
	}
	if f.IsRequest && f.req.Method != httpwire.MethodPost && f.req.Method != httpwire.MethodPut && !f.haveLen {
		// Requests other than POST/PUT without Content-Length have no body at all.
		f.wantLen = 0
		f.haveLen = true
	}
	f.sub = subBody
	f.body = f.body[:0]
}
