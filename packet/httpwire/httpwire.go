// Package httpwire implements the HTTP/1.x framing the channel package
// needs: request/response first-line parsing, an insertion-stable header
// map, serialization, form-body split/merge, and the content-encoding
// names (identity, gzip, deflate, sdch). Bodies are not decoded here;
// body framing, including finalization on peer close, is done by
// channel's HTTPFramer.
package httpwire

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
	CodeBadFirstLine = 6400 + iota
	CodeBadHeaderLine
)

type Method string

const (
	MethodConnect Method = "CONNECT"
	MethodOptions Method = "OPTIONS"
	MethodDelete  Method = "DELETE"
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodTrace   Method = "TRACE"
)

type Version string

const (
	Version10 Version = "HTTP/1.0"
	Version11 Version = "HTTP/1.1"
	Version20 Version = "HTTP/2"
)

type ContentEncoding string

const (
	EncodingIdentity ContentEncoding = "identity"
	EncodingGzip     ContentEncoding = "gzip"
	EncodingDeflate  ContentEncoding = "deflate"
	EncodingSDCH     ContentEncoding = "sdch"
)

// Headers is an insertion-stable ordered header map.
type Headers struct {
	keys   []string
	values map[string][]string
}

func NewHeaders() *Headers {
	return &Headers{values: make(map[string][]string)}
}

func (h *Headers) Add(key, value string) {
	ck := http_canonical(key)
	if _, ok := h.values[ck]; !ok {
		h.keys = append(h.keys, ck)
	}
	h.values[ck] = append(h.values[ck], value)
}

func (h *Headers) Set(key, value string) {
	ck := http_canonical(key)
	if _, ok := h.values[ck]; !ok {
		h.keys = append(h.keys, ck)
	}
	h.values[ck] = []string{value}
}

func (h *Headers) Get(key string) string {
	v := h.values[http_canonical(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (h *Headers) Keys() []string { return h.keys }

func (h *Headers) Clear() {
	h.keys = h.keys[:0]
	for k := range h.values {
		delete(h.values, k)
	}
}

func http_canonical(key string) string { return strings.ToLower(key) }

func (h *Headers) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, k := range h.keys {
		for _, v := range h.values[k] {
			m, err := fmt.Fprintf(w, "%s: %s\r\n", k, v)
			n += int64(m)
			if err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Request is an HTTP/1.x request packet.
type Request struct {
	Method  Method
	Target  string
	Version Version
	Headers *Headers
	Body    []byte
}

func NewRequest() *Request { return &Request{Headers: NewHeaders()} }

func (p *Request) Clear() {
	p.Method, p.Target, p.Version = "", "", ""
	p.Headers.Clear()
	p.Body = p.Body[:0]
}

func (p *Request) String() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

func (p *Request) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s\r\n", p.Method, p.Target, p.Version)
	_, _ = p.Headers.WriteTo(&b)
	b.WriteString("\r\n")
	b.Write(p.Body)
	n, err := w.Write(b.Bytes())
	return int64(n), err
}

func (p *Request) Serialize(buf *iobuf.Buffer) error {
	var b bytes.Buffer
	if _, err := p.WriteTo(&b); err != nil {
		return err
	}
	buf.WriteToBuffer(b.Bytes(), b.Len())
	return nil
}

// ParseRequestLine parses "METHOD target VERSION".
func ParseRequestLine(line []byte) (Method, string, Version, error) {
	fields := strings.Fields(string(line))
	if len(fields) != 3 {
		return "", "", "", liberr.NewErrorTrace(CodeBadFirstLine, "bad request line", "httpwire.go", 0, nil)
	}
	return Method(fields[0]), fields[1], Version(fields[2]), nil
}

// Response is an HTTP/1.x response packet.
type Response struct {
	Version Version
	Status  int
	Reason  string
	Headers *Headers
	Body    []byte
}

func NewResponse() *Response { return &Response{Headers: NewHeaders()} }

func (p *Response) Clear() {
	p.Version, p.Status, p.Reason = "", 0, ""
	p.Headers.Clear()
	p.Body = p.Body[:0]
}

func (p *Response) String() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

func (p *Response) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %d %s\r\n", p.Version, p.Status, p.Reason)
	_, _ = p.Headers.WriteTo(&b)
	b.WriteString("\r\n")
	b.Write(p.Body)
	n, err := w.Write(b.Bytes())
	return int64(n), err
}

func (p *Response) Serialize(buf *iobuf.Buffer) error {
	var b bytes.Buffer
	if _, err := p.WriteTo(&b); err != nil {
		return err
	}
	buf.WriteToBuffer(b.Bytes(), b.Len())
	return nil
}

// ParseStatusLine parses "VERSION status reason...".
func ParseStatusLine(line []byte) (Version, int, string, error) {
	fields := strings.SplitN(string(line), " ", 3)
	if len(fields) < 2 {
		return "", 0, "", liberr.NewErrorTrace(CodeBadFirstLine, "bad status line", "httpwire.go", 0, nil)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, "", liberr.NewErrorTrace(CodeBadFirstLine, "bad status code", "httpwire.go", 0, err)
	}
	reason := ""
	if len(fields) == 3 {
		reason = fields[2]
	}
	return Version(fields[0]), code, reason, nil
}

// ParseHeaderLine parses one "Key: Value" header line.
func ParseHeaderLine(line []byte) (string, string, error) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return "", "", liberr.NewErrorTrace(CodeBadHeaderLine, "bad header line", "httpwire.go", 0, nil)
	}
	key := strings.TrimSpace(string(line[:i]))
	val := strings.TrimSpace(string(line[i+1:]))
	return key, val, nil
}

// SplitForm parses a application/x-www-form-urlencoded body, delegating
// percent-decoding to codec/urlenc.
func SplitForm(body []byte) (map[string][]string, error) {
	return splitFormImpl(body)
}

// MergeForm is the inverse of SplitForm.
func MergeForm(values map[string][]string) []byte {
	return mergeFormImpl(values)
}
