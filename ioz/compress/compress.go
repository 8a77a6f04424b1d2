// Package compress implements zlib/gzip compression and decompression,
// grounded on original_source/src/pw_compress.h's Compress class
// (s_compress/s_uncompress, incremental update/finalize), translated onto
// Go's standard compress/zlib and compress/gzip.
package compress

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
)

// Compress returns in, deflated at level (1-9, or -1 for
// flate.DefaultCompression), wrapped in a gzip container if gzip is true,
// zlib otherwise. Mirrors Compress::s_compress.
func Compress(in []byte, level int, gzipWrap bool) ([]byte, error) {
	var buf bytes.Buffer
	var wc io.WriteCloser
	var err error
	if gzipWrap {
		wc, err = gzip.NewWriterLevel(&buf, level)
	} else {
		wc, err = zlib.NewWriterLevel(&buf, level)
	}
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if _, err := wc.Write(in); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Uncompress is the symmetric counterpart of Compress, mirroring
// Compress::s_uncompress.
func Uncompress(in []byte, gzipWrap bool) ([]byte, error) {
	var rc io.ReadCloser
	var err error
	if gzipWrap {
		rc, err = gzip.NewReader(bytes.NewReader(in))
	} else {
		rc, err = zlib.NewReader(bytes.NewReader(in))
	}
	if err != nil {
		return nil, fmt.Errorf("uncompress: %w", err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("uncompress: %w", err)
	}
	return out, nil
}

// Streamer is the incremental update/finalize shape of the original's
// Compress object, for callers that want to feed chunks instead of
// holding the whole payload in memory.
type Streamer struct {
	w   *flate.Writer
	buf bytes.Buffer
}

// NewStreamer starts an incremental raw-deflate compression stream at
// level; the gzip/zlib envelope is added by the caller around Finalize's
// output if desired, since flate.Writer itself is envelope-free.
func NewStreamer(level int) (*Streamer, error) {
	s := &Streamer{}
	w, err := flate.NewWriter(&s.buf, level)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	s.w = w
	return s, nil
}

// Update feeds in and returns any newly available compressed output.
func (s *Streamer) Update(in []byte) ([]byte, error) {
	if _, err := s.w.Write(in); err != nil {
		return nil, err
	}
	if err := s.w.Flush(); err != nil {
		return nil, err
	}
	out := s.buf.Bytes()
	s.buf.Reset()
	return out, nil
}

// Finalize flushes and closes the stream, returning any trailing bytes.
func (s *Streamer) Finalize() ([]byte, error) {
	if err := s.w.Close(); err != nil {
		return nil, err
	}
	out := s.buf.Bytes()
	s.buf.Reset()
	return out, nil
}
