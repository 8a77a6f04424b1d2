package compress_test

import (
	"bytes"
	"compress/flate"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/ioz/compress"
)

func flateReader(packed []byte) []byte {
	r := flate.NewReader(bytes.NewReader(packed))
	defer r.Close()
	out, err := io.ReadAll(r)
	Expect(err).ToNot(HaveOccurred())
	return out
}

var _ = Describe("Compress/Uncompress", func() {
	DescribeTable("round-trips through zlib and gzip",
		func(gzipWrap bool) {
			src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)
			packed, err := compress.Compress(src, -1, gzipWrap)
			Expect(err).ToNot(HaveOccurred())
			Expect(len(packed)).To(BeNumerically("<", len(src)))

			out, err := compress.Uncompress(packed, gzipWrap)
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(Equal(src))
		},
		Entry("zlib", false),
		Entry("gzip", true),
	)

	It("fails to uncompress a zlib-wrapped payload as gzip", func() {
		packed, err := compress.Compress([]byte("hello"), -1, false)
		Expect(err).ToNot(HaveOccurred())
		_, err = compress.Uncompress(packed, true)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Streamer", func() {
	It("accumulates Update chunks and flushes the remainder on Finalize", func() {
		s, err := compress.NewStreamer(-1)
		Expect(err).ToNot(HaveOccurred())

		var packed bytes.Buffer
		chunk1, err := s.Update([]byte("hello "))
		Expect(err).ToNot(HaveOccurred())
		packed.Write(chunk1)

		chunk2, err := s.Update([]byte("world"))
		Expect(err).ToNot(HaveOccurred())
		packed.Write(chunk2)

		tail, err := s.Finalize()
		Expect(err).ToNot(HaveOccurred())
		packed.Write(tail)

		r := flateReader(packed.Bytes())
		Expect(r).To(Equal([]byte("hello world")))
	})
})
