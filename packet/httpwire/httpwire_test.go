package httpwire_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/packet/httpwire"
)

var _ = Describe("HTTP wire parsing", func() {
	It("parses a request line", func() {
		m, target, ver, err := httpwire.ParseRequestLine([]byte("GET /index.html HTTP/1.1"))
		Expect(err).ToNot(HaveOccurred())
		Expect(m).To(Equal(httpwire.MethodGet))
		Expect(target).To(Equal("/index.html"))
		Expect(ver).To(Equal(httpwire.Version11))
	})

	It("rejects a malformed request line", func() {
		_, _, _, err := httpwire.ParseRequestLine([]byte("GET"))
		Expect(err).To(HaveOccurred())
	})

	It("parses a status line with a multi-word reason", func() {
		ver, status, reason, err := httpwire.ParseStatusLine([]byte("HTTP/1.1 404 Not Found"))
		Expect(err).ToNot(HaveOccurred())
		Expect(ver).To(Equal(httpwire.Version11))
		Expect(status).To(Equal(404))
		Expect(reason).To(Equal("Not Found"))
	})

	It("parses a header line, trimming surrounding whitespace", func() {
		key, val, err := httpwire.ParseHeaderLine([]byte("Content-Type:  application/json "))
		Expect(err).ToNot(HaveOccurred())
		Expect(key).To(Equal("Content-Type"))
		Expect(val).To(Equal("application/json"))
	})

	It("round-trips a request through WriteTo", func() {
		req := httpwire.NewRequest()
		req.Method, req.Target, req.Version = httpwire.MethodGet, "/", httpwire.Version11
		req.Headers.Set("Host", "example.com")
		Expect(req.String()).To(Equal("GET / HTTP/1.1\r\nhost: example.com\r\n\r\n"))
	})
})
