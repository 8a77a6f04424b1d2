package strfilter_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/codec/strfilter"
)

var _ = Describe("Filter", func() {
	It("matches a case-sensitive substring and reports None when clean", func() {
		f := strfilter.New()
		Expect(f.Add(strfilter.Substring, "bad")).To(Succeed())

		Expect(f.Check("this is bad")).To(Equal(strfilter.Substring))
		Expect(f.Check("This Is BAD")).To(Equal(strfilter.None))
		Expect(f.Check("clean")).To(Equal(strfilter.None))
	})

	It("matches case-insensitively", func() {
		f := strfilter.New()
		Expect(f.Add(strfilter.SubstringInsensitive, "bad")).To(Succeed())
		Expect(f.Check("This Is BAD")).To(Equal(strfilter.SubstringInsensitive))
	})

	It("matches a compiled regex", func() {
		f := strfilter.New()
		Expect(f.Add(strfilter.Regex, `^\d+$`)).To(Succeed())
		Expect(f.Check("12345")).To(Equal(strfilter.Regex))
		Expect(f.Check("12345a")).To(Equal(strfilter.None))
	})

	It("rejects an invalid regex", func() {
		f := strfilter.New()
		Expect(f.Add(strfilter.Regex, "(unterminated")).To(HaveOccurred())
	})

	It("matches by SHA-256 hash membership", func() {
		sum := sha256.Sum256([]byte("secret"))
		f := strfilter.New()
		Expect(f.Add(strfilter.Hash, hex.EncodeToString(sum[:]))).To(Succeed())

		p, needle := f.Check2("secret")
		Expect(p).To(Equal(strfilter.Hash))
		Expect(needle).To(Equal(hex.EncodeToString(sum[:])))
		Expect(f.Check("other")).To(Equal(strfilter.None))
	})

	It("round-trips rules through WriteToStream/ReadFromStream", func() {
		f := strfilter.New()
		Expect(f.Add(strfilter.Substring, "needle")).To(Succeed())
		Expect(f.Add(strfilter.RegexInsensitive, "^ok$")).To(Succeed())

		var sb strings.Builder
		Expect(f.WriteToStream(&sb)).To(Succeed())

		out, err := strfilter.ReadFromStream(strings.NewReader(sb.String()))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.Size()).To(Equal(2))
		Expect(out.Check("has needle inside")).To(Equal(strfilter.Substring))
	})

	It("skips blank lines and comments when reading", func() {
		src := "# comment\n\nsubstring foo\n"
		f, err := strfilter.ReadFromStream(strings.NewReader(src))
		Expect(err).ToNot(HaveOccurred())
		Expect(f.Size()).To(Equal(1))
	})

	It("reports Empty for a fresh filter", func() {
		f := strfilter.New()
		Expect(f.Empty()).To(BeTrue())
		Expect(f.Add(strfilter.Substring, "x")).To(Succeed())
		Expect(f.Empty()).To(BeFalse())
	})
})
