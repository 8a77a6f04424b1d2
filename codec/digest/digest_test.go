package digest_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/codec/digest"
)

var _ = Describe("Digest", func() {
	DescribeTable("produces the expected digest size",
		func(t digest.Type, size int) {
			Expect(digest.Size(t)).To(Equal(size))
		},
		Entry("md5", digest.MD5, 16),
		Entry("sha1", digest.SHA1, 20),
		Entry("sha224", digest.SHA224, 28),
		Entry("sha256", digest.SHA256, 32),
		Entry("sha384", digest.SHA384, 48),
		Entry("sha512", digest.SHA512, 64),
		Entry("ripemd160", digest.RIPEMD160, 20),
	)

	It("returns nil and zero size for an unsupported type", func() {
		Expect(digest.New(digest.Invalid)).To(BeNil())
		Expect(digest.Size(digest.Invalid)).To(Equal(0))
	})

	It("sums the same input to the same digest twice", func() {
		a, ok := digest.Sum(digest.SHA256, []byte("reactor"))
		Expect(ok).To(BeTrue())
		b, _ := digest.Sum(digest.SHA256, []byte("reactor"))
		Expect(a).To(Equal(b))
		Expect(a).To(HaveLen(32))
	})

	It("fails Sum for an unsupported type", func() {
		_, ok := digest.Sum(digest.Invalid, []byte("x"))
		Expect(ok).To(BeFalse())
	})
})
