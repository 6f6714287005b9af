package matcher_test

import (
	"github.com/mdns-bridge/bridge/internal/dnsname"
	"github.com/mdns-bridge/bridge/internal/matcher"
	"github.com/mdns-bridge/bridge/internal/wire"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// decode builds a simple uncompressed wire-form name from a dotted string
// and decodes it straight back, for use as decoder-shaped input in tests.
func decode(dotted string) *dnsname.Name {
	m, err := matcher.Build(dotted)
	Expect(err).NotTo(HaveOccurred())

	var n dnsname.Name
	_, err = wire.DecodeName(m.Bytes(), 0, &n)
	Expect(err).NotTo(HaveOccurred())
	return &n
}

var _ = Describe("Build", func() {
	It("round-trips a simple name", func() {
		m, err := matcher.Build("_http._tcp.local.")
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Bytes()).To(Equal([]byte{
			5, '_', 'h', 't', 't', 'p',
			4, '_', 't', 'c', 'p',
			5, 'l', 'o', 'c', 'a', 'l',
			0,
		}))
	})

	It("accepts a name without a trailing dot", func() {
		m1, err := matcher.Build("local")
		Expect(err).NotTo(HaveOccurred())
		m2, err := matcher.Build("local.")
		Expect(err).NotTo(HaveOccurred())
		Expect(m1.Bytes()).To(Equal(m2.Bytes()))
	})

	It("rejects an empty label", func() {
		_, err := matcher.Build("foo..local.")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a label longer than 63 bytes", func() {
		long := make([]byte, 64)
		for i := range long {
			long[i] = 'a'
		}
		_, err := matcher.Build(string(long) + ".local.")
		Expect(err).To(HaveOccurred())
	})

	It("accepts a label exactly 63 bytes", func() {
		ok := make([]byte, 63)
		for i := range ok {
			ok[i] = 'a'
		}
		_, err := matcher.Build(string(ok) + ".local.")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a name with more than 127 labels", func() {
		dotted := ""
		for i := 0; i < 128; i++ {
			dotted += "a."
		}
		_, err := matcher.Build(dotted)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Contains", func() {
	var suffix *matcher.Name

	BeforeEach(func() {
		var err error
		suffix, err = matcher.Build("_http._tcp.local.")
		Expect(err).NotTo(HaveOccurred())
	})

	It("matches the exact name", func() {
		name := decode("_http._tcp.local.")
		Expect(matcher.Contains(name, suffix)).To(BeTrue())
	})

	It("matches a name with a more specific owner", func() {
		name := decode("printer._http._tcp.local.")
		Expect(matcher.Contains(name, suffix)).To(BeTrue())
	})

	It("does not match a name whose preceding label merely shares a suffix of bytes", func() {
		name := decode("my_http._tcp.local.")
		Expect(matcher.Contains(name, suffix)).To(BeFalse())
	})

	It("does not match an unrelated name", func() {
		name := decode("_ipp._tcp.local.")
		Expect(matcher.Contains(name, suffix)).To(BeFalse())
	})
})
