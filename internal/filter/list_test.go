package filter_test

import (
	"github.com/mdns-bridge/bridge/internal/dnsname"
	"github.com/mdns-bridge/bridge/internal/filter"
	"github.com/mdns-bridge/bridge/internal/matcher"
	"github.com/mdns-bridge/bridge/internal/wire"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func decode(dotted string) *dnsname.Name {
	m, err := matcher.Build(dotted)
	Expect(err).NotTo(HaveOccurred())

	var n dnsname.Name
	_, err = wire.DecodeName(m.Bytes(), 0, &n)
	Expect(err).NotTo(HaveOccurred())
	return &n
}

var _ = Describe("New", func() {
	It("sorts and deduplicates the configured names", func() {
		a, err := filter.New(filter.Deny, []string{"b.local.", "a.local.", "b.local."})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Names).To(HaveLen(2))

		b, err := filter.New(filter.Deny, []string{"a.local.", "b.local."})
		Expect(err).NotTo(HaveOccurred())

		Expect(filter.Equal(a, b)).To(BeTrue())
	})

	It("rejects an invalid name", func() {
		_, err := filter.New(filter.Allow, []string{"foo..local."})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("List.Evaluate", func() {
	It("allows only matching names in allow mode", func() {
		l, err := filter.New(filter.Allow, []string{"_http._tcp.local."})
		Expect(err).NotTo(HaveOccurred())

		Expect(l.Evaluate(decode("printer._http._tcp.local."))).To(BeTrue())
		Expect(l.Evaluate(decode("_ipp._tcp.local."))).To(BeFalse())
	})

	It("denies only matching names in deny mode", func() {
		l, err := filter.New(filter.Deny, []string{"_ipp._tcp.local."})
		Expect(err).NotTo(HaveOccurred())

		Expect(l.Evaluate(decode("_ipp._tcp.local."))).To(BeFalse())
		Expect(l.Evaluate(decode("_http._tcp.local."))).To(BeTrue())
	})

	It("is allow-all when empty in deny mode and deny-all when empty in allow mode", func() {
		allowAll, err := filter.New(filter.Deny, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowAll.Evaluate(decode("anything.local."))).To(BeTrue())

		denyAll, err := filter.New(filter.Allow, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(denyAll.Evaluate(decode("anything.local."))).To(BeFalse())
	})
})

var _ = Describe("Equal", func() {
	It("treats nil and non-nil lists as unequal", func() {
		l, err := filter.New(filter.Allow, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(filter.Equal(nil, l)).To(BeFalse())
		Expect(filter.Equal(l, nil)).To(BeFalse())
		Expect(filter.Equal(nil, nil)).To(BeTrue())
	})

	It("treats different modes with the same names as unequal", func() {
		a, err := filter.New(filter.Allow, []string{"a.local."})
		Expect(err).NotTo(HaveOccurred())
		b, err := filter.New(filter.Deny, []string{"a.local."})
		Expect(err).NotTo(HaveOccurred())
		Expect(filter.Equal(a, b)).To(BeFalse())
	})
})
