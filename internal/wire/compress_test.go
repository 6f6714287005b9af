package wire_test

import (
	"github.com/mdns-bridge/bridge/internal/dnsname"
	"github.com/mdns-bridge/bridge/internal/wire"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func decodedName(dotted string) *dnsname.Name {
	var n dnsname.Name
	_, err := wire.DecodeName(rawName(dotted), 0, &n)
	Expect(err).NotTo(HaveOccurred())
	return &n
}

var _ = Describe("CompressionDict.EncodeName", func() {
	var dict *wire.CompressionDict

	BeforeEach(func() {
		dict = wire.NewCompressionDict()
	})

	It("round-trips a name with no prior context", func() {
		out := dict.EncodeName(nil, decodedName("_http._tcp.local."))

		var got dnsname.Name
		_, err := wire.DecodeName(out, 0, &got)
		Expect(err).NotTo(HaveOccurred())
		Expect(dottedOf(&got)).To(Equal("_http._tcp.local"))
	})

	It("compresses a second name sharing a suffix with the first", func() {
		// Start after a 12-byte header, as in a real packet: DecodeName
		// rejects pointers into the header.
		out := dict.EncodeName(make([]byte, wire.HeaderSize), decodedName("_http._tcp.local."))
		firstLen := len(out)

		out = dict.EncodeName(out, decodedName("printer._http._tcp.local."))

		// The second name should reuse the first via a 2-byte pointer
		// plus its own single new label, not the full suffix again.
		Expect(len(out) - firstLen).To(Equal(1 + len("printer") + 2))

		var got dnsname.Name
		_, err := wire.DecodeName(out, firstLen, &got)
		Expect(err).NotTo(HaveOccurred())
		Expect(dottedOf(&got)).To(Equal("printer._http._tcp.local"))
	})

	It("emits a single pointer when the whole name was already written", func() {
		out := dict.EncodeName(nil, decodedName("_http._tcp.local."))
		firstLen := len(out)

		out = dict.EncodeName(out, decodedName("_http._tcp.local."))
		Expect(len(out) - firstLen).To(Equal(2))
	})

	It("never emits a pointer that does not point strictly backwards", func() {
		names := []string{
			"_http._tcp.local.",
			"printer._http._tcp.local.",
			"_ipp._tcp.local.",
			"host.local.",
		}

		var out []byte
		for _, dotted := range names {
			pos := len(out)
			out = dict.EncodeName(out, decodedName(dotted))

			if len(out)-pos == 2 && out[pos]&0xC0 == 0xC0 {
				p := (int(out[pos]&0x3F) << 8) | int(out[pos+1])
				Expect(p).To(BeNumerically("<", pos))
			}
		}
	})

	It("writes the seeded suffix local. in full when it is not yet in the packet", func() {
		out := dict.EncodeName(nil, decodedName("local."))
		var got dnsname.Name
		_, err := wire.DecodeName(out, 0, &got)
		Expect(err).NotTo(HaveOccurred())
		Expect(dottedOf(&got)).To(Equal("local"))
	})

	It("resets in O(1) but keeps the dictionary usable across packets", func() {
		dict.EncodeName(nil, decodedName("_http._tcp.local."))
		dict.Reset()

		out := dict.EncodeName(nil, decodedName("_http._tcp.local."))
		var got dnsname.Name
		_, err := wire.DecodeName(out, 0, &got)
		Expect(err).NotTo(HaveOccurred())
		Expect(dottedOf(&got)).To(Equal("_http._tcp.local"))
	})

	It("does not let positions recorded before a reset leak into the next packet", func() {
		dict.EncodeName(nil, decodedName("_http._tcp.local."))
		dict.Reset()

		// In the new packet, nothing has been written yet, so this must
		// emit full labels (relative to the new buffer), not a pointer
		// to a stale position from the previous packet's buffer.
		out := dict.EncodeName(nil, decodedName("_http._tcp.local."))
		Expect(out[0]).NotTo(Equal(byte(0xC0)))
	})

	It("round-trips a name whose labels contain arbitrary byte values", func() {
		var n dnsname.Name
		n.LabelOffset[0] = 0
		n.Raw[0] = 3
		n.Raw[1], n.Raw[2], n.Raw[3] = 0x01, 0xFE, 0xFF
		n.Length = 4
		n.LabelOffset[1] = 4
		n.Raw[4] = 5
		copy(n.Raw[5:10], "local")
		n.Length = 10
		n.Raw[10] = 0
		n.Length = 11
		n.LabelCount = 2

		out := dict.EncodeName(nil, &n)
		var got dnsname.Name
		_, err := wire.DecodeName(out, 0, &got)
		Expect(err).NotTo(HaveOccurred())
		Expect(dnsname.Equal(&got, &n)).To(BeTrue())
	})
})
