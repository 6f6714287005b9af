package iface_test

import (
	"github.com/mdns-bridge/bridge/internal/filter"
	"github.com/mdns-bridge/bridge/internal/iface"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("BuildPeers", func() {
	It("lists every other enabled interface as a peer", func() {
		a := &iface.Interface{Name: "eth0"}
		b := &iface.Interface{Name: "eth1"}
		c := &iface.Interface{Name: "eth2"}
		a.V4.Enabled, b.V4.Enabled, c.V4.Enabled = true, true, true

		ifaces := []*iface.Interface{a, b, c}
		iface.BuildPeers(ifaces, iface.IPv4)

		Expect(a.V4.Peers).To(HaveLen(2))
		Expect(b.V4.Peers).To(HaveLen(2))
		Expect(c.V4.Peers).To(HaveLen(2))
	})

	It("skips interfaces whose family is disabled", func() {
		a := &iface.Interface{Name: "eth0"}
		b := &iface.Interface{Name: "eth1"}
		a.V6.Enabled = true
		b.V6.Enabled = false

		ifaces := []*iface.Interface{a, b}
		iface.BuildPeers(ifaces, iface.IPv6)

		Expect(a.V6.Peers).To(BeEmpty())
	})

	It("counts no-filter peers and deduplicates structurally equal outbound filters", func() {
		src := &iface.Interface{Name: "eth0"}
		open1 := &iface.Interface{Name: "eth1"}
		open2 := &iface.Interface{Name: "eth2"}
		filteredA := &iface.Interface{Name: "eth3"}
		filteredB := &iface.Interface{Name: "eth4"}

		for _, i := range []*iface.Interface{src, open1, open2, filteredA, filteredB} {
			i.V4.Enabled = true
		}

		fa, err := filter.New(filter.Allow, []string{"_http._tcp.local."})
		Expect(err).NotTo(HaveOccurred())
		fb, err := filter.New(filter.Allow, []string{"_http._tcp.local."})
		Expect(err).NotTo(HaveOccurred())
		filteredA.OutboundFilter = fa
		filteredB.OutboundFilter = fb

		ifaces := []*iface.Interface{src, open1, open2, filteredA, filteredB}
		iface.BuildPeers(ifaces, iface.IPv4)

		Expect(src.V4.Peers).To(HaveLen(4))
		Expect(src.V4.PeerNoFilterCount).To(Equal(2))
		Expect(src.V4.PeerFilters).To(HaveLen(1))
	})

	It("rebuilds the peer list idempotently when called more than once", func() {
		a := &iface.Interface{Name: "eth0"}
		b := &iface.Interface{Name: "eth1"}
		a.V4.Enabled, b.V4.Enabled = true, true

		ifaces := []*iface.Interface{a, b}
		iface.BuildPeers(ifaces, iface.IPv4)
		iface.BuildPeers(ifaces, iface.IPv4)

		Expect(a.V4.Peers).To(HaveLen(1))
	})
})
