package config_test

import (
	"os"
	"path/filepath"

	"github.com/mdns-bridge/bridge/internal/config"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func writeConfig(dir, contents string) string {
	path := filepath.Join(dir, "mdns-bridge.conf")
	Expect(os.WriteFile(path, []byte(contents), 0o644)).To(Succeed())
	return path
}

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "mdns-bridge-config-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("loads a minimal two-interface configuration", func() {
		path := writeConfig(dir, `
[global]
interfaces = eth0, eth1
`)
		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Interfaces).To(HaveLen(2))
		Expect(cfg.Interfaces[0].Name).To(Equal("eth0"))
		Expect(cfg.Interfaces[1].Name).To(Equal("eth1"))
	})

	It("requires at least two interfaces", func() {
		path := writeConfig(dir, `
[global]
interfaces = eth0
`)
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("requires a [global] section", func() {
		path := writeConfig(dir, `
[eth0]
disable-ipv6 = yes
`)
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("parses per-interface filters", func() {
		path := writeConfig(dir, `
[global]
interfaces = eth0, eth1

[eth0]
allow-outbound-filters = _http._tcp.local., _ipp._tcp.local.

[eth1]
deny-inbound-filters = _ssh._tcp.local.
`)
		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Interfaces[0].Outbound).NotTo(BeNil())
		Expect(cfg.Interfaces[0].Outbound.Allow).To(BeTrue())
		Expect(cfg.Interfaces[0].Outbound.Names).To(Equal([]string{"_http._tcp.local.", "_ipp._tcp.local."}))

		Expect(cfg.Interfaces[1].Inbound).NotTo(BeNil())
		Expect(cfg.Interfaces[1].Inbound.Allow).To(BeFalse())
	})

	It("rejects combining allow and deny for the same direction", func() {
		path := writeConfig(dir, `
[global]
interfaces = eth0, eth1

[eth0]
allow-inbound-filters = a.local.
deny-inbound-filters = b.local.
`)
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a filter key combined with disable-packet-filtering", func() {
		path := writeConfig(dir, `
[global]
interfaces = eth0, eth1
disable-packet-filtering = yes
allow-inbound-filters = a.local.
`)
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a section for an interface not listed in [global]", func() {
		path := writeConfig(dir, `
[global]
interfaces = eth0, eth1

[eth2]
disable-ipv6 = yes
`)
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a duplicate interface name", func() {
		path := writeConfig(dir, `
[global]
interfaces = eth0, eth0
`)
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})
})
