// Package config loads and validates the bridge's INI-like configuration
// file (spec.md section 6): a mandatory [global] section naming at least
// two interfaces, optional global inbound filters, and a per-interface
// section for each named interface carrying its own filters.
package config

import (
	"fmt"
	"strings"

	"github.com/go-ini/ini"
)

// FilterSpec is one configured allow or deny list, still in dotted-name
// form; internal/filter.New turns it into a usable List.
type FilterSpec struct {
	Allow bool // true for an allow-*-filters key, false for deny-*-filters
	Names []string
}

// InterfaceConfig is one interface's configuration: its own enable flags
// and its inbound/outbound filters.
type InterfaceConfig struct {
	Name string

	DisableIPv4 bool
	DisableIPv6 bool

	Inbound  *FilterSpec
	Outbound *FilterSpec
}

// Config is the fully parsed and validated configuration file.
type Config struct {
	Interfaces []InterfaceConfig

	DisableIPv4            bool
	DisableIPv6            bool
	DisablePacketFiltering bool

	GlobalInbound *FilterSpec
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}

	if !f.HasSection("global") {
		return nil, fmt.Errorf("config: %s: missing mandatory [global] section", path)
	}
	global := f.Section("global")

	names := splitList(global.Key("interfaces").String())
	if len(names) < 2 {
		return nil, fmt.Errorf("config: %s: [global] interfaces requires at least 2 names, got %d", path, len(names))
	}

	cfg := &Config{
		DisableIPv4:            boolKey(global, "disable-ipv4"),
		DisableIPv6:            boolKey(global, "disable-ipv6"),
		DisablePacketFiltering: boolKey(global, "disable-packet-filtering"),
	}

	globalInbound, err := filterPair(global, "allow-inbound-filters", "deny-inbound-filters")
	if err != nil {
		return nil, fmt.Errorf("config: %s: [global]: %w", path, err)
	}
	cfg.GlobalInbound = globalInbound

	if cfg.DisablePacketFiltering && globalInbound != nil {
		return nil, fmt.Errorf("config: %s: [global]: disable-packet-filtering cannot be combined with an inbound filter", path)
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("config: %s: interface %q listed more than once", path, name)
		}
		seen[name] = true

		ic := InterfaceConfig{Name: name}

		if f.HasSection(name) {
			sec := f.Section(name)
			ic.DisableIPv4 = boolKey(sec, "disable-ipv4")
			ic.DisableIPv6 = boolKey(sec, "disable-ipv6")

			in, err := filterPair(sec, "allow-inbound-filters", "deny-inbound-filters")
			if err != nil {
				return nil, fmt.Errorf("config: %s: [%s]: %w", path, name, err)
			}
			out, err := filterPair(sec, "allow-outbound-filters", "deny-outbound-filters")
			if err != nil {
				return nil, fmt.Errorf("config: %s: [%s]: %w", path, name, err)
			}

			if cfg.DisablePacketFiltering && (in != nil || out != nil) {
				return nil, fmt.Errorf("config: %s: [%s]: disable-packet-filtering cannot be combined with a filter", path, name)
			}

			ic.Inbound = in
			ic.Outbound = out
		}

		cfg.Interfaces = append(cfg.Interfaces, ic)
	}

	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection || sec.Name() == "global" {
			continue
		}
		if !seen[sec.Name()] {
			return nil, fmt.Errorf("config: %s: section [%s] does not name an interface listed in [global] interfaces", path, sec.Name())
		}
	}

	return cfg, nil
}

// filterPair reads a single allow-or-deny filter key pair and enforces
// "at most one allow-or-deny per direction per scope".
func filterPair(sec *ini.Section, allowKey, denyKey string) (*FilterSpec, error) {
	allow := sec.HasKey(allowKey)
	deny := sec.HasKey(denyKey)

	if allow && deny {
		return nil, fmt.Errorf("%s and %s are mutually exclusive", allowKey, denyKey)
	}
	if allow {
		return &FilterSpec{Allow: true, Names: splitList(sec.Key(allowKey).String())}, nil
	}
	if deny {
		return &FilterSpec{Allow: false, Names: splitList(sec.Key(denyKey).String())}, nil
	}
	return nil, nil
}

func boolKey(sec *ini.Section, key string) bool {
	v := strings.ToLower(strings.TrimSpace(sec.Key(key).String()))
	return v == "yes" || v == "true" || v == "1"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
