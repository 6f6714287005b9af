package filter

import "github.com/mdns-bridge/bridge/internal/dnsname"

// Policy composes the global inbound filter with the per-interface inbound
// filter and per-peer outbound filters supplied at each call site, per
// spec.md section 4.3.
type Policy struct {
	// Global is the configured [global] inbound filter. It may be nil.
	Global *List
}

// AllowedInbound reports whether name, received on an interface whose own
// inbound filter is ifaceFilter (which may be nil), should be kept.
//
// It is true iff (no global filter, or the global filter allows the name)
// AND (no interface filter, or the interface filter allows the name).
func (p *Policy) AllowedInbound(ifaceFilter *List, name *dnsname.Name) bool {
	if p != nil && p.Global != nil && !p.Global.Evaluate(name) {
		return false
	}
	if ifaceFilter != nil && !ifaceFilter.Evaluate(name) {
		return false
	}
	return true
}

// AllowedOutbound reports whether name should be kept when encoding for a
// peer whose outbound filter is peerFilter. It is true iff the filter is
// absent or evaluates to allow.
func AllowedOutbound(peerFilter *List, name *dnsname.Name) bool {
	if peerFilter == nil {
		return true
	}
	return peerFilter.Evaluate(name)
}
