// Package iface holds the Interface record described in spec.md section 3:
// a configured network interface together with its resolved address, its
// inbound/outbound filters, and the peer lists the bridge worker fans
// packets out to. Interface records are built once at startup from
// configuration and are never mutated afterwards; workers only ever read
// them and the socket descriptors they carry.
package iface

import (
	"net"

	"github.com/mdns-bridge/bridge/internal/filter"
)

// Family distinguishes the IPv4 and IPv6 bridging pipelines, which run as
// independent workers (spec.md section 4.8).
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Peer is another interface's per-family endpoint that a received packet on
// this interface should be forwarded to, along with the outbound filter (if
// any) that applies to sends in that direction.
type Peer struct {
	Interface *Interface
	Filter    *filter.List
}

// PerFamily holds the state of one address family (IPv4 or IPv6) for a
// single configured interface.
type PerFamily struct {
	Enabled bool

	// Address is the interface's own address in this family. Socket setup
	// does not fill it in, and neither the worker nor the fan-out reads it.
	Address net.IP

	// Conn is the per-interface OS socket, installed by internal/socket.
	// It is nil until socket setup completes.
	Conn PacketConn

	// Peers lists every other enabled interface this family forwards
	// received packets to, in configuration order (spec.md section 5:
	// "sends to peers happen in peer-list order").
	Peers []Peer

	// PeerFilters holds the distinct, structurally-deduplicated outbound
	// filters among Peers (spec.md section 3 and S6): the bridge worker
	// runs the encoder once per entry here rather than once per peer.
	PeerFilters []*filter.List

	// PeerNoFilterCount is the number of peers in Peers with no outbound
	// filter; when non-zero the worker must additionally run (or forward
	// verbatim for) the filter-less encoding.
	PeerNoFilterCount int
}

// PacketConn is the subset of a per-interface multicast socket the bridge
// worker and fan-out logic need. internal/socket provides the concrete
// implementation; tests can substitute a fake.
type PacketConn interface {
	// ReadFrom reads one datagram into buf, non-blocking: callers only
	// invoke it after the readiness notifier reports the fd is readable.
	ReadFrom(buf []byte) (n int, err error)

	// WriteTo sends buf to the family's mDNS multicast group via the
	// egress interface identified by ifIndex (used to set the IPv6 scope
	// id; ignored for IPv4).
	WriteTo(buf []byte, ifIndex int) error

	// Close releases the underlying file descriptor.
	Close() error

	// Fd returns the raw file descriptor, for registration with the
	// readiness notifier.
	Fd() int
}

// Interface is a single configured network interface, named in the
// configuration file's `interfaces` list (spec.md section 6).
type Interface struct {
	Name    string
	IfIndex int

	InboundFilter  *filter.List
	OutboundFilter *filter.List

	V4 PerFamily
	V6 PerFamily
}

// PerFamily returns the interface's state for the given family.
func (i *Interface) PerFamily(f Family) *PerFamily {
	if f == IPv6 {
		return &i.V6
	}
	return &i.V4
}

// BuildPeers computes, for every interface's enabled family, the peer list
// (every other enabled interface of the same family) and the deduplicated
// set of distinct outbound filters among those peers (spec.md section 3:
// "deduplicated by structural equality across interfaces").
//
// It must be called once, after every Interface's OutboundFilter is set and
// before any bridge worker starts; the result is immutable thereafter.
func BuildPeers(ifaces []*Interface, f Family) {
	for _, self := range ifaces {
		pf := self.PerFamily(f)
		if !pf.Enabled {
			continue
		}

		pf.Peers = pf.Peers[:0]
		pf.PeerFilters = pf.PeerFilters[:0]
		pf.PeerNoFilterCount = 0

		for _, other := range ifaces {
			if other == self {
				continue
			}
			otherPF := other.PerFamily(f)
			if !otherPF.Enabled {
				continue
			}

			pf.Peers = append(pf.Peers, Peer{Interface: other, Filter: other.OutboundFilter})

			if other.OutboundFilter == nil {
				pf.PeerNoFilterCount++
				continue
			}

			dup := false
			for _, existing := range pf.PeerFilters {
				if filter.Equal(existing, other.OutboundFilter) {
					dup = true
					break
				}
			}
			if !dup {
				pf.PeerFilters = append(pf.PeerFilters, other.OutboundFilter)
			}
		}
	}
}
