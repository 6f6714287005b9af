package wire

// DNS/mDNS record types relevant to the bridge's filtering and RDATA
// parsing rules (spec.md sections 4.6-4.7).
const (
	TypeA     uint16 = 1
	TypeCNAME uint16 = 5
	TypePTR   uint16 = 12
	TypeHINFO uint16 = 13
	TypeTXT   uint16 = 16
	TypeAAAA  uint16 = 28
	TypeSRV   uint16 = 33
	TypeDNAME uint16 = 39
	TypeOPT   uint16 = 41
	TypeNSEC  uint16 = 47
	TypeSVCB  uint16 = 64
	TypeHTTPS uint16 = 65
	TypeANY   uint16 = 255
)

// Section identifies one of the three resource-record sections of a DNS
// message.
type Section int

const (
	Answer Section = iota
	Authority
	Additional
	numSections
)

// Wire-format and implementation limits (spec.md sections 3, 4.6).
const (
	HeaderSize = 12

	MaxQueryCount = 1498
	MaxRRCount    = 749

	initialQueryCount = 25
	initialRRCount    = 50

	// MaxDatagramSize is the largest mDNS datagram the bridge will
	// receive or send (RFC 6762 section 18).
	MaxDatagramSize = 9000
)

// queryInboundFiltered reports whether a query of the given type is
// subject to inbound owner-name filtering. Unfiltered-but-known types pass
// through unconditionally; any other type is unknown and the query is
// dropped.
func queryInboundFiltered(t uint16) (filtered, known bool) {
	switch t {
	case TypeSRV, TypeTXT, TypeSVCB, TypeHTTPS, TypeANY:
		return true, true
	case TypeA, TypeAAAA, TypePTR, TypeOPT:
		return false, true
	default:
		return false, false
	}
}

// queryOutboundFiltered reports whether a surviving query of the given
// type is subject to outbound owner-name filtering when encoding.
func queryOutboundFiltered(t uint16) bool {
	switch t {
	case TypeSRV, TypeTXT, TypeANY:
		return true
	default:
		return false
	}
}

// rrKind classifies how a resource record's name-based filtering and RDATA
// parsing is performed on decode.
type rrKind int

const (
	rrUnknown rrKind = iota
	// rrOwnerFiltered records are filtered by their owner name. Of these,
	// only SRV carries a name inside RDATA (its target), which is parsed
	// but not used for inbound filtering.
	rrOwnerFiltered
	// rrRDataName records carry a single DNS name as their entire RDATA
	// and are filtered by that name, not by the owner.
	rrRDataName
	// rrPassThrough records are never filtered on decode.
	rrPassThrough
)

func rrInboundKind(t uint16) rrKind {
	switch t {
	case TypeSRV, TypeTXT, TypeHINFO, TypeSVCB, TypeHTTPS:
		return rrOwnerFiltered
	case TypePTR, TypeCNAME, TypeDNAME:
		return rrRDataName
	case TypeA, TypeAAAA, TypeOPT, TypeNSEC:
		return rrPassThrough
	default:
		return rrUnknown
	}
}

// rrOutboundFilterKind classifies how a surviving resource record is
// filtered when encoding for a peer with an outbound filter. Types not
// named here pass through unfiltered (including SVCB/HTTPS, which are only
// ever owner-filtered on the inbound side -- spec.md's open question on
// HINFO/SVCB/HTTPS asymmetry).
type rrOutboundFilterKind int

const (
	rrOutboundNone rrOutboundFilterKind = iota
	rrOutboundOwner
	rrOutboundRDataName
)

func rrOutboundKind(t uint16) rrOutboundFilterKind {
	switch t {
	case TypeSRV, TypeTXT, TypeHINFO:
		return rrOutboundOwner
	case TypePTR, TypeCNAME, TypeDNAME:
		return rrOutboundRDataName
	default:
		return rrOutboundNone
	}
}
