package wire

import (
	"encoding/binary"

	"github.com/mdns-bridge/bridge/internal/filter"
)

// Encode serializes the surviving queries and resource records held in s
// into out, applying outboundFilter (which may be nil) per spec.md section
// 4.7 and rebuilding name compression from scratch via s.Dict.
//
// It returns the extended buffer and true if anything was written, or false
// if every section encoded to zero entries (in which case the caller must
// not send a datagram, per spec.md's "If all counts are zero, report
// drop").
func (s *State) Encode(out []byte, outboundFilter *filter.List) ([]byte, bool) {
	s.Dict.Reset()

	headerPos := len(out)
	out = append(out, make([]byte, HeaderSize)...)

	queryCount := 0
	for i := 0; i < s.QueryCount; i++ {
		q := &s.Queries[i]

		if queryOutboundFiltered(q.Type) && !filter.AllowedOutbound(outboundFilter, &q.Owner) {
			continue
		}

		out = s.Dict.EncodeName(out, &q.Owner)
		out = append(out, byte(q.Type>>8), byte(q.Type))
		out = append(out, byte(q.Class>>8), byte(q.Class))
		queryCount++
	}

	var rrCounts [int(numSections)]int
	for _, sec := range [...]Section{Answer, Authority, Additional} {
		start := s.rrSectionAt[sec]
		count := s.RRCount[sec]
		kept := 0
		for i := start; i < start+count; i++ {
			rr := &s.Records[i]
			if !s.outboundAllowed(rr, outboundFilter) {
				continue
			}
			out = s.encodeRecord(out, rr)
			kept++
		}
		rrCounts[sec] = kept
	}

	binary.BigEndian.PutUint16(out[headerPos:], s.Header.TransactionID)
	binary.BigEndian.PutUint16(out[headerPos+2:], s.Header.Flags)
	binary.BigEndian.PutUint16(out[headerPos+4:], uint16(queryCount))
	binary.BigEndian.PutUint16(out[headerPos+6:], uint16(rrCounts[Answer]))
	binary.BigEndian.PutUint16(out[headerPos+8:], uint16(rrCounts[Authority]))
	binary.BigEndian.PutUint16(out[headerPos+10:], uint16(rrCounts[Additional]))

	if queryCount == 0 && rrCounts[Answer] == 0 && rrCounts[Authority] == 0 && rrCounts[Additional] == 0 {
		return out, false
	}
	return out, true
}

func (s *State) outboundAllowed(rr *Record, outboundFilter *filter.List) bool {
	switch rrOutboundKind(rr.Type) {
	case rrOutboundOwner:
		return filter.AllowedOutbound(outboundFilter, &rr.Owner)
	case rrOutboundRDataName:
		return filter.AllowedOutbound(outboundFilter, &rr.RDataName)
	default:
		return true
	}
}

// encodeRecord appends one resource record -- owner name, 10-byte header,
// and RDATA -- to out, patching the rdata length once the RDATA has been
// written.
func (s *State) encodeRecord(out []byte, rr *Record) []byte {
	out = s.Dict.EncodeName(out, &rr.Owner)

	rrHeaderPos := len(out)
	out = append(out, byte(rr.Type>>8), byte(rr.Type))
	out = append(out, byte(rr.Class>>8), byte(rr.Class))
	out = append(out,
		byte(rr.TTL>>24), byte(rr.TTL>>16), byte(rr.TTL>>8), byte(rr.TTL))
	out = append(out, 0, 0) // rdata length placeholder

	rdataPos := len(out)

	switch rr.Type {
	case TypePTR, TypeCNAME, TypeDNAME:
		out = s.Dict.EncodeName(out, &rr.RDataName)

	case TypeSRV:
		out = append(out, rr.RData[:6]...)
		out = s.Dict.EncodeName(out, &rr.RDataName)

	case TypeNSEC:
		out = s.Dict.EncodeName(out, &rr.RDataName)
		tail := rr.RData[len(rr.RData)-rr.SecondaryLen:]
		out = append(out, tail...)

	default:
		out = append(out, rr.RData...)
	}

	rdataLen := len(out) - rdataPos
	binary.BigEndian.PutUint16(out[rrHeaderPos+8:], uint16(rdataLen))

	return out
}
