package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/mdns-bridge/bridge/internal/dnsname"
	"github.com/mdns-bridge/bridge/internal/filter"
)

// Header is the 12-byte fixed header of a DNS message.
type Header struct {
	TransactionID uint16
	Flags         uint16

	// Counts as received on the wire, kept for validation and logging;
	// the surviving counts used for encoding live on State.
	QueryCount      uint16
	AnswerCount     uint16
	AuthorityCount  uint16
	AdditionalCount uint16
}

// Query is a decoded query-section entry that survived inbound filtering.
type Query struct {
	Owner dnsname.Name
	Type  uint16
	Class uint16
}

// Record is a decoded resource-record that survived inbound filtering.
type Record struct {
	Owner dnsname.Name
	Type  uint16
	Class uint16
	TTL   uint32

	// RData is the original, undecoded RDATA bytes, a sub-slice of the
	// receive buffer this record was decoded from.
	RData []byte

	// HasRDataName is true when RDataName was parsed out of RData (PTR,
	// CNAME, DNAME, SRV, NSEC).
	HasRDataName bool
	RDataName    dnsname.Name

	// SecondaryLen is the number of non-name RDATA bytes for mixed
	// layout types: 6 for SRV (the priority/weight/port block), or the
	// opaque tail length for NSEC. It is unused otherwise.
	SecondaryLen int
}

// UnknownCallback, when non-nil, is invoked once for each query or record
// dropped because its type is unknown (spec.md section 7: "log when -w is
// set").
type UnknownCallback func(section string, recordType uint16)

// Warner is the type of State.Warn. Decode and Encode never call it; the
// only decode-time hook the "-w" flag drives is OnUnknown.
type Warner func(format string, args ...interface{})

// State is the reusable per-worker decoder/encoder state described in
// spec.md section 3. Its query and record lists and its compression
// dictionary are grown geometrically and never shrunk, so a fully warmed
// worker performs no further allocation on its hot path.
type State struct {
	Header Header

	Queries     []Query
	QueryCount  int
	Records     []Record
	RRCount     [int(numSections)]int
	rrSectionAt [int(numSections)]int

	Dict *CompressionDict

	OnUnknown UnknownCallback
	Warn      Warner
}

// NewState creates a new decoder/encoder state with its lists preallocated
// to the sizes the original mDNS bridge uses (spec.md section 4.6).
func NewState() *State {
	return &State{
		Queries: make([]Query, initialQueryCount),
		Records: make([]Record, initialRRCount),
		Dict:    NewCompressionDict(),
	}
}

func (s *State) ensureQueryCap(n int) {
	if cap(s.Queries) < n {
		newCap := cap(s.Queries) * 2
		if newCap < n {
			newCap = n
		}
		grown := make([]Query, n, newCap)
		copy(grown, s.Queries)
		s.Queries = grown
	}
	s.Queries = s.Queries[:n]
}

func (s *State) ensureRRCap(n int) {
	if cap(s.Records) < n {
		newCap := cap(s.Records) * 2
		if newCap < n {
			newCap = n
		}
		grown := make([]Record, n, newCap)
		copy(grown, s.Records)
		s.Records = grown
	}
	s.Records = s.Records[:n]
}

func sectionName(sec Section) string {
	switch sec {
	case Answer:
		return "answer"
	case Authority:
		return "authority"
	default:
		return "additional"
	}
}

// Decode parses a received mDNS/DNS datagram, keeping only the queries and
// resource records allowed by policy and ifaceFilter (spec.md section
// 4.6). It returns (true, nil) if at least one entry survived, (false,
// nil) if the packet decoded cleanly but nothing survived (the caller
// should not send a response), and a non-nil error for a malformed packet
// (the caller should drop the datagram and continue).
func (s *State) Decode(buf []byte, policy *filter.Policy, ifaceFilter *filter.List) (bool, error) {
	if len(buf) < HeaderSize {
		return false, fmt.Errorf("%w: packet shorter than the 12-byte header", ErrTruncated)
	}

	h := Header{
		TransactionID:   binary.BigEndian.Uint16(buf[0:2]),
		Flags:           binary.BigEndian.Uint16(buf[2:4]),
		QueryCount:      binary.BigEndian.Uint16(buf[4:6]),
		AnswerCount:     binary.BigEndian.Uint16(buf[6:8]),
		AuthorityCount:  binary.BigEndian.Uint16(buf[8:10]),
		AdditionalCount: binary.BigEndian.Uint16(buf[10:12]),
	}
	s.Header = h

	totalRR := int(h.AnswerCount) + int(h.AuthorityCount) + int(h.AdditionalCount)
	if totalRR > MaxRRCount {
		return false, fmt.Errorf("%w: %d resource records exceeds the %d limit", ErrMalformed, totalRR, MaxRRCount)
	}
	if int(h.QueryCount) > MaxQueryCount {
		return false, fmt.Errorf("%w: %d queries exceeds the %d limit", ErrMalformed, h.QueryCount, MaxQueryCount)
	}

	s.ensureQueryCap(int(h.QueryCount))
	s.ensureRRCap(totalRR)
	s.QueryCount = 0

	cur := HeaderSize

	for i := 0; i < int(h.QueryCount); i++ {
		q := &s.Queries[s.QueryCount]
		next, err := DecodeName(buf, cur, &q.Owner)
		if err != nil {
			return false, err
		}
		cur = next

		if cur+4 > len(buf) {
			return false, fmt.Errorf("%w: truncated query type/class", ErrTruncated)
		}
		q.Type = binary.BigEndian.Uint16(buf[cur : cur+2])
		q.Class = binary.BigEndian.Uint16(buf[cur+2 : cur+4])
		cur += 4

		filtered, known := queryInboundFiltered(q.Type)
		if !known {
			if s.OnUnknown != nil {
				s.OnUnknown("query", q.Type)
			}
			continue
		}
		if filtered && !policy.AllowedInbound(ifaceFilter, &q.Owner) {
			continue
		}

		s.QueryCount++
	}

	writeIdx := 0
	sections := [int(numSections)]struct {
		sec   Section
		count uint16
	}{
		{Answer, h.AnswerCount},
		{Authority, h.AuthorityCount},
		{Additional, h.AdditionalCount},
	}

	for _, sd := range sections {
		sectionStart := writeIdx
		s.rrSectionAt[sd.sec] = sectionStart

		for i := 0; i < int(sd.count); i++ {
			rr := &s.Records[writeIdx]
			next, err := DecodeName(buf, cur, &rr.Owner)
			if err != nil {
				return false, err
			}
			cur = next

			if cur+10 > len(buf) {
				return false, fmt.Errorf("%w: truncated resource record header", ErrTruncated)
			}
			rr.Type = binary.BigEndian.Uint16(buf[cur : cur+2])
			rr.Class = binary.BigEndian.Uint16(buf[cur+2 : cur+4])
			rr.TTL = binary.BigEndian.Uint32(buf[cur+4 : cur+8])
			rdataLen := int(binary.BigEndian.Uint16(buf[cur+8 : cur+10]))
			cur += 10

			if rdataLen < 1 {
				return false, fmt.Errorf("%w: zero-length rdata", ErrMalformed)
			}
			if cur+rdataLen > len(buf) {
				return false, fmt.Errorf("%w: rdata runs past end of packet", ErrMalformed)
			}
			rr.RData = buf[cur : cur+rdataLen]

			kind := rrInboundKind(rr.Type)
			if kind == rrUnknown {
				if s.OnUnknown != nil {
					s.OnUnknown(sectionName(sd.sec), rr.Type)
				}
				cur += rdataLen
				continue
			}

			rr.HasRDataName = false
			rr.SecondaryLen = 0

			// Names embedded in RDATA may themselves use compression
			// pointers back into earlier parts of the packet, so they
			// must be decoded against the full buffer at their absolute
			// offset, not against the rdata sub-slice alone.
			rdataStart := cur

			switch kind {
			case rrRDataName:
				nameEnd, err := DecodeName(buf, rdataStart, &rr.RDataName)
				if err != nil {
					return false, err
				}
				if nameEnd != rdataStart+rdataLen {
					return false, fmt.Errorf("%w: rdata name did not consume exactly %d bytes", ErrMalformed, rdataLen)
				}
				rr.HasRDataName = true
			}

			if rr.Type == TypeNSEC {
				nameEnd, err := DecodeName(buf, rdataStart, &rr.RDataName)
				if err != nil {
					return false, err
				}
				rr.HasRDataName = true
				rr.SecondaryLen = rdataLen - (nameEnd - rdataStart)
			}

			cur += rdataLen

			allowed := true
			switch kind {
			case rrOwnerFiltered:
				allowed = policy.AllowedInbound(ifaceFilter, &rr.Owner)

				// The SRV target name is parsed only once the owner has
				// already passed the filter (dns_decode.c gates this
				// identically on `allowed`), so a malformed or too-short
				// SRV target on a record the filter would drop anyway
				// doesn't fail the whole packet.
				if allowed && rr.Type == TypeSRV {
					if rdataLen < 7 {
						return false, fmt.Errorf("%w: srv rdata shorter than 7 bytes", ErrMalformed)
					}
					nameEnd, err := DecodeName(buf, rdataStart+6, &rr.RDataName)
					if err != nil {
						return false, err
					}
					if nameEnd != rdataStart+rdataLen {
						return false, fmt.Errorf("%w: srv target name did not consume the remainder of rdata", ErrMalformed)
					}
					rr.HasRDataName = true
					rr.SecondaryLen = 6
				}
			case rrRDataName:
				allowed = policy.AllowedInbound(ifaceFilter, &rr.RDataName)
			case rrPassThrough:
				allowed = true
			}

			if !allowed {
				continue
			}

			writeIdx++
		}

		s.RRCount[sd.sec] = writeIdx - sectionStart
	}

	if cur != len(buf) {
		return false, fmt.Errorf("%w: %d trailing bytes after the declared sections", ErrMalformed, len(buf)-cur)
	}

	if s.QueryCount == 0 && writeIdx == 0 {
		return false, nil
	}
	return true, nil
}

// RecordsIn returns the surviving records of the given section, in
// decode order.
func (s *State) RecordsIn(sec Section) []Record {
	start := s.rrSectionAt[sec]
	return s.Records[start : start+s.RRCount[sec]]
}
