// Package wire implements the mDNS/DNS wire-format packet pipeline: a
// name-compression-aware decoder and encoder, and the packet decode/encode
// operations built on top of them (spec.md sections 4.4-4.7). This is the
// core of the bridge: decoding an inbound datagram into a filtered,
// in-memory representation and re-encoding the survivors into a fresh
// datagram with compression rebuilt from scratch.
package wire

import (
	"fmt"

	"github.com/mdns-bridge/bridge/internal/dnsname"
)

// DecodeName decodes a (possibly compressed) DNS name starting at offset
// within buf, writing the decompressed label sequence into name.
//
// It returns the offset of the first byte after the name as it appears on
// the wire: for a name with no pointer this is simply the byte following
// the terminating zero; for a name that used a compression pointer, it is
// the position two bytes past the first pointer encountered (subsequent
// pointer hops do not advance the caller's cursor, since they are already
// accounted for by the first one).
func DecodeName(buf []byte, offset int, name *dnsname.Name) (int, error) {
	name.Reset()

	cur := offset
	consumedTo := -1

	for {
		if cur >= len(buf) {
			return 0, fmt.Errorf("%w: name runs past end of packet", ErrTruncated)
		}

		l := buf[cur]

		switch {
		case l == 0:
			if name.Length >= dnsname.MaxLength {
				return 0, fmt.Errorf("%w: name exceeds %d bytes", ErrMalformed, dnsname.MaxLength)
			}
			name.Raw[name.Length] = 0
			name.Length++
			cur++
			if consumedTo == -1 {
				consumedTo = cur
			}
			return consumedTo, nil

		case l&0xC0 == 0xC0:
			// Compression pointer: top two bits set, low 14 bits (6 here
			// plus the next byte) are the offset of the real label
			// sequence elsewhere in the packet.
			if cur+1 >= len(buf) {
				return 0, fmt.Errorf("%w: truncated compression pointer", ErrTruncated)
			}
			p := (int(l&0x3F) << 8) | int(buf[cur+1])
			if p < 12 || p >= cur {
				return 0, fmt.Errorf("%w: compression pointer to offset %d is not strictly backwards", ErrMalformed, p)
			}
			if consumedTo == -1 {
				consumedTo = cur + 2
			}
			cur = p

		case l&0xC0 != 0:
			// 0b10xxxxxx or 0b01xxxxxx: not a valid label length or
			// pointer introducer.
			return 0, fmt.Errorf("%w: invalid label length byte 0x%02x", ErrMalformed, l)

		default:
			// Literal label, 1-63 bytes.
			labelLen := int(l)
			if cur+1+labelLen > len(buf) {
				return 0, fmt.Errorf("%w: label runs past end of packet", ErrTruncated)
			}
			if name.LabelCount >= dnsname.MaxLabels {
				return 0, fmt.Errorf("%w: name has more than %d labels", ErrMalformed, dnsname.MaxLabels)
			}
			if name.Length+1+labelLen >= dnsname.MaxLength {
				return 0, fmt.Errorf("%w: name exceeds %d bytes", ErrMalformed, dnsname.MaxLength)
			}

			name.LabelOffset[name.LabelCount] = name.Length
			name.LabelCount++

			name.Raw[name.Length] = l
			name.Length++
			copy(name.Raw[name.Length:], buf[cur+1:cur+1+labelLen])
			name.Length += labelLen

			cur += 1 + labelLen
		}
	}
}
