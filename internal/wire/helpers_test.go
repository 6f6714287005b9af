package wire_test

import (
	"encoding/binary"
	"strings"

	"github.com/mdns-bridge/bridge/internal/dnsname"
)

// rawName builds an uncompressed on-wire label sequence from a dotted
// string, independent of the package under test's own encoder, so decode
// tests do not depend on encode behaving correctly.
func rawName(dotted string) []byte {
	dotted = strings.TrimSuffix(dotted, ".")
	var out []byte
	if dotted != "" {
		for _, label := range strings.Split(dotted, ".") {
			out = append(out, byte(len(label)))
			out = append(out, label...)
		}
	}
	return append(out, 0)
}

// pointerTo returns the two-byte compression pointer form for offset p.
func pointerTo(p int) []byte {
	return []byte{0xC0 | byte(p>>8&0x3F), byte(p)}
}

func header(queryCount, answerCount, authorityCount, additionalCount int) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint16(b[0:2], 0x1234)
	binary.BigEndian.PutUint16(b[2:4], 0)
	binary.BigEndian.PutUint16(b[4:6], uint16(queryCount))
	binary.BigEndian.PutUint16(b[6:8], uint16(answerCount))
	binary.BigEndian.PutUint16(b[8:10], uint16(authorityCount))
	binary.BigEndian.PutUint16(b[10:12], uint16(additionalCount))
	return b
}

func u16(v int) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

func u32(v int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

func dottedOf(n *dnsname.Name) string {
	var labels []string
	for i := 0; i < n.LabelCount; i++ {
		off := n.LabelOffset[i]
		l := int(n.Raw[off])
		labels = append(labels, string(n.Raw[off+1:off+1+l]))
	}
	return strings.Join(labels, ".")
}
