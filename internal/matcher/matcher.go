// Package matcher builds and evaluates DNS name-suffix matchers.
//
// A matcher stores a configured DNS name in the same length-prefixed,
// on-wire label form used by decoded packet names, and tests whether that
// form appears as a substring of a decoded name. Because every label in
// the on-wire form carries its own length byte, a substring match can only
// begin and end at label boundaries, which is exactly the suffix semantics
// the filter lists in internal/filter rely on (see spec.md section 4.1).
package matcher

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mdns-bridge/bridge/internal/dnsname"
)

// Name is a configured match name: a dotted DNS name suffix stored in its
// on-wire label form.
type Name struct {
	wire dnsname.Name
}

// Build parses a dotted DNS name (e.g. "_http._tcp.local.") into its
// on-wire label form. The trailing dot is optional.
//
// Build fails if the encoded name would be 256 bytes or more, if any label
// is empty or longer than 63 bytes, or if the name has more than 127
// labels.
func Build(dotted string) (*Name, error) {
	dotted = strings.TrimSuffix(dotted, ".")

	var n dnsname.Name
	if dotted != "" {
		for _, label := range strings.Split(dotted, ".") {
			if len(label) == 0 {
				return nil, fmt.Errorf("matcher: name %q contains an empty label", dotted)
			}
			if len(label) > dnsname.MaxLabelLength {
				return nil, fmt.Errorf("matcher: label %q in name %q is longer than %d bytes", label, dotted, dnsname.MaxLabelLength)
			}
			if n.LabelCount >= dnsname.MaxLabels {
				return nil, fmt.Errorf("matcher: name %q has more than %d labels", dotted, dnsname.MaxLabels)
			}
			if n.Length+1+len(label) >= dnsname.MaxLength {
				return nil, fmt.Errorf("matcher: name %q is longer than %d bytes", dotted, dnsname.MaxLength)
			}

			n.LabelOffset[n.LabelCount] = n.Length
			n.LabelCount++

			n.Raw[n.Length] = byte(len(label))
			n.Length++
			copy(n.Raw[n.Length:], label)
			n.Length += len(label)
		}
	}

	if n.Length >= dnsname.MaxLength {
		return nil, fmt.Errorf("matcher: name %q is longer than %d bytes", dotted, dnsname.MaxLength)
	}
	n.Raw[n.Length] = 0
	n.Length++

	return &Name{wire: n}, nil
}

// Bytes returns the on-wire label sequence of the match name, including its
// terminating zero byte.
func (m *Name) Bytes() []byte {
	return m.wire.Bytes()
}

// Contains reports whether m appears as a contiguous, label-aligned
// substring of decoded.
func Contains(decoded *dnsname.Name, m *Name) bool {
	return bytes.Contains(decoded.Bytes(), m.Bytes())
}

// Compare orders two match names by their wire bytes. It is used to sort
// and deduplicate the names configured for a filter list so that two
// filters naming the same set of suffixes in different orders compare
// equal.
func Compare(a, b *Name) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}
