// Package dnsname holds the shared label-sequence representation used by
// both the wire codec (internal/wire) and the configured-name matcher
// (internal/matcher). A Name is always in on-wire form: length-prefixed
// labels terminated by a zero byte, with no compression pointers -- either
// because it has already been decompressed (a decoded name) or because it
// was built directly from a dotted string and never contained any (a match
// name).
package dnsname

const (
	// MaxLength is the largest number of bytes a decoded name may occupy,
	// including its terminating zero byte.
	MaxLength = 255

	// MaxLabels is the largest number of labels a name may contain.
	MaxLabels = 127

	// MaxLabelLength is the largest number of bytes a single label may
	// contain, not including its length byte.
	MaxLabelLength = 63
)

// Name is a decompressed DNS name in on-wire form.
type Name struct {
	// Raw holds the label sequence, including the terminating zero byte.
	// Only Raw[:Length] is valid; the backing array may be larger so that
	// Name values can live inline in a reusable slice without allocation.
	Raw [MaxLength]byte

	// Length is the number of valid bytes in Raw.
	Length int

	// LabelOffset holds, for each label, its byte offset within Raw. Only
	// LabelOffset[:LabelCount] is valid.
	LabelOffset [MaxLabels]int

	// LabelCount is the number of labels in the name (not counting the
	// root/terminator).
	LabelCount int
}

// Bytes returns the valid label-sequence bytes of the name.
func (n *Name) Bytes() []byte {
	return n.Raw[:n.Length]
}

// Reset clears the name so it can be reused for the next decode.
func (n *Name) Reset() {
	n.Length = 0
	n.LabelCount = 0
}

// Equal reports whether two names have byte-identical wire forms.
func Equal(a, b *Name) bool {
	if a.Length != b.Length {
		return false
	}
	for i := 0; i < a.Length; i++ {
		if a.Raw[i] != b.Raw[i] {
			return false
		}
	}
	return true
}
