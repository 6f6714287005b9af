package wire

import (
	"bytes"

	"github.com/mdns-bridge/bridge/internal/dnsname"
)

// compressNode is one entry in the compression dictionary's flat arena. Its
// children occupy a contiguous range of the same arena, addressed by index
// rather than pointer so the range can be reallocated (grown) without
// invalidating any other node's reference to it -- see DESIGN.md and
// spec.md section 9 ("back-pointers in compression").
type compressNode struct {
	label    [dnsname.MaxLabelLength]byte
	labelLen byte

	childIndex int32
	childUsed  int32
	childAlloc int32

	// pointer is the write position of this suffix in the packet
	// currently being encoded, valid only when generation equals the
	// dictionary's current generation. -1 means "never written".
	pointer    int32
	generation uint32
}

// CompressionDict is the encoder's per-thread name compression dictionary,
// described in spec.md section 3. It is reset at the start of every
// outbound packet but its backing storage is reused across packets and
// across the lifetime of the owning worker.
type CompressionDict struct {
	nodes []compressNode

	rootChildIndex int32
	rootChildUsed  int32
	rootChildAlloc int32

	generation uint32
}

const initialCompressNodeCap = 64

// NewCompressionDict creates a compression dictionary seeded with the
// common mDNS suffixes "local." and "_tcp.local.", so that typical mDNS
// traffic never needs to grow the node arena.
func NewCompressionDict() *CompressionDict {
	d := &CompressionDict{
		nodes: make([]compressNode, 0, initialCompressNodeCap),
	}

	local := d.descend(-1, []byte("local"))
	d.descend(local, []byte("_tcp"))

	return d
}

// Reset prepares the dictionary for a new outbound packet. It is O(1): the
// tree of previously-seen label suffixes is kept, but every node's recorded
// write position is implicitly invalidated by advancing the generation
// counter, so stale positions are never mistaken for a match in the new
// packet.
func (d *CompressionDict) Reset() {
	d.generation++
}

// alloc grows the node arena by n entries and returns the index of the
// first new entry. It grows geometrically and never shrinks.
func (d *CompressionDict) alloc(n int32) int32 {
	start := int32(len(d.nodes))
	need := int(start) + int(n)

	if need > cap(d.nodes) {
		newCap := cap(d.nodes) * 2
		if newCap < need {
			newCap = need
		}
		grown := make([]compressNode, len(d.nodes), newCap)
		copy(grown, d.nodes)
		d.nodes = grown
	}

	d.nodes = d.nodes[:need]
	for i := start; i < int32(need); i++ {
		d.nodes[i].pointer = -1
		d.nodes[i].childIndex = -1
	}
	return start
}

// childRange returns the child index/used/allocated triple for parentIdx,
// where -1 denotes the implicit root.
func (d *CompressionDict) childRange(parentIdx int32) (index, used, alloc int32) {
	if parentIdx < 0 {
		return d.rootChildIndex, d.rootChildUsed, d.rootChildAlloc
	}
	n := &d.nodes[parentIdx]
	return n.childIndex, n.childUsed, n.childAlloc
}

func (d *CompressionDict) setChildRange(parentIdx, index, used, alloc int32) {
	if parentIdx < 0 {
		d.rootChildIndex, d.rootChildUsed, d.rootChildAlloc = index, used, alloc
		return
	}
	n := &d.nodes[parentIdx]
	n.childIndex, n.childUsed, n.childAlloc = index, used, alloc
}

// descend finds or creates the child of parentIdx keyed by label, growing
// the child range (by reallocating it elsewhere in the arena) if
// necessary.
func (d *CompressionDict) descend(parentIdx int32, label []byte) int32 {
	index, used, alloc := d.childRange(parentIdx)

	for i := int32(0); i < used; i++ {
		idx := index + i
		n := &d.nodes[idx]
		if int(n.labelLen) == len(label) && bytes.Equal(n.label[:n.labelLen], label) {
			return idx
		}
	}

	if used == alloc {
		newAlloc := alloc * 2
		if newAlloc < 4 {
			newAlloc = 4
		}
		newIndex := d.alloc(newAlloc)
		if used > 0 {
			copy(d.nodes[newIndex:newIndex+used], d.nodes[index:index+used])
		}
		index, alloc = newIndex, newAlloc
	}

	idx := index + used
	n := &d.nodes[idx]
	n.labelLen = byte(len(label))
	copy(n.label[:], label)
	n.pointer = -1
	n.generation = 0
	n.childIndex = -1
	n.childUsed = 0
	n.childAlloc = 0

	used++
	d.setChildRange(parentIdx, index, used, alloc)

	return idx
}

func (d *CompressionDict) matched(idx int32) bool {
	n := &d.nodes[idx]
	return n.generation == d.generation && n.pointer >= 0
}

func (d *CompressionDict) position(idx int32) int32 {
	return d.nodes[idx].pointer
}

func (d *CompressionDict) record(idx int32, pos int32) {
	n := &d.nodes[idx]
	n.pointer = pos
	n.generation = d.generation
}

// labelBytes returns the label at index i (0 = leftmost/most specific) of
// name as a byte slice, not including its length byte.
func labelBytes(name *dnsname.Name, i int) []byte {
	off := name.LabelOffset[i]
	l := int(name.Raw[off])
	return name.Raw[off+1 : off+1+l]
}

// EncodeName appends the compressed wire form of name to out and returns
// the extended slice. It never emits a pointer whose offset is greater
// than or equal to its own write position (testable property 4).
func (d *CompressionDict) EncodeName(out []byte, name *dnsname.Name) []byte {
	l := name.LabelCount
	if l == 0 {
		return append(out, 0)
	}

	// Walk from the root, descending by labels right-to-left (i.e. in
	// the order local., _tcp.local., _http._tcp.local., ...). path[i]
	// is the node for the suffix made of the last i+1 labels.
	path := make([]int32, l)
	node := int32(-1)
	matchedDepth := 0
	stillMatching := true

	for i := l - 1; i >= 0; i-- {
		node = d.descend(node, labelBytes(name, i))
		path[l-1-i] = node

		if stillMatching && d.matched(node) {
			matchedDepth++
		} else {
			stillMatching = false
		}
	}

	if matchedDepth == l {
		// The entire name is already present in the packet.
		return appendPointer(out, d.position(path[l-1]))
	}

	// Emit the labels that aren't yet part of the dictionary's matched
	// prefix, left to right, recording each one's write position.
	for idx := 0; idx < l-matchedDepth; idx++ {
		pos := int32(len(out))
		out = appendLabel(out, labelBytes(name, idx))
		d.record(path[l-1-idx], pos)
	}

	if matchedDepth > 0 {
		return appendPointer(out, d.position(path[matchedDepth-1]))
	}
	return append(out, 0)
}

func appendLabel(out []byte, label []byte) []byte {
	out = append(out, byte(len(label)))
	return append(out, label...)
}

func appendPointer(out []byte, pos int32) []byte {
	return append(out, byte(0xC0|(pos>>8)&0x3F), byte(pos&0xFF))
}
