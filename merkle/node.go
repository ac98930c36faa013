package merkle

import (
	"encoding/binary"
	"fmt"

	"github.com/MODULUSREBUS/libdata/hash"
)

// NodeSize is the serialized byte length of a Node: 8 (index) + 4 (length)
// + 32 (hash).
const NodeSize = 8 + 4 + hash.Size

// Node is one vertex of the flat tree: a leaf (even Index) or an internal
// node (odd Index), carrying the byte length and hash of the subtree it
// covers.
type Node struct {
	Index  uint64
	Length uint32
	Hash   hash.Hash
}

// Bytes serializes n to its fixed little-endian wire form.
func (n Node) Bytes() []byte {
	buf := make([]byte, NodeSize)
	binary.LittleEndian.PutUint64(buf[0:8], n.Index)
	binary.LittleEndian.PutUint32(buf[8:12], n.Length)
	copy(buf[12:12+hash.Size], n.Hash[:])
	return buf
}

// NodeFromBytes decodes a Node from its fixed little-endian wire form.
func NodeFromBytes(b []byte) (Node, error) {
	if len(b) != NodeSize {
		return Node{}, fmt.Errorf("merkle: node: %w: need %d bytes, got %d", ErrShortInput, NodeSize, len(b))
	}
	var n Node
	n.Index = binary.LittleEndian.Uint64(b[0:8])
	n.Length = binary.LittleEndian.Uint32(b[8:12])
	h, _ := hash.FromBytes(b[12 : 12+hash.Size])
	n.Hash = h
	return n, nil
}

// ErrShortInput is returned when decoding a fixed-size structure from a
// byte slice that is too short.
var ErrShortInput = fmt.Errorf("input too short")
