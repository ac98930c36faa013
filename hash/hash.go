// Package hash implements the domain-separated BLAKE3 hashing used to build
// a Core's Merkle tree: distinct leading bytes keep a leaf hash, a parent
// hash, and a roots hash from ever colliding.
package hash

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// Size is the length in bytes of a Hash.
const Size = 32

// Hash is a 32-byte BLAKE3 digest.
type Hash [Size]byte

const (
	leafType   = 0x00
	parentType = 0x01
	rootsType  = 0x02
)

// Leaf hashes a single block's payload, committing to its byte length.
func Leaf(data []byte) Hash {
	h := blake3.New(Size, nil)
	h.Write([]byte{leafType})
	writeLen(h, uint32(len(data)))
	h.Write(data)
	return sum(h)
}

// Parent hashes two child hashes together, committing to the total byte
// length spanned by the subtree they form.
func Parent(left, right Hash, totalLength uint32) Hash {
	h := blake3.New(Size, nil)
	h.Write([]byte{parentType})
	writeLen(h, totalLength)
	h.Write(left[:])
	h.Write(right[:])
	return sum(h)
}

// RootLength pairs a root's hash with the byte length it covers, the input
// shape Roots expects.
type RootLength struct {
	Hash   Hash
	Length uint32
}

// Roots hashes the ordered set of current Merkle roots into a single
// digest, used to produce and verify a block's tree signature.
func Roots(roots []RootLength) Hash {
	h := blake3.New(Size, nil)
	h.Write([]byte{rootsType})
	for _, r := range roots {
		writeLen(h, r.Length)
		h.Write(r.Hash[:])
	}
	return sum(h)
}

func writeLen(h *blake3.Hasher, n uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], n)
	h.Write(buf[:])
}

func sum(h *blake3.Hasher) Hash {
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// FromBytes copies b into a Hash. b must be exactly Size bytes.
func FromBytes(b []byte) (Hash, bool) {
	var h Hash
	if len(b) != Size {
		return h, false
	}
	copy(h[:], b)
	return h, true
}
