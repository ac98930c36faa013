package merkle

import "github.com/MODULUSREBUS/libdata/hash"

// Stream incrementally builds a flat-tree Merkle structure from a sequence
// of leaf hashes, maintaining only the current roots -- the minimal set of
// nodes that together cover every leaf consumed so far.
type Stream struct {
	blocks uint64
	roots  []Node
}

// NewStream creates an empty stream, or one resumed from a previously
// persisted set of roots.
func NewStream(roots []Node) *Stream {
	s := &Stream{roots: append([]Node(nil), roots...)}
	if len(s.roots) > 0 {
		last := s.roots[len(s.roots)-1]
		s.blocks = BlocksForRoot(last.Index)
	}
	return s
}

// Clone returns an independent copy of s, used to speculatively apply a
// block before committing it.
func (s *Stream) Clone() *Stream {
	return &Stream{blocks: s.blocks, roots: append([]Node(nil), s.roots...)}
}

// Blocks returns the number of leaves consumed so far.
func (s *Stream) Blocks() uint64 { return s.blocks }

// Roots returns the current root set, left to right.
func (s *Stream) Roots() []Node { return append([]Node(nil), s.roots...) }

// Next appends one more leaf to the stream, merging roots that share a
// parent until no two adjacent roots do.
func (s *Stream) Next(leafHash hash.Hash, leafLength uint32) {
	node := Node{Index: 2 * s.blocks, Length: leafLength, Hash: leafHash}
	s.roots = append(s.roots, node)

	for len(s.roots) >= 2 {
		l := s.roots[len(s.roots)-2]
		r := s.roots[len(s.roots)-1]
		parentIdx, ok := SharedParent(l.Index, r.Index)
		if !ok {
			break
		}
		total := l.Length + r.Length
		merged := Node{
			Index:  parentIdx,
			Length: total,
			Hash:   hash.Parent(l.Hash, r.Hash, total),
		}
		s.roots = s.roots[:len(s.roots)-2]
		s.roots = append(s.roots, merged)
	}

	s.blocks++
}

// RootsHash computes the hash-of-roots digest for the current root set,
// used to produce and verify a block's tree signature.
func (s *Stream) RootsHash() hash.Hash {
	return RootsHashOf(s.roots)
}

// RootsHashOf computes the hash-of-roots digest for an arbitrary root set.
func RootsHashOf(roots []Node) hash.Hash {
	rl := make([]hash.RootLength, len(roots))
	for i, r := range roots {
		rl[i] = hash.RootLength{Hash: r.Hash, Length: r.Length}
	}
	return hash.Roots(rl)
}

// EncodeRoots serializes the root set for persistence at store slot 0.
func EncodeRoots(roots []Node) []byte {
	buf := make([]byte, 0, len(roots)*NodeSize)
	for _, r := range roots {
		buf = append(buf, r.Bytes()...)
	}
	return buf
}

// DecodeRoots parses a previously persisted root set.
func DecodeRoots(b []byte) ([]Node, error) {
	if len(b)%NodeSize != 0 {
		return nil, ErrShortInput
	}
	n := len(b) / NodeSize
	roots := make([]Node, n)
	for i := 0; i < n; i++ {
		node, err := NodeFromBytes(b[i*NodeSize : (i+1)*NodeSize])
		if err != nil {
			return nil, err
		}
		roots[i] = node
	}
	return roots, nil
}
