// Package iterator produces a Core's blocks as an ordered sequence, with
// both a pull-based Next and a range-over-func view.
package iterator

import (
	"context"
	"errors"
	"iter"

	"github.com/MODULUSREBUS/libdata/core"
)

// Iterator reads sequential blocks from a Core starting at a given index.
type Iterator struct {
	c    *core.Core
	next uint32
	ctx  context.Context
}

// New creates an Iterator over c starting at index 0.
func New(ctx context.Context, c *core.Core) *Iterator {
	return &Iterator{c: c, ctx: ctx}
}

// NewFrom creates an Iterator over c starting at the given index.
func NewFrom(ctx context.Context, c *core.Core, from uint32) *Iterator {
	return &Iterator{c: c, ctx: ctx, next: from}
}

// Next returns the next (index, data) pair, or ok=false once the Core's
// current length is exhausted. It re-issues a fresh read against the Core
// on every call, so blocks appended after iteration began are visible.
func (it *Iterator) Next() (index uint32, data []byte, ok bool, err error) {
	idx := it.next
	data, _, err = it.c.Get(it.ctx, idx)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	it.next++
	return idx, data, true, nil
}

// Seq returns a range-over-func sequence over the Core's blocks, starting
// at the Iterator's current position. Iteration stops at the first error
// or at the end of the currently appended blocks.
func (it *Iterator) Seq() iter.Seq2[uint32, []byte] {
	return func(yield func(uint32, []byte) bool) {
		for {
			idx, data, ok, err := it.Next()
			if err != nil || !ok {
				return
			}
			if !yield(idx, data) {
				return
			}
		}
	}
}
