// Package memory implements store.IndexAccess backed by a process-local
// map, used by tests that need no persistence.
package memory

import (
	"context"
	"sync"

	"github.com/MODULUSREBUS/libdata/store"
)

// Store is an in-memory store.IndexAccess implementation. The zero value
// is ready to use.
type Store struct {
	mu   sync.RWMutex
	data map[uint32][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[uint32][]byte)}
}

// Read implements store.IndexAccess.
func (s *Store) Read(_ context.Context, index uint32) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[index]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Write implements store.IndexAccess.
func (s *Store) Write(_ context.Context, index uint32, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[uint32][]byte)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[index] = cp
	return nil
}
