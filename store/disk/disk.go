// Package disk implements store.IndexAccess backed by one file per slot
// in a directory, the filesystem backend the demo CLI and the
// reopen/persistence tests run against.
package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/MODULUSREBUS/libdata/store"
)

// Store is a directory-backed store.IndexAccess implementation. Each slot
// is one file named by its decimal index.
type Store struct {
	mu  sync.Mutex
	dir string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(index uint32) string {
	return filepath.Join(s.dir, strconv.FormatUint(uint64(index), 10))
}

// Read implements store.IndexAccess.
func (s *Store) Read(_ context.Context, index uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path(index))
	if os.IsNotExist(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("disk: read slot %d: %w", index, err)
	}
	return b, nil
}

// Write implements store.IndexAccess. The write is staged to a temp file
// and renamed into place so a crash mid-write never leaves a torn slot
// file behind.
func (s *Store) Write(_ context.Context, index uint32, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	final := s.path(index)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("disk: write slot %d: %w", index, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("disk: write slot %d: %w", index, err)
	}
	return nil
}
