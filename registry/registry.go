// Package registry implements the Cores registry: a process-wide lookup
// of live Core handles, indexed by public key and by discovery key.
package registry

import (
	"encoding/hex"
	"iter"
	"sync"
	"weak"

	"github.com/MODULUSREBUS/libdata/core"
	"github.com/MODULUSREBUS/libdata/discovery"
)

// Registry holds shared-ownership Core handles behind two indices: a
// strong primary index by public key and a weak secondary index by
// discovery key, so dropping the primary entry releases the Core.
type Registry struct {
	mu          sync.RWMutex
	byPublic    map[string]*core.Core
	byDiscovery map[string]weak.Pointer[core.Core]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byPublic:    make(map[string]*core.Core),
		byDiscovery: make(map[string]weak.Pointer[core.Core]),
	}
}

// Insert adds c to the registry under its public key, and records a weak
// reference under its derived discovery key so the secondary index never
// keeps a Core alive on its own.
func (r *Registry) Insert(c *core.Core) error {
	pub := c.PublicKey()
	dk, err := discovery.Key(pub)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPublic[string(pub)] = c
	r.byDiscovery[string(dk[:])] = weak.Make(c)
	return nil
}

// Remove drops the Core registered under publicKey from the primary index.
// Its discovery-key entry is left in place and stops resolving once the
// Core is no longer referenced anywhere else.
func (r *Registry) Remove(publicKey []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPublic, string(publicKey))
}

// GetByPublicKey returns the Core registered under publicKey, if any.
func (r *Registry) GetByPublicKey(publicKey []byte) (*core.Core, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byPublic[string(publicKey)]
	return c, ok
}

// GetByDiscoveryKey returns the Core registered under discoveryKey, if that
// Core has not yet been garbage collected.
func (r *Registry) GetByDiscoveryKey(discoveryKey []byte) (*core.Core, bool) {
	r.mu.RLock()
	weakRef, ok := r.byDiscovery[string(discoveryKey)]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c := weakRef.Value()
	return c, c != nil
}

// Len returns the number of Cores currently registered by public key.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPublic)
}

// All returns an iterator over a stable snapshot of the registered
// (public key, handle) pairs, in unspecified order. Mutating the registry
// during iteration does not affect the snapshot.
func (r *Registry) All() iter.Seq2[[]byte, *core.Core] {
	r.mu.RLock()
	type entry struct {
		key  string
		core *core.Core
	}
	snapshot := make([]entry, 0, len(r.byPublic))
	for k, c := range r.byPublic {
		snapshot = append(snapshot, entry{key: k, core: c})
	}
	r.mu.RUnlock()

	return func(yield func([]byte, *core.Core) bool) {
		for _, e := range snapshot {
			if !yield([]byte(e.key), e.core) {
				return
			}
		}
	}
}

// PublicKeys returns a snapshot of all registered public keys, hex-encoded
// for readability in logs and CLI output.
func (r *Registry) PublicKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byPublic))
	for k := range r.byPublic {
		out = append(out, hex.EncodeToString([]byte(k)))
	}
	return out
}
