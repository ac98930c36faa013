package registry

import (
	"context"
	"runtime"
	"testing"

	"github.com/MODULUSREBUS/libdata/core"
	"github.com/MODULUSREBUS/libdata/discovery"
	"github.com/MODULUSREBUS/libdata/signer"
	"github.com/MODULUSREBUS/libdata/store/memory"
)

func newCore(t *testing.T) *core.Core {
	t.Helper()
	kp, err := signer.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c, err := core.Open(context.Background(), memory.New(), kp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func TestInsertAndLookup(t *testing.T) {
	r := New()
	c := newCore(t)

	if err := r.Insert(c); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, ok := r.GetByPublicKey(c.PublicKey()); !ok {
		t.Fatalf("GetByPublicKey did not find inserted core")
	}

	dk, err := discovery.Key(c.PublicKey())
	if err != nil {
		t.Fatalf("discovery.Key: %v", err)
	}
	got, ok := r.GetByDiscoveryKey(dk[:])
	if !ok || got != c {
		t.Fatalf("GetByDiscoveryKey did not find inserted core")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestRemoveDropsPrimaryIndex(t *testing.T) {
	r := New()
	c := newCore(t)
	if err := r.Insert(c); err != nil {
		t.Fatal(err)
	}
	r.Remove(c.PublicKey())
	if _, ok := r.GetByPublicKey(c.PublicKey()); ok {
		t.Fatalf("GetByPublicKey found a removed core")
	}
}

func TestDiscoveryIndexReleasesAfterPrimaryDrop(t *testing.T) {
	r := New()
	c := newCore(t)
	dk, err := discovery.Key(c.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(c); err != nil {
		t.Fatal(err)
	}
	r.Remove(c.PublicKey())
	c = nil

	// The weak secondary index only releases once the GC has actually run
	// and the core is no longer reachable from anywhere else; force a
	// collection cycle since we just cleared our only strong reference.
	runtime.GC()
	runtime.GC()

	if _, ok := r.GetByDiscoveryKey(dk[:]); ok {
		t.Fatalf("GetByDiscoveryKey still resolves a core whose primary entry was removed")
	}
}

func TestAllYieldsSnapshotPairs(t *testing.T) {
	r := New()
	a, b := newCore(t), newCore(t)
	if err := r.Insert(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(b); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]*core.Core)
	for pub, c := range r.All() {
		seen[string(pub)] = c
	}
	if len(seen) != 2 {
		t.Fatalf("All() yielded %d pairs, want 2", len(seen))
	}
	if seen[string(a.PublicKey())] != a || seen[string(b.PublicKey())] != b {
		t.Fatalf("All() yielded wrong handles for registered keys")
	}
}

func TestTwoDistinctCoresHaveDistinctKeys(t *testing.T) {
	r := New()
	a, b := newCore(t), newCore(t)
	if err := r.Insert(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(b); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if string(a.PublicKey()) == string(b.PublicKey()) {
		t.Fatalf("two freshly generated keys collided")
	}
}
