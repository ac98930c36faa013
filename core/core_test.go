package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/MODULUSREBUS/libdata/block"
	"github.com/MODULUSREBUS/libdata/hash"
	"github.com/MODULUSREBUS/libdata/merkle"
	"github.com/MODULUSREBUS/libdata/signer"
	"github.com/MODULUSREBUS/libdata/store/disk"
	"github.com/MODULUSREBUS/libdata/store/memory"
)

func TestAppendTripletMemoryBackend(t *testing.T) {
	ctx := context.Background()
	kp, err := signer.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c, err := Open(ctx, memory.New(), kp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	payloads := [][]byte{
		[]byte(`{"hello":"world"}`),
		[]byte(`{"hello":"mundo"}`),
		[]byte(`{"hello":"welt"}`),
	}
	for _, p := range payloads {
		if err := c.Append(ctx, p, nil); err != nil {
			t.Fatalf("Append(%q): %v", p, err)
		}
	}

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	first, _, err := c.Get(ctx, 0)
	if err != nil {
		t.Fatalf("Get(0): %v", err)
	}
	if !bytes.Equal(first, payloads[0]) {
		t.Fatalf("Get(0) = %q, want %q", first, payloads[0])
	}
	head, _, err := c.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !bytes.Equal(head, payloads[2]) {
		t.Fatalf("Head = %q, want %q", head, payloads[2])
	}
}

func TestReadOnlyRejectsAppend(t *testing.T) {
	ctx := context.Background()
	kp, _ := signer.Generate()
	ro := signer.KeyPair{Public: kp.Public}

	c, err := Open(ctx, memory.New(), ro)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Append(ctx, []byte("hello"), nil); !errors.Is(err, ErrNoSecretKey) {
		t.Fatalf("Append on read-only core: err=%v, want ErrNoSecretKey", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestPersistenceAcrossReopenDiskBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	kp, _ := signer.Generate()

	st, err := disk.Open(dir)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	c, err := Open(ctx, st, kp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Append(ctx, []byte("hello world"), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := c.Append(ctx, []byte("this is datacore"), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	st2, err := disk.Open(dir)
	if err != nil {
		t.Fatalf("disk.Open (reopen): %v", err)
	}
	c2, err := Open(ctx, st2, kp)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	if c2.Len() != 2 {
		t.Fatalf("reopened Len() = %d, want 2", c2.Len())
	}
	d0, _, err := c2.Get(ctx, 0)
	if err != nil || !bytes.Equal(d0, []byte("hello world")) {
		t.Fatalf("reopened Get(0) = %q, %v", d0, err)
	}
	d1, _, err := c2.Get(ctx, 1)
	if err != nil || !bytes.Equal(d1, []byte("this is datacore")) {
		t.Fatalf("reopened Get(1) = %q, %v", d1, err)
	}
}

// expectedSignature independently replays the Merkle state a writer would
// have produced up to and including data, returning the signature Append
// would have attached.
func expectedSignature(t *testing.T, kp signer.KeyPair, priorRoots []merkle.Node, data []byte) (block.Signature, []merkle.Node) {
	t.Helper()
	s := merkle.NewStream(priorRoots)
	leaf := hash.Leaf(data)
	s.Next(leaf, uint32(len(data)))

	dataSig, err := signer.Sign(kp, leaf)
	if err != nil {
		t.Fatalf("sign data: %v", err)
	}
	treeSig, err := signer.Sign(kp, s.RootsHash())
	if err != nil {
		t.Fatalf("sign tree: %v", err)
	}
	return block.Signature{Data: dataSig, Tree: treeSig}, s.Roots()
}

func TestManualReplicatedAppendMatchesOriginByteForByte(t *testing.T) {
	ctx := context.Background()
	kp, _ := signer.Generate()

	originDir, replicaDir := t.TempDir(), t.TempDir()
	originSt, err := disk.Open(originDir)
	if err != nil {
		t.Fatal(err)
	}
	origin, err := Open(ctx, originSt, kp)
	if err != nil {
		t.Fatal(err)
	}

	replicaSt, err := disk.Open(replicaDir)
	if err != nil {
		t.Fatal(err)
	}
	replica, err := Open(ctx, replicaSt, signer.KeyPair{Public: kp.Public})
	if err != nil {
		t.Fatal(err)
	}

	var roots []merkle.Node
	for _, data := range [][]byte{[]byte("hello world"), []byte("this is datacore")} {
		sig, newRoots := expectedSignature(t, kp, roots, data)
		roots = newRoots

		if err := origin.Append(ctx, data, nil); err != nil {
			t.Fatalf("origin append: %v", err)
		}
		if err := replica.Append(ctx, data, &sig); err != nil {
			t.Fatalf("replica append: %v", err)
		}
	}

	for i := uint32(0); i <= origin.Len(); i++ {
		name := strconv.FormatUint(uint64(i), 10)
		a, errA := os.ReadFile(filepath.Join(originDir, name))
		b, errB := os.ReadFile(filepath.Join(replicaDir, name))
		if errA != nil || errB != nil {
			t.Fatalf("slot %d: read origin=%v replica=%v", i, errA, errB)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("slot %d differs between origin and replica", i)
		}
	}
}

func TestReplicatedAppendRejectsTamperedSignature(t *testing.T) {
	ctx := context.Background()
	kp, _ := signer.Generate()

	origin, err := Open(ctx, memory.New(), kp)
	if err != nil {
		t.Fatal(err)
	}
	replica, err := Open(ctx, memory.New(), signer.KeyPair{Public: kp.Public})
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("hello world")
	sig, _ := expectedSignature(t, kp, nil, data)
	if err := origin.Append(ctx, data, nil); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		sig  block.Signature
	}{
		{"zeroed data sig", block.Signature{Data: make([]byte, 64), Tree: sig.Tree}},
		{"zeroed tree sig", block.Signature{Data: sig.Data, Tree: make([]byte, 64)}},
		{"zeroed both", block.Signature{Data: make([]byte, 64), Tree: make([]byte, 64)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := replica.Append(ctx, data, &tc.sig); !errors.Is(err, ErrVerificationFailed) {
				t.Fatalf("Append with %s: err=%v, want ErrVerificationFailed", tc.name, err)
			}
			if replica.Len() != 0 {
				t.Fatalf("Len() = %d after rejected append, want 0", replica.Len())
			}
		})
	}
}

func TestGetBeyondLengthReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	kp, _ := signer.Generate()
	c, _ := Open(ctx, memory.New(), kp)
	if _, _, err := c.Get(ctx, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty core: err=%v, want ErrNotFound", err)
	}
	if _, _, err := c.Head(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Head on empty core: err=%v, want ErrNotFound", err)
	}
}

func TestOpenRejectsCorruptRootsSlot(t *testing.T) {
	ctx := context.Background()
	kp, _ := signer.Generate()
	st := memory.New()
	// A roots slot that is present but not a whole number of nodes must be
	// a hard error, not treated as an empty log.
	if err := st.Write(ctx, 0, []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(ctx, st, kp); !errors.Is(err, ErrCorruptRoots) {
		t.Fatalf("Open with corrupt roots slot: err=%v, want ErrCorruptRoots", err)
	}
}

// TestTornAppendRecovery exercises the documented recovery property: a
// payload written at slot length+1 with no matching roots write is
// overwritten, not appended twice, on the next append.
func TestTornAppendRecovery(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	kp, _ := signer.Generate()

	st, err := disk.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Open(ctx, st, kp)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Append(ctx, []byte("first"), nil); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash between the payload write and the roots write: write
	// an unreferenced payload at slot length+1 (=2) directly, bypassing Core.
	if err := st.Write(ctx, 2, []byte("torn-leftover-should-be-overwritten")); err != nil {
		t.Fatal(err)
	}

	st2, err := disk.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := Open(ctx, st2, kp)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Len() != 1 {
		t.Fatalf("Len() after torn write = %d, want 1 (roots weren't advanced)", reopened.Len())
	}

	if err := reopened.Append(ctx, []byte("second"), nil); err != nil {
		t.Fatal(err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("Len() after recovery append = %d, want 2", reopened.Len())
	}
	d1, _, err := reopened.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d1, []byte("second")) {
		t.Fatalf("Get(1) = %q, want %q (leftover slot was not overwritten)", d1, "second")
	}
}
