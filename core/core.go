// Package core implements the Core append-only log: signing and verifying
// blocks, maintaining the incremental Merkle state, and persisting both
// through a store.IndexAccess backend.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MODULUSREBUS/libdata/block"
	"github.com/MODULUSREBUS/libdata/hash"
	"github.com/MODULUSREBUS/libdata/internal/log"
	"github.com/MODULUSREBUS/libdata/merkle"
	"github.com/MODULUSREBUS/libdata/signer"
	"github.com/MODULUSREBUS/libdata/store"
)

// MaxCoreLength is the largest number of blocks a Core may hold.
const MaxCoreLength = 1<<32 - 1

// MaxBlockSize is the largest payload a single block may carry.
const MaxBlockSize = 1<<32 - 1

// Errors returned by Core operations. Each corresponds to one of the
// semantic error kinds datacore distinguishes; wrap these with fmt.Errorf
// to add detail, and unwrap with errors.Is to recover the kind.
var (
	ErrNoSecretKey        = errors.New("core: append requires a secret key")
	ErrBlockTooLarge      = errors.New("core: block exceeds max block size")
	ErrCoreFull           = errors.New("core: at max core length")
	ErrVerificationFailed = errors.New("core: signature verification failed")
	ErrNotFound           = errors.New("core: index out of range")
	ErrCorruptRoots       = errors.New("core: roots slot failed to decode")
)

var logger = log.Module("core")

// Core is the append-only log bound to a single public key. At most one
// goroutine should mutate a shared Core without going through an external
// mutex; Core performs no internal locking of its own beyond guarding its
// in-memory Merkle state against concurrent append/get calls.
type Core struct {
	mu sync.Mutex

	keys  signer.KeyPair
	store store.IndexAccess

	stream     *merkle.Stream
	length     uint32
	byteLength uint64
}

// Open reconstructs a Core from its backing store. keys.Secret may be nil
// for a read-only handle.
func Open(ctx context.Context, st store.IndexAccess, keys signer.KeyPair) (*Core, error) {
	rootsBytes, err := st.Read(ctx, 0)
	var roots []merkle.Node
	switch {
	case errors.Is(err, store.ErrNotFound):
		roots = nil
	case err != nil:
		return nil, fmt.Errorf("core: open: read roots: %w", err)
	default:
		// A present but undecodable roots slot is a hard error, never
		// treated as an empty log: a writer resuming from "empty" here
		// would silently overwrite history.
		roots, err = merkle.DecodeRoots(rootsBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRoots, err)
		}
	}

	stream := merkle.NewStream(roots)
	length := uint32(stream.Blocks())

	var byteLength uint64
	if length > 0 {
		raw, err := st.Read(ctx, length) // slot `length` holds block length-1
		if err != nil {
			return nil, fmt.Errorf("core: open: read last block: %w", err)
		}
		_, hdr, err := block.Split(raw)
		if err != nil {
			return nil, fmt.Errorf("core: open: split last block: %w", err)
		}
		byteLength = hdr.Offset + uint64(hdr.Length)
	}

	logger.Debug("opened core", "length", length, "byte_length", byteLength)
	return &Core{keys: keys, store: st, stream: stream, length: length, byteLength: byteLength}, nil
}

// Len returns the number of blocks currently appended.
func (c *Core) Len() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.length
}

// ByteLength returns the cumulative payload byte length of all appended
// blocks.
func (c *Core) ByteLength() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byteLength
}

// PublicKey returns the Core's public key.
func (c *Core) PublicKey() []byte {
	return append([]byte(nil), c.keys.Public...)
}

// Append adds data as the next block. If sig is nil, the Core signs it
// itself (the authoring path, requiring a secret key); if sig is supplied,
// it is verified against the hash the block would produce before any
// mutation is committed (the replication path).
func (c *Core) Append(ctx context.Context, data []byte, sig *block.Signature) error {
	if uint64(len(data)) > MaxBlockSize {
		return fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, len(data))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if uint64(c.length) >= MaxCoreLength {
		return ErrCoreFull
	}

	leaf := hash.Leaf(data)
	working := c.stream.Clone()
	working.Next(leaf, uint32(len(data)))
	rootsHash := working.RootsHash()

	var outSig block.Signature
	if sig != nil {
		if !signer.Verify(c.keys.Public, leaf, sig.Data) {
			return fmt.Errorf("%w: data signature", ErrVerificationFailed)
		}
		if !signer.Verify(c.keys.Public, rootsHash, sig.Tree) {
			return fmt.Errorf("%w: tree signature", ErrVerificationFailed)
		}
		outSig = *sig
	} else {
		if c.keys.Secret == nil {
			return ErrNoSecretKey
		}
		dataSig, err := signer.Sign(c.keys, leaf)
		if err != nil {
			return fmt.Errorf("core: append: sign data: %w", err)
		}
		treeSig, err := signer.Sign(c.keys, rootsHash)
		if err != nil {
			return fmt.Errorf("core: append: sign roots: %w", err)
		}
		outSig = block.Signature{Data: dataSig, Tree: treeSig}
	}

	index := c.length
	hdr := block.Header{Offset: c.byteLength, Length: uint32(len(data)), Signature: outSig}
	value := block.Join(data, hdr)

	if err := c.store.Write(ctx, index+1, value); err != nil {
		return fmt.Errorf("core: append: write block %d: %w", index, err)
	}
	if err := c.store.Write(ctx, 0, merkle.EncodeRoots(working.Roots())); err != nil {
		return fmt.Errorf("core: append: write roots: %w", err)
	}

	c.stream = working
	c.length++
	c.byteLength += uint64(len(data))

	logger.Debug("appended block", "index", index, "length", len(data))
	return nil
}

// Get returns the payload and signature of block i. It returns ErrNotFound
// if i is beyond the current length.
func (c *Core) Get(ctx context.Context, i uint32) ([]byte, block.Signature, error) {
	c.mu.Lock()
	length := c.length
	c.mu.Unlock()

	if i >= length {
		return nil, block.Signature{}, ErrNotFound
	}

	raw, err := c.store.Read(ctx, i+1)
	if err != nil {
		return nil, block.Signature{}, fmt.Errorf("core: get %d: %w", i, err)
	}
	data, hdr, err := block.Split(raw)
	if err != nil {
		return nil, block.Signature{}, fmt.Errorf("core: get %d: %w", i, err)
	}
	return data, hdr.Signature, nil
}

// Head returns the most recently appended block, or ErrNotFound if the
// Core is empty.
func (c *Core) Head(ctx context.Context) ([]byte, block.Signature, error) {
	c.mu.Lock()
	length := c.length
	c.mu.Unlock()
	if length == 0 {
		return nil, block.Signature{}, ErrNotFound
	}
	return c.Get(ctx, length-1)
}

// RootsHash returns the hash-of-roots of the current Merkle state, the
// digest a block's tree signature commits to.
func (c *Core) RootsHash() hash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.RootsHash()
}
