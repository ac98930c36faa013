// Package signer wraps Ed25519 sign/verify over 32-byte hashes.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/MODULUSREBUS/libdata/hash"
)

// Size is the length in bytes of a single Ed25519 signature.
const Size = ed25519.SignatureSize

// KeyPair holds an Ed25519 public key and, for a writer, the matching
// secret key.
type KeyPair struct {
	Public ed25519.PublicKey
	Secret ed25519.PrivateKey // nil for a read-only (verify-only) handle
}

// Generate creates a fresh signing key pair.
func Generate() (KeyPair, error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signer: generate: %w", err)
	}
	return KeyPair{Public: pub, Secret: sec}, nil
}

// Sign signs a 32-byte hash with the secret key. Returns an error if the
// key pair has no secret key (read-only).
func Sign(kp KeyPair, h hash.Hash) ([]byte, error) {
	if kp.Secret == nil {
		return nil, fmt.Errorf("signer: sign: %w", ErrNoSecretKey)
	}
	return ed25519.Sign(kp.Secret, h[:]), nil
}

// Verify reports whether sig is a valid signature over h by pub.
func Verify(pub ed25519.PublicKey, h hash.Hash, sig []byte) bool {
	if len(sig) != Size {
		return false
	}
	return ed25519.Verify(pub, h[:], sig)
}

// ErrNoSecretKey is returned by Sign when the key pair is read-only.
var ErrNoSecretKey = fmt.Errorf("no secret key available")
