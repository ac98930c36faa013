// Package keys derives named child signing key pairs from a base secret
// key, so one root identity can own many independent logs.
package keys

import (
	"crypto/ed25519"
	"fmt"
	"math/rand/v2"

	"github.com/MODULUSREBUS/libdata/signer"
	"lukechampine.com/blake3"
)

// Derive produces a deterministic child key pair from base's secret key
// and a name, by seeding a ChaCha8 PRNG from a BLAKE3 keyed derivation of
// name under base's secret key material and generating an Ed25519 key
// pair from it.
//
// Any CSPRNG seeded from the same derived key material yields a valid
// deterministic derivation; math/rand/v2's ChaCha8 avoids pulling in a
// stream-cipher dependency purely for randomness.
func Derive(base signer.KeyPair, name string) (signer.KeyPair, error) {
	if base.Secret == nil {
		return signer.KeyPair{}, fmt.Errorf("keys: derive: %w", signer.ErrNoSecretKey)
	}

	var seed [32]byte
	blake3.DeriveKey(seed[:], name, base.Secret.Seed())

	src := rand.NewChaCha8(seed)
	pub, sec, err := ed25519.GenerateKey(src)
	if err != nil {
		return signer.KeyPair{}, fmt.Errorf("keys: derive: generate: %w", err)
	}
	return signer.KeyPair{Public: pub, Secret: sec}, nil
}
