// Package discovery derives the discovery key datacore uses as a stable,
// public-key-revealing-nothing channel address on the wire.
package discovery

import "golang.org/x/crypto/blake2b"

// Label is the fixed domain-separation string hashed under the public key
// to derive its discovery key.
const Label = "hypercore"

// Size is the length in bytes of a discovery key.
const Size = 32

// Key derives the discovery key for a public key: BLAKE2b-256 keyed with
// the public key itself, over the fixed label. Publishing the result on
// the wire reveals nothing about the key, since recovering the key would
// mean inverting the keyed hash.
func Key(publicKey []byte) ([Size]byte, error) {
	h, err := blake2b.New256(publicKey)
	if err != nil {
		return [Size]byte{}, err
	}
	h.Write([]byte(Label))
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
