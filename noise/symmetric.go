package noise

import (
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const protocolName = "Noise_XX_25519_ChaChaPoly_BLAKE2b"

func newHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // unkeyed blake2b-256 construction never fails
	}
	return h
}

func hashSum(data ...[]byte) []byte {
	h := newHash()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// hkdf2 implements the two-output HKDF construction the Noise Protocol
// Framework specifies, built on HMAC over the handshake hash function.
func hkdf2(chainKey, inputKeyMaterial []byte) (out1, out2 []byte) {
	tempKey := hmacSum(chainKey, inputKeyMaterial)
	out1 = hmacSum(tempKey, []byte{0x01})
	out2 = hmacSum(tempKey, append(append([]byte(nil), out1...), 0x02))
	return out1, out2
}

func hmacSum(key, data []byte) []byte {
	m := hmac.New(newHash, key)
	m.Write(data)
	return m.Sum(nil)
}

// cipherState is a keyed AEAD cipher plus nonce counter, as defined by the
// Noise Protocol Framework's CipherState object.
type cipherState struct {
	aead   cipher.AEAD
	hasKey bool
	nonce  uint64
}

func (c *cipherState) initializeKey(key [32]byte) error {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return fmt.Errorf("noise: init cipher: %w", err)
	}
	c.aead = aead
	c.hasKey = true
	c.nonce = 0
	return nil
}

func (c *cipherState) encryptWithAD(ad, plaintext []byte) ([]byte, error) {
	if !c.hasKey {
		return plaintext, nil
	}
	nonce := encodeNonce(c.nonce)
	c.nonce++
	return c.aead.Seal(nil, nonce[:], plaintext, ad), nil
}

func (c *cipherState) decryptWithAD(ad, ciphertext []byte) ([]byte, error) {
	if !c.hasKey {
		return ciphertext, nil
	}
	nonce := encodeNonce(c.nonce)
	c.nonce++
	pt, err := c.aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypt: %w", ErrHandshakeFailed)
	}
	return pt, nil
}

func encodeNonce(n uint64) [12]byte {
	var out [12]byte
	binary.LittleEndian.PutUint64(out[4:], n)
	return out
}

// symmetricState bundles the running handshake hash, chaining key, and
// cipher state, per the Noise Protocol Framework's SymmetricState object.
type symmetricState struct {
	h  []byte
	ck []byte
	c  cipherState
}

func newSymmetricState() *symmetricState {
	name := []byte(protocolName)
	h := make([]byte, 32)
	if len(name) <= 32 {
		copy(h, name)
	} else {
		h = hashSum(name)
	}
	return &symmetricState{h: h, ck: append([]byte(nil), h...)}
}

func (s *symmetricState) mixHash(data []byte) {
	s.h = hashSum(s.h, data)
}

func (s *symmetricState) mixKey(ikm []byte) error {
	ck, tempK := hkdf2(s.ck, ikm)
	s.ck = ck
	var key [32]byte
	copy(key[:], tempK)
	return s.c.initializeKey(key)
}

func (s *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	ct, err := s.c.encryptWithAD(s.h, plaintext)
	if err != nil {
		return nil, err
	}
	s.mixHash(ct)
	return ct, nil
}

func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	pt, err := s.c.decryptWithAD(s.h, ciphertext)
	if err != nil {
		return nil, err
	}
	s.mixHash(ciphertext)
	return pt, nil
}

// split derives the two transport keys the handshake hands off: cs1 is
// keyed for messages flowing in the direction the initiator writes, cs2
// for the direction the responder writes.
func (s *symmetricState) split() (cs1, cs2 [32]byte) {
	a, b := hkdf2(s.ck, nil)
	copy(cs1[:], a)
	copy(cs2[:], b)
	return cs1, cs2
}
