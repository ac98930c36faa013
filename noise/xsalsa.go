package noise

import (
	"encoding/binary"

	"golang.org/x/crypto/salsa20/salsa"
)

// xsalsaStream is a resumable XSalsa20 keystream: the high-level salsa20
// package only exposes a one-shot XORKeyStream that always starts its block
// counter at zero, which cannot back a Cipher that is fed one frame at a
// time across many Write calls. This wraps the low-level salsa package's
// HSalsa20 subkey derivation and its counter-explicit XORKeyStream to track
// a running block counter and a partial-block leftover buffer instead.
type xsalsaStream struct {
	subkey    [32]byte
	nonceTail [8]byte
	counter   uint64
	leftover  []byte
}

// newXSalsaStream derives an XSalsa20 stream from a 32-byte key and a
// 24-byte nonce: the first 16 nonce bytes feed HSalsa20 to produce a
// per-session subkey, and the trailing 8 bytes become the Salsa20 nonce
// proper, with an explicit running block counter.
func newXSalsaStream(key [32]byte, nonce [24]byte) *xsalsaStream {
	var hNonce [16]byte
	copy(hNonce[:], nonce[:16])

	var subkey [32]byte
	salsa.HSalsa20(&subkey, &hNonce, &key, &salsa.Sigma)

	var tail [8]byte
	copy(tail[:], nonce[16:24])

	return &xsalsaStream{subkey: subkey, nonceTail: tail}
}

// nextBlock produces the keystream block at the current counter and
// advances it.
func (s *xsalsaStream) nextBlock() [64]byte {
	var counter [16]byte
	copy(counter[:8], s.nonceTail[:])
	binary.LittleEndian.PutUint64(counter[8:], s.counter)

	var block [64]byte
	salsa.XORKeyStream(block[:], block[:], &counter, &s.subkey)
	s.counter++
	return block
}

// XORKeyStream implements frame.Cipher, applying the keystream to src and
// writing the result to dst. dst and src may alias.
func (s *xsalsaStream) XORKeyStream(dst, src []byte) {
	n := len(src)
	di := 0

	if len(s.leftover) > 0 {
		k := len(s.leftover)
		if k > n {
			k = n
		}
		for i := 0; i < k; i++ {
			dst[i] = src[i] ^ s.leftover[i]
		}
		s.leftover = s.leftover[k:]
		di = k
	}

	for di < n {
		block := s.nextBlock()
		take := n - di
		if take > 64 {
			take = 64
		}
		for i := 0; i < take; i++ {
			dst[di+i] = src[di+i] ^ block[i]
		}
		if take < 64 {
			s.leftover = append([]byte(nil), block[take:]...)
		}
		di += take
	}
}
