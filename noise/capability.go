package noise

import (
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/MODULUSREBUS/libdata/frame"
)

// CapabilityLabel is the fixed domain-separation string the per-channel
// capability tag is derived under.
const CapabilityLabel = "hypercore capability"

// Capability derives this side's capability tag for key, proving
// knowledge of key in the context of the current session:
// keyed BLAKE2b-256 of (label || split_tx || key) under split_rx.
func Capability(o *Outcome, key []byte) ([]byte, error) {
	return keyedCapability(o.SplitRx, o.SplitTx, key)
}

// RemoteCapability derives the capability tag the peer is expected to
// present for key, so it can be checked against what they sent: keyed
// BLAKE2b-256 of (label || split_rx || key) under split_tx.
func RemoteCapability(o *Outcome, key []byte) ([]byte, error) {
	return keyedCapability(o.SplitTx, o.SplitRx, key)
}

func keyedCapability(hmacKey [32]byte, other [32]byte, key []byte) ([]byte, error) {
	h, err := blake2b.New256(hmacKey[:])
	if err != nil {
		return nil, fmt.Errorf("noise: capability: %w", err)
	}
	h.Write([]byte(CapabilityLabel))
	h.Write(other[:])
	h.Write(key)
	return h.Sum(nil), nil
}

// VerifyRemoteCapability reports whether cap matches the capability the
// peer should have produced for key.
func VerifyRemoteCapability(o *Outcome, key []byte, cap []byte) bool {
	expect, err := RemoteCapability(o, key)
	if err != nil {
		return false
	}
	if len(expect) != len(cap) {
		return false
	}
	var diff byte
	for i := range expect {
		diff |= expect[i] ^ cap[i]
	}
	return diff == 0
}

// TxCipher returns the frame.Cipher this side encrypts outbound frames
// with: XSalsa20 keyed by SplitTx and the local nonce.
func TxCipher(o *Outcome) frame.Cipher {
	return newXSalsaStream(o.SplitTx, o.LocalNonce)
}

// RxCipher returns the frame.Cipher this side decrypts inbound frames
// with: XSalsa20 keyed by SplitRx and the remote nonce.
func RxCipher(o *Outcome) frame.Cipher {
	return newXSalsaStream(o.SplitRx, o.RemoteNonce)
}
