// Package noise implements the Noise_XX_25519_ChaChaPoly_BLAKE2b handshake
// datacore's protocol stage runs before any Message frame is exchanged,
// plus the per-channel capability derivation and the XSalsa20 cipher
// installed on the frame layer once the handshake completes.
//
// Off-the-shelf Noise libraries hand back their own AEAD transport
// objects rather than the raw split keys the capability derivation and
// frame cipher need, so the handshake's symmetric-state machinery is
// implemented directly against golang.org/x/crypto's curve25519,
// chacha20poly1305, and blake2b primitives.
package noise

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/MODULUSREBUS/libdata/wire"
)

// ErrHandshakeFailed is returned when a handshake message fails to
// authenticate or decrypt.
var ErrHandshakeFailed = errors.New("noise: handshake authentication failed")

// StaticKeyPair is a Curve25519 key pair used as the handshake's long-term
// identity.
type StaticKeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateStaticKeyPair creates a fresh Curve25519 key pair.
func GenerateStaticKeyPair() (StaticKeyPair, error) {
	var kp StaticKeyPair
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return kp, fmt.Errorf("noise: generate static key: %w", err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return kp, fmt.Errorf("noise: generate static key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Outcome is the authenticated result of a completed handshake.
type Outcome struct {
	IsInitiator     bool
	LocalStaticPub  [32]byte
	RemoteStaticPub [32]byte
	LocalNonce      [24]byte
	RemoteNonce     [24]byte
	SplitTx         [32]byte // keys this side's outbound cipher
	SplitRx         [32]byte // keys this side's inbound cipher
}

// HandshakeState drives one Noise_XX handshake to completion, message by
// message.
type HandshakeState struct {
	sym         *symmetricState
	initiator   bool
	static      StaticKeyPair
	ephemeral   StaticKeyPair
	remoteEph   [32]byte
	remoteStat  [32]byte
	localNonce  [24]byte
	remoteNonce [24]byte
	msgIndex    int
	done        bool
}

// NewHandshakeState begins a Noise_XX handshake as either initiator or
// responder, using static as the local long-term key pair.
func NewHandshakeState(initiator bool, static StaticKeyPair) (*HandshakeState, error) {
	eph, err := GenerateStaticKeyPair()
	if err != nil {
		return nil, fmt.Errorf("noise: new handshake: %w", err)
	}
	hs := &HandshakeState{
		sym:       newSymmetricState(),
		initiator: initiator,
		static:    static,
		ephemeral: eph,
	}
	if _, err := io.ReadFull(rand.Reader, hs.localNonce[:]); err != nil {
		return nil, fmt.Errorf("noise: new handshake: generate nonce: %w", err)
	}
	return hs, nil
}

func (hs *HandshakeState) dh(priv, pub [32]byte) ([]byte, error) {
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return nil, fmt.Errorf("noise: dh: %w", err)
	}
	return out, nil
}

// WriteMessage produces this side's next handshake flight. outcome is
// non-nil only once the final flight for this role has been produced.
func (hs *HandshakeState) WriteMessage() (msg []byte, outcome *Outcome, err error) {
	switch {
	case hs.initiator && hs.msgIndex == 0:
		// -> e
		hs.sym.mixHash(hs.ephemeral.Public[:])
		payload := wire.NoisePayload{Nonce: hs.localNonce[:]}.Marshal()
		ct, err := hs.sym.encryptAndHash(payload)
		if err != nil {
			return nil, nil, err
		}
		hs.msgIndex++
		return append(append([]byte(nil), hs.ephemeral.Public[:]...), ct...), nil, nil

	case !hs.initiator && hs.msgIndex == 1:
		// <- e, ee, s, es
		hs.sym.mixHash(hs.ephemeral.Public[:])
		ee, err := hs.dh(hs.ephemeral.Private, hs.remoteEph)
		if err != nil {
			return nil, nil, err
		}
		if err := hs.sym.mixKey(ee); err != nil {
			return nil, nil, err
		}
		sCt, err := hs.sym.encryptAndHash(hs.static.Public[:])
		if err != nil {
			return nil, nil, err
		}
		es, err := hs.dh(hs.static.Private, hs.remoteEph)
		if err != nil {
			return nil, nil, err
		}
		if err := hs.sym.mixKey(es); err != nil {
			return nil, nil, err
		}
		payload := wire.NoisePayload{Nonce: hs.localNonce[:]}.Marshal()
		pCt, err := hs.sym.encryptAndHash(payload)
		if err != nil {
			return nil, nil, err
		}
		hs.msgIndex = 2
		out := append(append([]byte(nil), hs.ephemeral.Public[:]...), sCt...)
		out = append(out, pCt...)
		return out, nil, nil

	case hs.initiator && hs.msgIndex == 2:
		// -> s, se
		sCt, err := hs.sym.encryptAndHash(hs.static.Public[:])
		if err != nil {
			return nil, nil, err
		}
		se, err := hs.dh(hs.static.Private, hs.remoteEph)
		if err != nil {
			return nil, nil, err
		}
		if err := hs.sym.mixKey(se); err != nil {
			return nil, nil, err
		}
		pCt, err := hs.sym.encryptAndHash(nil)
		if err != nil {
			return nil, nil, err
		}
		hs.msgIndex = 3
		hs.done = true
		out := append(sCt, pCt...)
		return out, hs.finish(), nil
	}
	return nil, nil, fmt.Errorf("noise: write message: %w", ErrOutOfOrder)
}

// ReadMessage consumes the peer's next handshake flight. outcome is
// non-nil only once the final flight for this role has been consumed.
func (hs *HandshakeState) ReadMessage(msg []byte) (outcome *Outcome, err error) {
	switch {
	case !hs.initiator && hs.msgIndex == 0:
		// -> e
		if len(msg) < 32 {
			return nil, fmt.Errorf("noise: read message 1: %w", ErrHandshakeFailed)
		}
		copy(hs.remoteEph[:], msg[:32])
		hs.sym.mixHash(hs.remoteEph[:])
		payload, err := hs.sym.decryptAndHash(msg[32:])
		if err != nil {
			return nil, err
		}
		np, err := wire.UnmarshalNoisePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("noise: read message 1: payload: %w", err)
		}
		copy(hs.remoteNonce[:], np.Nonce)
		hs.msgIndex = 1
		return nil, nil

	case hs.initiator && hs.msgIndex == 1:
		// <- e, ee, s, es
		if len(msg) < 32+32+16 {
			return nil, fmt.Errorf("noise: read message 2: %w", ErrHandshakeFailed)
		}
		copy(hs.remoteEph[:], msg[:32])
		hs.sym.mixHash(hs.remoteEph[:])
		rest := msg[32:]

		ee, err := hs.dh(hs.ephemeral.Private, hs.remoteEph)
		if err != nil {
			return nil, err
		}
		if err := hs.sym.mixKey(ee); err != nil {
			return nil, err
		}

		sCt := rest[:32+16]
		sPlain, err := hs.sym.decryptAndHash(sCt)
		if err != nil {
			return nil, err
		}
		copy(hs.remoteStat[:], sPlain)

		es, err := hs.dh(hs.ephemeral.Private, hs.remoteStat)
		if err != nil {
			return nil, err
		}
		if err := hs.sym.mixKey(es); err != nil {
			return nil, err
		}

		payload, err := hs.sym.decryptAndHash(rest[32+16:])
		if err != nil {
			return nil, err
		}
		np, err := wire.UnmarshalNoisePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("noise: read message 2: payload: %w", err)
		}
		copy(hs.remoteNonce[:], np.Nonce)
		hs.msgIndex = 2
		return nil, nil

	case !hs.initiator && hs.msgIndex == 2:
		// -> s, se
		if len(msg) < 32+16 {
			return nil, fmt.Errorf("noise: read message 3: %w", ErrHandshakeFailed)
		}
		sCt := msg[:32+16]
		sPlain, err := hs.sym.decryptAndHash(sCt)
		if err != nil {
			return nil, err
		}
		copy(hs.remoteStat[:], sPlain)

		se, err := hs.dh(hs.ephemeral.Private, hs.remoteStat)
		if err != nil {
			return nil, err
		}
		if err := hs.sym.mixKey(se); err != nil {
			return nil, err
		}

		if _, err := hs.sym.decryptAndHash(msg[32+16:]); err != nil {
			return nil, err
		}
		hs.msgIndex = 3
		hs.done = true
		return hs.finish(), nil
	}
	return nil, fmt.Errorf("noise: read message: %w", ErrOutOfOrder)
}

func (hs *HandshakeState) finish() *Outcome {
	cs1, cs2 := hs.sym.split()
	o := &Outcome{
		IsInitiator:     hs.initiator,
		LocalStaticPub:  hs.static.Public,
		RemoteStaticPub: hs.remoteStat,
		LocalNonce:      hs.localNonce,
		RemoteNonce:     hs.remoteNonce,
	}
	if hs.initiator {
		o.SplitTx, o.SplitRx = cs1, cs2
	} else {
		o.SplitTx, o.SplitRx = cs2, cs1
	}
	return o
}

// Done reports whether the handshake has produced its Outcome.
func (hs *HandshakeState) Done() bool { return hs.done }

// ErrOutOfOrder is returned when WriteMessage/ReadMessage is called out of
// the expected XX message sequence for this role.
var ErrOutOfOrder = errors.New("noise: handshake message out of order")
