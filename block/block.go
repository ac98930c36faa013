// Package block defines the fixed little-endian header datacore stores
// alongside every appended payload, and the pair of Ed25519 signatures
// that bind a block to its position in the log.
package block

import (
	"encoding/binary"
	"fmt"
)

// Signature is the pair of Ed25519 signatures carried by every block: Data
// binds the block's leaf hash, Tree binds the hash-of-roots of the Merkle
// after the block is appended.
type Signature struct {
	Data []byte // 64 bytes
	Tree []byte // 64 bytes
}

const sigSize = 64

// SignatureLength is the combined serialized byte length of a block's
// signature pair.
const SignatureLength = 2 * sigSize

// HeaderLength is the serialized byte length of a Header: 8 (offset) + 4
// (length) + 64 (data signature) + 64 (tree signature).
const HeaderLength = 8 + 4 + SignatureLength

// Header is the fixed-size trailer stored with every block's payload.
type Header struct {
	Offset    uint64
	Length    uint32
	Signature Signature
}

// Bytes serializes h to its fixed little-endian wire form.
func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderLength)
	binary.LittleEndian.PutUint64(buf[0:8], h.Offset)
	binary.LittleEndian.PutUint32(buf[8:12], h.Length)
	copy(buf[12:12+sigSize], h.Signature.Data)
	copy(buf[12+sigSize:12+2*sigSize], h.Signature.Tree)
	return buf
}

// HeaderFromBytes decodes a Header from its fixed little-endian wire form.
// It fails on any input shorter than HeaderLength.
func HeaderFromBytes(b []byte) (Header, error) {
	if len(b) < HeaderLength {
		return Header{}, fmt.Errorf("block: header: %w: need %d bytes, got %d", ErrShortInput, HeaderLength, len(b))
	}
	var h Header
	h.Offset = binary.LittleEndian.Uint64(b[0:8])
	h.Length = binary.LittleEndian.Uint32(b[8:12])
	h.Signature.Data = append([]byte(nil), b[12:12+sigSize]...)
	h.Signature.Tree = append([]byte(nil), b[12+sigSize:12+2*sigSize]...)
	return h, nil
}

// ErrShortInput is returned when decoding a block header from a byte slice
// shorter than HeaderLength.
var ErrShortInput = fmt.Errorf("block: input shorter than header length")

// Split separates a store slot's combined value into the block payload and
// its trailing header.
func Split(value []byte) ([]byte, Header, error) {
	if len(value) < HeaderLength {
		return nil, Header{}, fmt.Errorf("block: split: %w", ErrShortInput)
	}
	split := len(value) - HeaderLength
	h, err := HeaderFromBytes(value[split:])
	if err != nil {
		return nil, Header{}, err
	}
	return value[:split], h, nil
}

// Join combines a block's payload and header into the single value stored
// at its slot.
func Join(data []byte, h Header) []byte {
	out := make([]byte, 0, len(data)+HeaderLength)
	out = append(out, data...)
	out = append(out, h.Bytes()...)
	return out
}
