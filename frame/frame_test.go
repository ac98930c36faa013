package frame

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

// xorCipher is a trivial symmetric stream cipher for tests: XOR with a
// repeating keystream, which is its own inverse.
type xorCipher struct {
	key []byte
	pos int
}

func (c *xorCipher) XORKeyStream(dst, src []byte) {
	for i := range src {
		dst[i] = src[i] ^ c.key[c.pos%len(c.key)]
		c.pos++
	}
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteFrame([]byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.WriteFrame([]byte("world")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	r := NewReader(&buf, 0, nil)
	got, err := r.ReadFrame()
	if err != nil || string(got) != "hello" {
		t.Fatalf("ReadFrame() = %q, %v, want %q, nil", got, err, "hello")
	}
	got, err = r.ReadFrame()
	if err != nil || string(got) != "world" {
		t.Fatalf("ReadFrame() = %q, %v, want %q, nil", got, err, "world")
	}
}

func TestWriteFrameRejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	big := make([]byte, MaxMessageSize+1)
	if err := w.WriteFrame(big); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("WriteFrame(oversized): err=%v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameRejectsOversizedDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0xFF}) // little-endian length far beyond MaxMessageSize
	r := NewReader(&buf, 0, nil)
	if _, err := r.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame(oversized declared length): err=%v, want ErrFrameTooLarge", err)
	}
}

func TestCipherRoundTripAcrossWriterAndReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	r := NewReader(&buf, 0, nil)

	key := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	w.InstallCipher(&xorCipher{key: key})
	r.InstallCipher(&xorCipher{key: key})

	if err := w.WriteFrame([]byte("encrypted payload")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := r.ReadFrame()
	if err != nil || string(got) != "encrypted payload" {
		t.Fatalf("ReadFrame() = %q, %v, want %q, nil", got, err, "encrypted payload")
	}
}

// TestInstallCipherDecryptsAlreadyBufferedBytes verifies that frames written
// in plaintext but already pulled into the Reader's internal buffer before
// InstallCipher is called are still decrypted correctly -- the mid-stream
// cipher-installation case a Noise handshake relies on.
func TestInstallCipherDecryptsAlreadyBufferedBytes(t *testing.T) {
	var plain bytes.Buffer
	pw := NewWriter(&plain)
	if err := pw.WriteFrame([]byte("pre-buffered")); err != nil {
		t.Fatal(err)
	}

	key := []byte{1, 2, 3, 4}
	enc := &xorCipher{key: key}
	ciphertext := make([]byte, plain.Len())
	enc.XORKeyStream(ciphertext, plain.Bytes())

	r := NewReader(bytes.NewReader(ciphertext), 0, nil)
	// Force the whole ciphertext into the bufio.Reader's internal buffer
	// before the cipher is installed, simulating bytes that arrived before
	// the handshake completed.
	if _, err := r.br.Peek(len(ciphertext)); err != nil {
		t.Fatalf("Peek: %v", err)
	}

	r.InstallCipher(&xorCipher{key: key})
	got, err := r.ReadFrame()
	if err != nil || string(got) != "pre-buffered" {
		t.Fatalf("ReadFrame() = %q, %v, want %q, nil", got, err, "pre-buffered")
	}
}

func TestIdleTimeoutReturnsErrIdleTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	r := NewReader(server, 20*time.Millisecond, server.SetReadDeadline)
	_, err := r.ReadFrame()
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("ReadFrame() with no traffic: err=%v, want ErrIdleTimeout", err)
	}
}
