// Package frame implements datacore's length-prefixed wire framing and the
// stream cipher applied to every frame once a handshake completes. Frames
// are body_len:u32_le | body; bodies are opaque during the handshake and
// channel-scoped messages afterwards.
package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// MaxMessageSize is the largest frame body this package will decode.
const MaxMessageSize = 4 << 20 // 4 MiB

// ErrFrameTooLarge is returned when a frame's declared body length exceeds
// MaxMessageSize.
var ErrFrameTooLarge = errors.New("frame: body exceeds max message size")

// ErrIdleTimeout is returned by Reader.ReadFrame when no frame arrives within
// the configured idle window.
var ErrIdleTimeout = errors.New("frame: idle timeout")

// Cipher applies an XSalsa20 keystream in place to every byte that passes
// through a Reader or Writer, installed after a Noise handshake completes.
type Cipher interface {
	XORKeyStream(dst, src []byte)
}

// Conn is the minimal duplex byte stream a Reader/Writer pair operates on.
type Conn interface {
	io.Reader
	io.Writer
}

// Reader decodes length-prefixed frames from an underlying stream, one at
// a time, applying a cipher to every byte read once one is installed.
type Reader struct {
	mu      sync.Mutex
	br      *bufio.Reader
	cipher  Cipher
	timeout time.Duration
	setDL   func(time.Time) error
	// plain counts bytes at the front of br that InstallCipher already
	// decrypted in place; ReadFrame must not apply the keystream to them again.
	plain int
}

// NewReader wraps conn for frame-at-a-time reads. setDeadline, if non-nil,
// is called to arm the idle timeout before each read (e.g. net.Conn's
// SetReadDeadline).
func NewReader(conn io.Reader, idle time.Duration, setDeadline func(time.Time) error) *Reader {
	return &Reader{br: bufio.NewReaderSize(conn, 64*1024), timeout: idle, setDL: setDeadline}
}

// InstallCipher upgrades r to decrypt every subsequently read byte,
// including bytes already buffered internally at the moment of upgrade.
func (r *Reader) InstallCipher(c Cipher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cipher = c
	if buffered := r.br.Buffered(); buffered > 0 {
		peek, _ := r.br.Peek(buffered)
		c.XORKeyStream(peek, peek)
		r.plain = buffered
	}
}

// ReadFrame reads and returns one frame body, applying the idle deadline
// (if configured) before the read.
func (r *Reader) ReadFrame() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.setDL != nil && r.timeout > 0 {
		if err := r.setDL(time.Now().Add(r.timeout)); err != nil {
			return nil, fmt.Errorf("frame: set read deadline: %w", err)
		}
	}

	decrypt := func(b []byte) {
		if r.cipher == nil {
			return
		}
		skip := min(r.plain, len(b))
		r.plain -= skip
		r.cipher.XORKeyStream(b[skip:], b[skip:])
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, ErrIdleTimeout
		}
		return nil, fmt.Errorf("frame: read length: %w", err)
	}
	decrypt(lenBuf[:])
	bodyLen := binary.LittleEndian.Uint32(lenBuf[:])
	if bodyLen > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return nil, fmt.Errorf("frame: read body: %w", err)
	}
	decrypt(body)
	return body, nil
}

// Writer encodes and writes length-prefixed frames to an underlying
// stream, applying a cipher to every byte written once one is installed.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	cipher Cipher
}

// NewWriter wraps conn for frame-at-a-time writes.
func NewWriter(conn io.Writer) *Writer {
	return &Writer{w: conn}
}

// InstallCipher upgrades w to encrypt every subsequently written byte.
func (w *Writer) InstallCipher(c Cipher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cipher = c
}

// WriteFrame writes one frame body, length-prefixed, to the underlying
// stream.
func (w *Writer) WriteFrame(body []byte) error {
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(body)))
	copy(buf[4:], body)
	if w.cipher != nil {
		w.cipher.XORKeyStream(buf, buf)
	}
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("frame: write: %w", err)
	}
	return nil
}
