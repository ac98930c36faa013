// Package protocol implements the datacore replication state machine:
// a Noise handshake stage followed by a multiplexed main stage carrying
// Open/Close/Request/Data messages, producing a FIFO queue of events for
// callers to drain one at a time.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MODULUSREBUS/libdata/channel"
	"github.com/MODULUSREBUS/libdata/frame"
	"github.com/MODULUSREBUS/libdata/internal/log"
	"github.com/MODULUSREBUS/libdata/noise"
	"github.com/MODULUSREBUS/libdata/wire"
)

var logger = log.Module("protocol")

// EventKind identifies the variant a popped Event carries.
type EventKind int

const (
	EventDiscoveryKey EventKind = iota
	EventOpen
	EventClose
	EventMessage
)

// MessageKind identifies the payload carried by an EventMessage.
type MessageKind int

const (
	MessageRequest MessageKind = iota
	MessageData
)

// Event is one item the protocol's poll loop yields, in FIFO order.
type Event struct {
	Kind         EventKind
	DiscoveryKey []byte
	Capability   []byte // set on EventOpen when Noise capabilities are enabled
	MsgKind      MessageKind
	Request      wire.Request
	Data         wire.Data
}

// Config configures a Protocol instance.
type Config struct {
	IsInitiator bool
	Noise       bool // if false, handshake completes instantly, no cipher installed
	Encrypted   bool // if false, no cipher is installed even after a real handshake
	StaticKey   noise.StaticKeyPair
	KeepaliveMs uint64 // 0 disables the idle read timeout
}

// DefaultConfig returns a Config with Noise and Encrypted both enabled and
// no keepalive timeout.
func DefaultConfig(isInitiator bool, static noise.StaticKeyPair) Config {
	return Config{IsInitiator: isInitiator, Noise: true, Encrypted: true, StaticKey: static}
}

// deadlineSetter is implemented by connections (e.g. net.Conn) that support
// an idle read deadline; conns that don't implement it simply never time out.
type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

var (
	// ErrUnknownChannel is returned when a Request/Data message's channel
	// does not resolve to a known remote ID.
	ErrUnknownChannel = errors.New("protocol: message on unknown channel")
	// ErrNotConnected is returned by SendRequest/SendData when the channel
	// has not (yet) had both ends attached, and by Close when the channel
	// has no local end.
	ErrNotConnected = errors.New("protocol: channel not connected")
	// ErrHandshakeNotDone names the state of a session whose handshake stage
	// has not completed. No method in this package returns it: the main-stage
	// methods do not check whether RunHandshake has run.
	ErrHandshakeNotDone = errors.New("protocol: handshake not complete")
)

// Protocol drives one replication session over a duplex byte stream.
type Protocol struct {
	cfg Config

	reader *frame.Reader
	writer *frame.Writer

	// setDeadline unblocks a pending read when a context is canceled;
	// nil when the conn has no deadline support.
	setDeadline func(time.Time) error

	hs      *noise.HandshakeState
	outcome *noise.Outcome

	channels *channel.Map

	mu     sync.Mutex
	events []Event
}

// New creates a Protocol over conn. The handshake stage must be driven to
// completion with RunHandshake before the main stage's Open/Send/Poll
// methods are used.
func New(conn frame.Conn, cfg Config) *Protocol {
	var idle time.Duration
	var setDL func(time.Time) error
	if ds, ok := conn.(deadlineSetter); ok {
		setDL = ds.SetReadDeadline
	}
	if cfg.KeepaliveMs > 0 {
		idle = time.Duration(cfg.KeepaliveMs) * time.Millisecond
	}
	return &Protocol{
		cfg:         cfg,
		reader:      frame.NewReader(conn, idle, setDL),
		writer:      frame.NewWriter(conn),
		setDeadline: setDL,
		channels:    channel.New(),
	}
}

// readFrame reads one frame, returning ctx.Err() if ctx is canceled while
// the read is blocked. Cancellation is delivered by forcing an immediate
// read deadline on the conn; conns without deadline support block until
// bytes arrive or the stream closes.
func (p *Protocol) readFrame(ctx context.Context) ([]byte, error) {
	if p.setDeadline == nil || ctx.Done() == nil {
		return p.reader.ReadFrame()
	}

	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			p.setDeadline(time.Now())
		case <-stop:
		}
	}()

	body, err := p.reader.ReadFrame()
	close(stop)
	<-watcherDone

	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return body, err
}

// RunHandshake drives the Noise handshake stage to completion. If
// cfg.Noise is false, it returns immediately with a nil Outcome and no
// cipher is installed.
func (p *Protocol) RunHandshake(ctx context.Context) (*noise.Outcome, error) {
	if !p.cfg.Noise {
		return nil, nil
	}

	hs, err := noise.NewHandshakeState(p.cfg.IsInitiator, p.cfg.StaticKey)
	if err != nil {
		return nil, fmt.Errorf("protocol: handshake: %w", err)
	}
	p.hs = hs

	if p.cfg.IsInitiator {
		msg, _, err := hs.WriteMessage()
		if err != nil {
			return nil, fmt.Errorf("protocol: handshake: write 1: %w", err)
		}
		if err := p.writer.WriteFrame(msg); err != nil {
			return nil, fmt.Errorf("protocol: handshake: %w", err)
		}

		in, err := p.readFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("protocol: handshake: read 2: %w", err)
		}
		if _, err := hs.ReadMessage(in); err != nil {
			return nil, fmt.Errorf("protocol: handshake: read 2: %w", err)
		}

		msg3, outcome, err := hs.WriteMessage()
		if err != nil {
			return nil, fmt.Errorf("protocol: handshake: write 3: %w", err)
		}
		if err := p.writer.WriteFrame(msg3); err != nil {
			return nil, fmt.Errorf("protocol: handshake: %w", err)
		}
		p.outcome = outcome
	} else {
		in1, err := p.readFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("protocol: handshake: read 1: %w", err)
		}
		if _, err := hs.ReadMessage(in1); err != nil {
			return nil, fmt.Errorf("protocol: handshake: read 1: %w", err)
		}

		msg2, _, err := hs.WriteMessage()
		if err != nil {
			return nil, fmt.Errorf("protocol: handshake: write 2: %w", err)
		}
		if err := p.writer.WriteFrame(msg2); err != nil {
			return nil, fmt.Errorf("protocol: handshake: %w", err)
		}

		in3, err := p.readFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("protocol: handshake: read 3: %w", err)
		}
		outcome, err := hs.ReadMessage(in3)
		if err != nil {
			return nil, fmt.Errorf("protocol: handshake: read 3: %w", err)
		}
		p.outcome = outcome
	}

	if p.cfg.Encrypted {
		p.writer.InstallCipher(noise.TxCipher(p.outcome))
		p.reader.InstallCipher(noise.RxCipher(p.outcome))
	}

	logger.Debug("handshake complete", "initiator", p.cfg.IsInitiator)
	return p.outcome, nil
}

const (
	kindOpen    = 0
	kindClose   = 1
	kindRequest = 2
	kindData    = 3
)
