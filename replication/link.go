package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MODULUSREBUS/libdata/internal/log"
	"github.com/MODULUSREBUS/libdata/protocol"
)

var logger = log.Module("link")

// CommandKind identifies a command sent to a running Link.
type CommandKind int

const (
	CommandOpen CommandKind = iota
	CommandReOpen
	CommandClose
	CommandQuit
)

// Command asks a running Link to open or close a channel, or to shut
// down entirely.
type Command struct {
	Kind         CommandKind
	DiscoveryKey []byte
	PublicKey    []byte
	Replica      Replica
}

// Link owns one Protocol session and the set of Replica policies attached
// to its open channels, pumping protocol events and external commands
// through a single loop.
type Link struct {
	proto *protocol.Protocol

	mu       sync.Mutex
	replicas map[string]Replica
	keys     map[string][]byte // discovery key -> public key, for capability checks

	commands chan Command
}

// NewLink creates a Link over an already-handshaken Protocol.
func NewLink(proto *protocol.Protocol) *Link {
	return &Link{
		proto:    proto,
		replicas: make(map[string]Replica),
		keys:     make(map[string][]byte),
		commands: make(chan Command, 16),
	}
}

// Commands returns the channel used to send this Link commands.
func (l *Link) Commands() chan<- Command { return l.commands }

// Run drives the Link's event loop until ctx is canceled, the underlying
// Protocol errors, or a CommandQuit is received. On any termination path
// it invokes OnClose on every attached replica first.
func (l *Link) Run(ctx context.Context) error {
	inbound := make(chan error, 1)
	go l.pumpInbound(ctx, inbound)

	for {
		select {
		case <-ctx.Done():
			return l.shutdown(ctx, ctx.Err())

		case err := <-inbound:
			if err != nil {
				return l.shutdown(ctx, err)
			}
			// Restart the pump before handling events so a read is always
			// pending: event handlers block on writes, and with both peers
			// writing at once neither side would otherwise be reading.
			go l.pumpInbound(ctx, inbound)
			if err := l.drainEvents(ctx); err != nil {
				return l.shutdown(ctx, err)
			}

		case cmd := <-l.commands:
			if cmd.Kind == CommandQuit {
				return l.shutdown(ctx, nil)
			}
			if err := l.handleCommand(ctx, cmd); err != nil {
				return l.shutdown(ctx, err)
			}
		}
	}
}

func (l *Link) pumpInbound(ctx context.Context, out chan<- error) {
	out <- l.proto.PollInboundRead(ctx)
}

func (l *Link) handleCommand(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandOpen:
		l.mu.Lock()
		l.replicas[string(cmd.DiscoveryKey)] = cmd.Replica
		l.keys[string(cmd.DiscoveryKey)] = cmd.PublicKey
		l.mu.Unlock()
		if err := l.proto.Open(cmd.DiscoveryKey, cmd.PublicKey); err != nil {
			return fmt.Errorf("link: open: %w", err)
		}
		return nil
	case CommandReOpen:
		// Kick an already-attached replica's sync loop again, e.g. after
		// the local Core grew and the channel went quiet.
		return l.replicaOnOpen(ctx, cmd.DiscoveryKey)
	case CommandClose:
		if err := l.proto.Close(cmd.DiscoveryKey); err != nil {
			return fmt.Errorf("link: close: %w", err)
		}
		return l.replicaOnClose(ctx, cmd.DiscoveryKey)
	default:
		return fmt.Errorf("link: unknown command kind %d", cmd.Kind)
	}
}

func (l *Link) drainEvents(ctx context.Context) error {
	for {
		ev, ok := l.proto.Poll()
		if !ok {
			return nil
		}
		if err := l.handleEvent(ctx, ev); err != nil {
			return err
		}
	}
}

func (l *Link) handleEvent(ctx context.Context, ev protocol.Event) error {
	switch ev.Kind {
	case protocol.EventDiscoveryKey:
		// Nothing to do until our own Open arrives for this key; a real
		// deployment would consult a discovery-hook here to decide
		// whether to open it. Out of scope for this implementation.
		return nil

	case protocol.EventOpen:
		l.mu.Lock()
		pub := l.keys[string(ev.DiscoveryKey)]
		l.mu.Unlock()
		if pub != nil && !l.proto.VerifyOpen(ev.DiscoveryKey, pub, ev.Capability) {
			return fmt.Errorf("link: open: capability verification failed for %x", ev.DiscoveryKey)
		}
		return l.replicaOnOpen(ctx, ev.DiscoveryKey)

	case protocol.EventClose:
		return l.replicaOnClose(ctx, ev.DiscoveryKey)

	case protocol.EventMessage:
		return l.replicaOnMessage(ctx, ev)

	default:
		return fmt.Errorf("link: unknown event kind %d", ev.Kind)
	}
}

func (l *Link) replicaFor(discoveryKey []byte) (Replica, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.replicas[string(discoveryKey)]
	return r, ok
}

func (l *Link) replicaOnOpen(ctx context.Context, discoveryKey []byte) error {
	r, ok := l.replicaFor(discoveryKey)
	if !ok {
		return nil
	}
	req, err := r.OnOpen(ctx)
	if err != nil {
		return fmt.Errorf("link: replica on_open: %w", err)
	}
	if req != nil {
		return l.proto.SendRequest(discoveryKey, *req)
	}
	return nil
}

func (l *Link) replicaOnMessage(ctx context.Context, ev protocol.Event) error {
	r, ok := l.replicaFor(ev.DiscoveryKey)
	if !ok {
		return nil
	}
	switch ev.MsgKind {
	case protocol.MessageRequest:
		req, data, err := r.OnRequest(ctx, ev.Request)
		if err != nil {
			return fmt.Errorf("link: replica on_request: %w", err)
		}
		if data != nil {
			return l.proto.SendData(ev.DiscoveryKey, *data)
		}
		if req != nil {
			return l.proto.SendRequest(ev.DiscoveryKey, *req)
		}
		return nil
	case protocol.MessageData:
		req, err := r.OnData(ctx, ev.Data)
		if err != nil {
			return fmt.Errorf("link: replica on_data: %w", err)
		}
		if req != nil {
			return l.proto.SendRequest(ev.DiscoveryKey, *req)
		}
		return nil
	default:
		return fmt.Errorf("link: unknown message kind %d", ev.MsgKind)
	}
}

func (l *Link) replicaOnClose(ctx context.Context, discoveryKey []byte) error {
	r, ok := l.replicaFor(discoveryKey)
	if !ok {
		return nil
	}
	l.mu.Lock()
	delete(l.replicas, string(discoveryKey))
	delete(l.keys, string(discoveryKey))
	l.mu.Unlock()
	if err := r.OnClose(ctx); err != nil {
		return fmt.Errorf("link: replica on_close: %w", err)
	}
	return nil
}

func (l *Link) shutdown(ctx context.Context, cause error) error {
	l.mu.Lock()
	keys := make([]string, 0, len(l.replicas))
	for k := range l.replicas {
		keys = append(keys, k)
	}
	l.mu.Unlock()

	var firstErr error
	for _, k := range keys {
		if err := l.replicaOnClose(ctx, []byte(k)); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if cause != nil && !errors.Is(cause, context.Canceled) {
		logger.Warn("link terminated", "error", cause)
		return cause
	}
	return firstErr
}
