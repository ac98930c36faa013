package protocol

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/MODULUSREBUS/libdata/noise"
	"github.com/MODULUSREBUS/libdata/wire"
)

// Open begins opening a channel for discoveryKey: it allocates a local
// ID, sends an Open message (with a capability if enabled), and returns
// once the message has been written. The corresponding Open/DiscoveryKey
// event for the remote side's reply arrives later through Poll.
func (p *Protocol) Open(discoveryKey []byte, publicKey []byte) error {
	localID, _ := p.channels.AttachLocal(discoveryKey)

	var capability []byte
	if p.outcome != nil {
		var err error
		capability, err = noise.Capability(p.outcome, publicKey)
		if err != nil {
			return fmt.Errorf("protocol: open: %w", err)
		}
	}

	body := wire.Open{DiscoveryKey: discoveryKey, Capability: capability}.Marshal()
	return p.sendRaw(localID, kindOpen, body)
}

// Close sends a Close message for discoveryKey and locally clears the
// channel once the message is drained.
func (p *Protocol) Close(discoveryKey []byte) error {
	h, ok := p.channels.Get(discoveryKey)
	if !ok || h.LocalID == nil {
		return fmt.Errorf("protocol: close: %w", ErrNotConnected)
	}
	body := wire.Close{DiscoveryKey: discoveryKey}.Marshal()
	if err := p.sendRaw(*h.LocalID, kindClose, body); err != nil {
		return err
	}
	p.channels.Remove(discoveryKey)
	return nil
}

// SendRequest sends a Request message on an already-connected channel.
func (p *Protocol) SendRequest(discoveryKey []byte, req wire.Request) error {
	h, ok := p.channels.Get(discoveryKey)
	if !ok || !h.Connected() {
		return fmt.Errorf("protocol: request: %w", ErrNotConnected)
	}
	return p.sendRaw(*h.LocalID, kindRequest, req.Marshal())
}

// SendData sends a Data message on an already-connected channel.
func (p *Protocol) SendData(discoveryKey []byte, d wire.Data) error {
	h, ok := p.channels.Get(discoveryKey)
	if !ok || !h.Connected() {
		return fmt.Errorf("protocol: data: %w", ErrNotConnected)
	}
	return p.sendRaw(*h.LocalID, kindData, d.Marshal())
}

func (p *Protocol) sendRaw(channelID uint32, kind byte, body []byte) error {
	buf := make([]byte, 0, 5+len(body))
	var chBuf [4]byte
	binary.LittleEndian.PutUint32(chBuf[:], channelID)
	buf = append(buf, chBuf[:]...)
	buf = append(buf, kind)
	buf = append(buf, body...)
	return p.writer.WriteFrame(buf)
}

// PollInboundRead reads and processes exactly one inbound frame, queuing
// whatever events it produces. Canceling ctx unblocks a pending read and
// returns ctx's error.
func (p *Protocol) PollInboundRead(ctx context.Context) error {
	raw, err := p.readFrame(ctx)
	if err != nil {
		return fmt.Errorf("protocol: poll inbound: %w", err)
	}
	return p.onInboundMessage(raw)
}

func (p *Protocol) onInboundMessage(raw []byte) error {
	if len(raw) < 5 {
		return fmt.Errorf("protocol: %w: short message frame", ErrUnknownChannel)
	}
	remoteID := binary.LittleEndian.Uint32(raw[:4])
	kind := raw[4]
	body := raw[5:]

	if remoteID == 0 {
		return nil // reserved for stream-level extensions; ignored for now
	}

	switch kind {
	case kindOpen:
		o, err := wire.UnmarshalOpen(body)
		if err != nil {
			return fmt.Errorf("protocol: open: %w", err)
		}
		return p.onOpen(remoteID, o)
	case kindClose:
		c, err := wire.UnmarshalClose(body)
		if err != nil {
			return fmt.Errorf("protocol: close: %w", err)
		}
		return p.onClose(remoteID, c)
	case kindRequest:
		req, err := wire.UnmarshalRequest(body)
		if err != nil {
			return fmt.Errorf("protocol: request: %w", err)
		}
		return p.onRequestOrData(remoteID, EventMessage, MessageRequest, req, wire.Data{})
	case kindData:
		d, err := wire.UnmarshalData(body)
		if err != nil {
			return fmt.Errorf("protocol: data: %w", err)
		}
		return p.onRequestOrData(remoteID, EventMessage, MessageData, wire.Request{}, d)
	default:
		return fmt.Errorf("protocol: %w: unknown kind %d", ErrUnknownChannel, kind)
	}
}

func (p *Protocol) onOpen(remoteID uint32, o wire.Open) error {
	h := p.channels.AttachRemote(o.DiscoveryKey, remoteID)
	if h.Connected() {
		// Capability verification needs the public key for this discovery
		// key, which the caller holds (we don't); VerifyOpen lets it check
		// the capability before trusting the channel.
		p.queueEvent(Event{Kind: EventOpen, DiscoveryKey: o.DiscoveryKey, Capability: o.Capability})
	} else {
		p.queueEvent(Event{Kind: EventDiscoveryKey, DiscoveryKey: o.DiscoveryKey})
	}
	return nil
}

func (p *Protocol) onClose(remoteID uint32, c wire.Close) error {
	h, ok := p.channels.GetByRemoteID(remoteID)
	if !ok {
		return nil
	}
	if string(h.DiscoveryKey) != string(c.DiscoveryKey) {
		return nil
	}
	p.channels.Remove(c.DiscoveryKey)
	p.queueEvent(Event{Kind: EventClose, DiscoveryKey: c.DiscoveryKey})
	return nil
}

func (p *Protocol) onRequestOrData(remoteID uint32, kind EventKind, mkind MessageKind, req wire.Request, data wire.Data) error {
	h, ok := p.channels.GetByRemoteID(remoteID)
	if !ok {
		return fmt.Errorf("protocol: %w: remote id %d", ErrUnknownChannel, remoteID)
	}
	p.queueEvent(Event{Kind: kind, DiscoveryKey: h.DiscoveryKey, MsgKind: mkind, Request: req, Data: data})
	return nil
}

func (p *Protocol) queueEvent(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

// Poll pops and returns exactly one queued event. ok is false if none are
// queued.
func (p *Protocol) Poll() (Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return Event{}, false
	}
	e := p.events[0]
	p.events = p.events[1:]
	return e, true
}

// VerifyOpen checks the remote capability carried by an EventOpen against
// the expected public key, when capabilities are enabled (Noise on). It
// is a no-op success when Noise is disabled.
func (p *Protocol) VerifyOpen(discoveryKey []byte, publicKey []byte, capability []byte) bool {
	if p.outcome == nil {
		return true
	}
	return noise.VerifyRemoteCapability(p.outcome, publicKey, capability)
}
