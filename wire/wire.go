// Package wire defines the Protobuf message bodies carried by datacore's
// replication protocol (NoisePayload during handshake; Open/Close/Request/
// Data during the main stage). Messages are marshaled and unmarshaled by
// hand against the low-level protowire encoder rather than through
// generated code, since no .proto toolchain runs as part of this build.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers, matching the single shared .proto schema these types are
// hand-marshaled against.
const (
	fieldNoisePayloadNonce = 1

	fieldOpenDiscoveryKey = 1
	fieldOpenCapability   = 2

	fieldCloseDiscoveryKey = 1

	fieldRequestIndex = 1

	fieldDataIndex         = 1
	fieldDataData          = 2
	fieldDataDataSignature = 3
	fieldDataTreeSignature = 4
)

// NoisePayload carries the locally generated nonce exchanged on each
// handshake flight.
type NoisePayload struct {
	Nonce []byte
}

// Marshal encodes p to its Protobuf wire form.
func (p NoisePayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldNoisePayloadNonce, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Nonce)
	return b
}

// UnmarshalNoisePayload decodes a NoisePayload from its Protobuf wire form.
func UnmarshalNoisePayload(b []byte) (NoisePayload, error) {
	var out NoisePayload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("wire: noise payload: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldNoisePayloadNonce && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("wire: noise payload nonce: %w", protowire.ParseError(n))
			}
			out.Nonce = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return out, fmt.Errorf("wire: noise payload: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return out, nil
}

// Open is the channel-open message: a discovery key and an optional
// capability proving possession of the underlying public key.
type Open struct {
	DiscoveryKey []byte
	Capability   []byte // nil if capabilities are disabled
}

// Marshal encodes o to its Protobuf wire form.
func (o Open) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOpenDiscoveryKey, protowire.BytesType)
	b = protowire.AppendBytes(b, o.DiscoveryKey)
	if o.Capability != nil {
		b = protowire.AppendTag(b, fieldOpenCapability, protowire.BytesType)
		b = protowire.AppendBytes(b, o.Capability)
	}
	return b
}

// UnmarshalOpen decodes an Open from its Protobuf wire form.
func UnmarshalOpen(b []byte) (Open, error) {
	var out Open
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("wire: open: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldOpenDiscoveryKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("wire: open discovery_key: %w", protowire.ParseError(n))
			}
			out.DiscoveryKey = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldOpenCapability && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("wire: open capability: %w", protowire.ParseError(n))
			}
			out.Capability = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return out, fmt.Errorf("wire: open: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return out, nil
}

// Close is the channel-close message.
type Close struct {
	DiscoveryKey []byte
}

// Marshal encodes c to its Protobuf wire form.
func (c Close) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldCloseDiscoveryKey, protowire.BytesType)
	b = protowire.AppendBytes(b, c.DiscoveryKey)
	return b
}

// UnmarshalClose decodes a Close from its Protobuf wire form.
func UnmarshalClose(b []byte) (Close, error) {
	var out Close
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("wire: close: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if num == fieldCloseDiscoveryKey && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("wire: close discovery_key: %w", protowire.ParseError(n))
			}
			out.DiscoveryKey = append([]byte(nil), v...)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return out, fmt.Errorf("wire: close: %w", protowire.ParseError(n))
		}
		b = b[n:]
	}
	return out, nil
}

// Request asks the remote for the block at Index.
type Request struct {
	Index uint32
}

// Marshal encodes r to its Protobuf wire form.
func (r Request) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRequestIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Index))
	return b
}

// UnmarshalRequest decodes a Request from its Protobuf wire form.
func UnmarshalRequest(b []byte) (Request, error) {
	var out Request
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("wire: request: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if num == fieldRequestIndex && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return out, fmt.Errorf("wire: request index: %w", protowire.ParseError(n))
			}
			out.Index = uint32(v)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return out, fmt.Errorf("wire: request: %w", protowire.ParseError(n))
		}
		b = b[n:]
	}
	return out, nil
}

// Data carries one verified block and its two signatures.
type Data struct {
	Index         uint32
	Payload       []byte
	DataSignature []byte
	TreeSignature []byte
}

// Marshal encodes d to its Protobuf wire form.
func (d Data) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldDataIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Index))
	b = protowire.AppendTag(b, fieldDataData, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Payload)
	b = protowire.AppendTag(b, fieldDataDataSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, d.DataSignature)
	b = protowire.AppendTag(b, fieldDataTreeSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, d.TreeSignature)
	return b
}

// UnmarshalData decodes a Data from its Protobuf wire form.
func UnmarshalData(b []byte) (Data, error) {
	var out Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("wire: data: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldDataIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return out, fmt.Errorf("wire: data index: %w", protowire.ParseError(n))
			}
			out.Index = uint32(v)
			b = b[n:]
		case num == fieldDataData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("wire: data payload: %w", protowire.ParseError(n))
			}
			out.Payload = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldDataDataSignature && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("wire: data data_signature: %w", protowire.ParseError(n))
			}
			out.DataSignature = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldDataTreeSignature && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("wire: data tree_signature: %w", protowire.ParseError(n))
			}
			out.TreeSignature = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return out, fmt.Errorf("wire: data: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return out, nil
}
