// Package replication implements the Link replication runner and the
// CoreReplica synchronization policy: eager, sequential, from-zero-forward
// replication of one Core over a Protocol session.
package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MODULUSREBUS/libdata/block"
	"github.com/MODULUSREBUS/libdata/core"
	"github.com/MODULUSREBUS/libdata/wire"
)

// ErrUnsynced is returned by CoreReplica.OnClose when the remote
// advertised more blocks than this side ever received.
var ErrUnsynced = errors.New("replication: closed before fully synced")

// Replica is the callback contract the Link drives per channel.
type Replica interface {
	OnOpen(ctx context.Context) (*wire.Request, error)
	OnRequest(ctx context.Context, req wire.Request) (*wire.Request, *wire.Data, error)
	OnData(ctx context.Context, data wire.Data) (*wire.Request, error)
	OnClose(ctx context.Context) error
}

// CoreReplica implements the reference synchronization policy against one
// Core: request sequentially from 0, verify and append whatever Data
// arrives, and keep requesting until caught up.
type CoreReplica struct {
	mu sync.Mutex

	core  *core.Core
	nudge bool // if true, on_request may reply with our own next Request

	remoteIndex uint32
}

// NewCoreReplica creates a CoreReplica over c. Nudge defaults to true,
// matching the reference policy; set it false for strict single-block
// request/response semantics.
func NewCoreReplica(c *core.Core) *CoreReplica {
	return &CoreReplica{core: c, nudge: true}
}

// SetNudge overrides the nudge behavior (see NewCoreReplica).
func (r *CoreReplica) SetNudge(v bool) { r.nudge = v }

// OnOpen requests the block at our current length, kicking off sync.
func (r *CoreReplica) OnOpen(ctx context.Context) (*wire.Request, error) {
	return &wire.Request{Index: r.core.Len()}, nil
}

// OnRequest records what the remote claims to have and, if we already
// hold the requested block, replies with it; otherwise, if nudging is
// enabled and we believe the remote is ahead of us, nudge with our own
// next request.
func (r *CoreReplica) OnRequest(ctx context.Context, req wire.Request) (*wire.Request, *wire.Data, error) {
	r.mu.Lock()
	if req.Index > r.remoteIndex {
		r.remoteIndex = req.Index
	}
	r.mu.Unlock()

	localLen := r.core.Len()
	if req.Index < localLen {
		data, sig, err := r.core.Get(ctx, req.Index)
		if err != nil {
			return nil, nil, fmt.Errorf("replication: on_request: %w", err)
		}
		return nil, &wire.Data{
			Index:         req.Index,
			Payload:       data,
			DataSignature: sig.Data,
			TreeSignature: sig.Tree,
		}, nil
	}

	if r.nudge && r.remoteIndex > localLen && uint64(localLen) < core.MaxCoreLength {
		return &wire.Request{Index: localLen}, nil, nil
	}
	return nil, nil, nil
}

// OnData verifies and appends in-order Data, replying with a Request for
// the next index (unless the Core is at capacity); out-of-order Data
// triggers a realigning Request for our current length instead.
func (r *CoreReplica) OnData(ctx context.Context, data wire.Data) (*wire.Request, error) {
	localLen := r.core.Len()
	if data.Index != localLen {
		return &wire.Request{Index: localLen}, nil
	}

	sig := block.Signature{Data: data.DataSignature, Tree: data.TreeSignature}
	if err := r.core.Append(ctx, data.Payload, &sig); err != nil {
		return nil, fmt.Errorf("replication: on_data: %w", err)
	}

	next := localLen + 1
	if uint64(next) >= core.MaxCoreLength {
		return nil, nil
	}
	return &wire.Request{Index: next}, nil
}

// OnClose fails if the remote advertised more blocks than we ever
// received.
func (r *CoreReplica) OnClose(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.core.Len() < r.remoteIndex {
		return fmt.Errorf("%w: have %d, remote advertised %d", ErrUnsynced, r.core.Len(), r.remoteIndex)
	}
	return nil
}
