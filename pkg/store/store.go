// Package store provides the persistence backends the coordinator commits
// geometry to, with implementations for different deployments:
//   - memory: in-process storage for development/testing
//   - redis: redis-backed storage for multi-instance deployments
//   - mongo: document storage for durable hosting
//
// # Data model
//
// A board holds one block list per breakpoint tier, together with a version
// counter. SaveGeometry applies a coordinator batch with optimistic
// concurrency: the write only lands if the version read at the start is
// still current, otherwise ErrStaleWrite is returned and resolving the
// conflict (force overwrite vs merge) is the caller's policy decision.
//
// Diffs that reference blocks the board no longer holds are skipped: a
// block deleted locally while its last geometry write was in flight must
// not resurrect.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/persist"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a board/breakpoint has never been written.
	ErrNotFound = errors.New("not found")

	// ErrStaleWrite is returned when a write targeted an outdated version of
	// the board document.
	ErrStaleWrite = errors.New("stale write")

	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the interface geometry persistence backends implement.
type Store interface {
	// SaveGeometry applies one coordinator batch to the identified
	// board/breakpoint. The batch's diffs land as a single grouped write;
	// atomicity of that grouped write is the backend's responsibility.
	SaveGeometry(ctx context.Context, boardID, breakpoint string, batch persist.Batch) error

	// LoadBlocks reads the stored block list.
	// Returns ErrNotFound if the board/breakpoint has never been written.
	LoadBlocks(ctx context.Context, boardID, breakpoint string) ([]geometry.Block, error)

	// ReplaceBlocks overwrites the stored block list wholesale. This is the
	// add/delete-block path; geometry edits go through SaveGeometry.
	ReplaceBlocks(ctx context.Context, boardID, breakpoint string, blocks []geometry.Block) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// applyBatch applies a batch's diffs to a block slice, skipping diffs for
// blocks that are gone. Shared by the backends; returns the new slice.
func applyBatch(blocks []geometry.Block, batch persist.Batch) []geometry.Block {
	out := make([]geometry.Block, len(blocks))
	copy(out, blocks)
	for i := range out {
		if d, ok := batch.Diffs[out[i].ID]; ok {
			out[i].Rect = geometry.Clamp(d.ApplyTo(out[i].Rect), out[i].MinSize)
		}
	}
	return out
}

// Commit adapts a Store to the controller's commit signature for one board.
func Commit(s Store, boardID string) func(ctx context.Context, breakpoint string, batch persist.Batch) error {
	return func(ctx context.Context, breakpoint string, batch persist.Batch) error {
		return s.SaveGeometry(ctx, boardID, breakpoint, batch)
	}
}

// WithTimeout wraps a commit function with a deadline. The coordinator
// itself never times commits out, and a commit that never resolves keeps
// external layouts locked out for the rest of the session, so hosts should
// bound every commit with this (or their own deadline).
func WithTimeout(commit func(ctx context.Context, breakpoint string, batch persist.Batch) error, d time.Duration) func(ctx context.Context, breakpoint string, batch persist.Batch) error {
	return func(ctx context.Context, breakpoint string, batch persist.Batch) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return commit(ctx, breakpoint, batch)
	}
}
