// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers register hooks
// at startup to receive events about reflow passes, persistence flushes,
// and reconciliation decisions.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This keeps the engine packages free of observability framework imports
// while still letting a host wire Prometheus, OpenTelemetry, or plain logs.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPersistHooks(&myPersistHooks{})
//	    // ... run application
//	}
//
// Engine packages call hooks to emit events:
//
//	observability.Persist().OnFlushStart(ctx, generation, len(batch.Diffs))
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Layout Hooks
// =============================================================================

// LayoutHooks receives events from layout computation.
type LayoutHooks interface {
	// OnReflow records a reflow pass over blockCount blocks, including how
	// many blocks the pass had to move.
	OnReflow(ctx context.Context, blockCount, movedCount int, duration time.Duration)
}

// =============================================================================
// Persist Hooks
// =============================================================================

// PersistHooks receives events from the persistence coordinator.
type PersistHooks interface {
	// OnSchedule records a diff entering the accumulator.
	OnSchedule(ctx context.Context, blockCount int)

	// OnFlushStart records a batch leaving for the store.
	OnFlushStart(ctx context.Context, generation uint64, diffCount int)

	// OnFlushComplete records the outcome of a commit.
	OnFlushComplete(ctx context.Context, generation uint64, duration time.Duration, err error)
}

// =============================================================================
// Reconcile Hooks
// =============================================================================

// ReconcileHooks receives reconciliation decisions for external layouts.
type ReconcileHooks interface {
	// OnDecision records whether an external candidate was adopted and why.
	OnDecision(ctx context.Context, decision string, reason string)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopLayoutHooks is a no-op implementation of LayoutHooks.
type NoopLayoutHooks struct{}

func (NoopLayoutHooks) OnReflow(context.Context, int, int, time.Duration) {}

// NoopPersistHooks is a no-op implementation of PersistHooks.
type NoopPersistHooks struct{}

func (NoopPersistHooks) OnSchedule(context.Context, int)                               {}
func (NoopPersistHooks) OnFlushStart(context.Context, uint64, int)                     {}
func (NoopPersistHooks) OnFlushComplete(context.Context, uint64, time.Duration, error) {}

// NoopReconcileHooks is a no-op implementation of ReconcileHooks.
type NoopReconcileHooks struct{}

func (NoopReconcileHooks) OnDecision(context.Context, string, string) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	layoutHooks    LayoutHooks    = NoopLayoutHooks{}
	persistHooks   PersistHooks   = NoopPersistHooks{}
	reconcileHooks ReconcileHooks = NoopReconcileHooks{}
	hooksMu        sync.RWMutex
)

// SetLayoutHooks registers custom layout hooks.
// This should be called once at application startup.
func SetLayoutHooks(h LayoutHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		layoutHooks = h
	}
}

// SetPersistHooks registers custom persistence hooks.
// This should be called once at application startup.
func SetPersistHooks(h PersistHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		persistHooks = h
	}
}

// SetReconcileHooks registers custom reconciliation hooks.
// This should be called once at application startup.
func SetReconcileHooks(h ReconcileHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		reconcileHooks = h
	}
}

// Layout returns the registered layout hooks.
func Layout() LayoutHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return layoutHooks
}

// Persist returns the registered persistence hooks.
func Persist() PersistHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return persistHooks
}

// Reconcile returns the registered reconciliation hooks.
func Reconcile() ReconcileHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return reconcileHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	layoutHooks = NoopLayoutHooks{}
	persistHooks = NoopPersistHooks{}
	reconcileHooks = NoopReconcileHooks{}
}
