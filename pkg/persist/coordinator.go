// Package persist debounces, batches, and commits geometry diffs to a
// host-supplied store.
//
// The coordinator accepts diffs at any rate, coalesces them per block with
// last-write-wins field semantics, and ships them as a single grouped batch
// once the debounce window has been quiet. Exactly one batch is in flight
// at a time; edits arriving during a flight accumulate into the next batch,
// which leaves only after the in-flight one resolves. A failed commit never
// loses diffs: they fold back into the accumulator underneath anything
// newer and ride along with the next flush. There is no internal retry
// loop; the next Schedule or an explicit Flush re-attempts the commit.
package persist

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/observability"
)

// DefaultWindow is the canonical debounce window. The builders this engine
// consolidates used anything between 300ms and 800ms; 400ms sits inside
// every observed window and is quiet enough to coalesce a burst of drops.
const DefaultWindow = 400 * time.Millisecond

// Batch is the set of diffs captured when a debounce window elapsed,
// tagged with a monotonically increasing generation number. Batches reach
// the store in generation order.
type Batch struct {
	Generation uint64                   `json:"generation" bson:"generation"`
	Diffs      map[string]geometry.Diff `json:"diffs" bson:"diffs"`
}

// CommitFunc persists one batch to the remote store. It is treated as an
// opaque asynchronous boundary: the coordinator never inspects the store,
// only the returned error. Implementations should bound their own runtime
// (see store.WithTimeout); the coordinator imposes no timeout itself.
type CommitFunc func(ctx context.Context, batch Batch) error

// StatusFunc observes save-status transitions. err is non-nil only for
// StatusError. Called outside the coordinator's lock.
type StatusFunc func(status Status, err error)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWindow overrides the debounce window.
func WithWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithLogger attaches a logger for flush lifecycle events.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithStatusFunc registers a save-status observer.
func WithStatusFunc(fn StatusFunc) Option {
	return func(c *Coordinator) { c.onStatus = fn }
}

// WithContext sets the context passed to commit calls. Cancelling it makes
// in-flight and future commits fail with the context's error.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) { c.ctx = ctx }
}

// Coordinator owns the accumulator, the debounce timer, and the in-flight
// state. All methods are safe for concurrent use; Schedule in particular
// is re-entrant while a flush is outstanding.
type Coordinator struct {
	commit   CommitFunc
	window   time.Duration
	logger   *log.Logger
	ctx      context.Context
	onStatus StatusFunc

	mu         sync.Mutex
	acc        map[string]geometry.Diff
	timer      *time.Timer
	inFlight   bool
	awaitFlush bool // the window elapsed (or Flush was called) during a flight
	generation uint64
	lastErr    error
	lastStatus Status
	stopped    bool

	flights sync.WaitGroup
}

// New creates a coordinator around the given commit function.
func New(commit CommitFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		commit: commit,
		window: DefaultWindow,
		ctx:    context.Background(),
		acc:    make(map[string]geometry.Diff),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schedule merges diffs into the accumulator (last write wins per field)
// and restarts the debounce window. An in-flight flush is not disturbed;
// the merged diffs form the next batch. Scheduling also clears a previous
// commit error: the retained diffs are now on their way again.
func (c *Coordinator) Schedule(diffs map[string]geometry.Diff) {
	if len(diffs) == 0 {
		return
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	for id, d := range diffs {
		c.acc[id] = c.acc[id].Merge(d)
	}
	c.lastErr = nil
	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.onWindowElapsed)
	} else {
		c.timer.Stop()
		c.timer.Reset(c.window)
	}
	notify := c.statusChangeLocked()
	c.mu.Unlock()

	observability.Persist().OnSchedule(c.ctx, len(diffs))
	notify()
}

// Drop purges any pending diffs for a deleted block. Diffs already in
// flight cannot be recalled; the store is expected to tolerate writes for
// rows it no longer has.
func (c *Coordinator) Drop(blockID string) {
	c.mu.Lock()
	delete(c.acc, blockID)
	notify := c.statusChangeLocked()
	c.mu.Unlock()
	notify()
}

// Flush forces an immediate flush without waiting for the debounce window.
// This is the host-triggered retry path after a commit error. If a batch
// is already in flight, the flush happens as soon as it resolves.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	notify := c.flushLocked()
	c.mu.Unlock()
	notify()
}

// Status returns the current save-status signal and, for StatusError, the
// error from the last commit.
func (c *Coordinator) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(), c.lastErr
}

// Settled reports whether nothing is pending, in flight, or waiting on a
// deferred flush. The reconciliation guard only admits external layouts
// while the coordinator is settled.
func (c *Coordinator) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acc) == 0 && !c.inFlight && !c.awaitFlush
}

// Stop halts the debounce timer and refuses further schedules, then waits
// for an in-flight commit to resolve. Accumulated diffs are not flushed;
// call Flush first for a graceful drain.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	c.flights.Wait()
}

// onWindowElapsed fires when the debounce window has been quiet.
func (c *Coordinator) onWindowElapsed() {
	c.mu.Lock()
	notify := c.flushLocked()
	c.mu.Unlock()
	notify()
}

// flushLocked captures the accumulator as a batch and launches the commit.
// Must be called with c.mu held; returns the status notification to run
// after unlocking.
func (c *Coordinator) flushLocked() func() {
	if c.stopped {
		return func() {}
	}
	if c.inFlight {
		// One batch in flight at a time: remember that a window elapsed so
		// the next batch leaves as soon as the current one resolves.
		c.awaitFlush = true
		return c.statusChangeLocked()
	}
	if len(c.acc) == 0 {
		c.awaitFlush = false
		return c.statusChangeLocked()
	}

	c.generation++
	batch := Batch{Generation: c.generation, Diffs: c.acc}
	c.acc = make(map[string]geometry.Diff)
	c.inFlight = true
	c.awaitFlush = false

	c.flights.Add(1)
	go c.runCommit(batch)

	return c.statusChangeLocked()
}

// runCommit performs the store round-trip for one batch and folds the
// outcome back into coordinator state.
func (c *Coordinator) runCommit(batch Batch) {
	defer c.flights.Done()

	observability.Persist().OnFlushStart(c.ctx, batch.Generation, len(batch.Diffs))
	start := time.Now()
	err := c.commit(c.ctx, batch)
	observability.Persist().OnFlushComplete(c.ctx, batch.Generation, time.Since(start), err)

	c.mu.Lock()
	c.inFlight = false

	var followUp func()
	if err != nil {
		// Keep the failed diffs pending. Anything scheduled while the batch
		// was in flight is newer and wins field by field.
		for id, d := range batch.Diffs {
			c.acc[id] = c.acc[id].Fill(d)
		}
		c.lastErr = err
		// Deliberately no retry here: the next Schedule or Flush re-attempts.
		c.awaitFlush = false
		if c.logger != nil {
			c.logger.Error("commit failed", "generation", batch.Generation, "diffs", len(batch.Diffs), "err", err)
		}
	} else {
		c.lastErr = nil
		if c.logger != nil {
			c.logger.Debug("batch confirmed", "generation", batch.Generation, "diffs", len(batch.Diffs))
		}
		if c.awaitFlush {
			// A window elapsed mid-flight; release the waiting batch now.
			followUp = c.flushLocked()
		}
	}
	notify := c.statusChangeLocked()
	c.mu.Unlock()

	if followUp != nil {
		followUp()
	}
	notify()
}

// statusLocked derives the status signal from coordinator state.
func (c *Coordinator) statusLocked() Status {
	switch {
	case c.inFlight:
		return StatusSaving
	case c.lastErr != nil:
		return StatusError
	case len(c.acc) > 0 || c.awaitFlush:
		return StatusPending
	default:
		return StatusIdle
	}
}

// statusChangeLocked compares the derived status against the last emitted
// one and returns a closure that notifies the observer outside the lock.
func (c *Coordinator) statusChangeLocked() func() {
	status := c.statusLocked()
	if status == c.lastStatus || c.onStatus == nil {
		c.lastStatus = status
		return func() {}
	}
	c.lastStatus = status
	err := c.lastErr
	fn := c.onStatus
	return func() { fn(status, err) }
}
