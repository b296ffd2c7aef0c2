// Package board provides the layout controller: the orchestrator that owns
// the authoritative layout for each breakpoint tier and wires interaction
// events through the edit session, the reflow pass, the persistence
// coordinator, and the reconciliation guard.
//
// The controller is the single writer of the authoritative layout. The
// session and the coordinator only ever produce proposed layouts or diffs;
// nothing else mutates layout state. A commit failure never corrupts the
// in-memory layout and never panics past the controller; it surfaces as a
// save-status signal.
package board

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/blockboard/blockboard/pkg/errors"
	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/observability"
	"github.com/blockboard/blockboard/pkg/persist"
	"github.com/blockboard/blockboard/pkg/reconcile"
	"github.com/blockboard/blockboard/pkg/reflow"
	"github.com/blockboard/blockboard/pkg/session"
)

// DefaultBreakpoint is the tier used when the host never names any.
const DefaultBreakpoint = "default"

// DefaultTolerance is the grid-unit slack used when comparing an external
// candidate against the local layout. One unit absorbs the rounding some
// hosts apply when they echo back the last confirmed write.
const DefaultTolerance = 1

// CommitFunc persists one batch for one breakpoint tier. It is the
// controller-level flavour of persist.CommitFunc.
type CommitFunc func(ctx context.Context, breakpoint string, batch persist.Batch) error

// StatusFunc observes save-status transitions per breakpoint tier.
type StatusFunc func(breakpoint string, status persist.Status, err error)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithWindow overrides the persistence debounce window.
func WithWindow(d time.Duration) Option {
	return func(c *Controller) { c.window = d }
}

// WithTolerance overrides the reconciliation comparison tolerance.
func WithTolerance(units int) Option {
	return func(c *Controller) {
		if units >= 0 {
			c.tolerance = units
		}
	}
}

// WithStatusFunc registers a save-status observer.
func WithStatusFunc(fn StatusFunc) Option {
	return func(c *Controller) { c.onStatus = fn }
}

// WithContext sets the context handed to commits.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.ctx = ctx }
}

// tier is the per-breakpoint state: the authoritative layout, the edit
// session working over it, and the coordinator saving it.
type tier struct {
	layout geometry.Layout
	sess   session.Session
	coord  *persist.Coordinator
}

// Controller orchestrates one board. All methods are safe for concurrent
// use.
type Controller struct {
	commit    CommitFunc
	logger    *log.Logger
	window    time.Duration
	tolerance int
	onStatus  StatusFunc
	ctx       context.Context

	mu     sync.Mutex
	active string
	tiers  map[string]*tier
}

// New creates a controller around the given commit function. The controller
// starts on DefaultBreakpoint with an empty layout.
func New(commit CommitFunc, opts ...Option) *Controller {
	c := &Controller{
		commit:    commit,
		window:    persist.DefaultWindow,
		tolerance: DefaultTolerance,
		ctx:       context.Background(),
		active:    DefaultBreakpoint,
		tiers:     make(map[string]*tier),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tiers[c.active] = c.newTier(c.active)
	return c
}

func (c *Controller) newTier(breakpoint string) *tier {
	t := &tier{}
	opts := []persist.Option{
		persist.WithWindow(c.window),
		persist.WithContext(c.ctx),
	}
	if c.logger != nil {
		opts = append(opts, persist.WithLogger(c.logger.With("breakpoint", breakpoint)))
	}
	if c.onStatus != nil {
		fn := c.onStatus
		opts = append(opts, persist.WithStatusFunc(func(s persist.Status, err error) {
			fn(breakpoint, s, err)
		}))
	}
	t.coord = persist.New(func(ctx context.Context, batch persist.Batch) error {
		return c.commit(ctx, breakpoint, batch)
	}, opts...)
	return t
}

// tierLocked returns the active tier. Must be called with c.mu held.
func (c *Controller) tierLocked() *tier {
	return c.tiers[c.active]
}

// Breakpoint returns the name of the active breakpoint tier.
func (c *Controller) Breakpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetBreakpoint switches the active tier, creating it on first use. An open
// interaction on the previous tier is cancelled: switching viewports mid
// drag drops the gesture, it does not commit half of one.
func (c *Controller) SetBreakpoint(name string) {
	if name == "" {
		name = DefaultBreakpoint
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == c.active {
		return
	}
	prev := c.tierLocked()
	if prev.sess.Phase() != session.Idle {
		prev.layout = prev.sess.Cancel()
	}
	if _, ok := c.tiers[name]; !ok {
		c.tiers[name] = c.newTier(name)
	}
	c.active = name
}

// Load replaces the named tier's layout wholesale, bypassing the guard.
// This is the initial-population path (e.g. store read at startup), not the
// refresh path; live refreshes go through ReceiveExternal.
func (c *Controller) Load(breakpoint string, blocks []geometry.Block) {
	if breakpoint == "" {
		breakpoint = DefaultBreakpoint
	}
	// Stored layouts are normally overlap-free; compacting on load repairs
	// anything a foreign writer left overlapping.
	layout := reflow.Compact(geometry.FromBlocks(blocks))
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tiers[breakpoint]
	if !ok {
		t = c.newTier(breakpoint)
		c.tiers[breakpoint] = t
	}
	if t.sess.Phase() != session.Idle {
		t.sess.Cancel()
	}
	t.layout = layout
	t.sess.Reset(layout)
}

// Layout returns the layout to render right now: the live working layout
// while an interaction is open, the authoritative layout otherwise.
func (c *Controller) Layout() geometry.Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tierLocked()
	if t.sess.Phase() != session.Idle {
		return t.sess.Working()
	}
	return t.layout
}

// Phase returns the active tier's interaction phase.
func (c *Controller) Phase() session.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tierLocked().sess.Phase()
}

// SaveStatus returns the active tier's save-status signal.
func (c *Controller) SaveStatus() (persist.Status, error) {
	c.mu.Lock()
	coord := c.tierLocked().coord
	c.mu.Unlock()
	return coord.Status()
}

// BeginInteraction opens a drag or resize on the identified block. Returns
// false if another interaction is open or the block does not exist.
func (c *Controller) BeginInteraction(kind session.Kind, blockID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tierLocked()
	return t.sess.Begin(kind, blockID, t.layout)
}

// MoveInteraction feeds a candidate rectangle into the open interaction.
// Synchronous and in-memory; this is the immediate-feedback path.
func (c *Controller) MoveInteraction(blockID string, candidate geometry.Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tierLocked().sess.Move(blockID, candidate)
}

// EndInteraction closes the open interaction: the working layout is
// compacted, becomes the new authoritative layout, and the geometry diff
// against the pre-interaction layout is handed to the coordinator.
func (c *Controller) EndInteraction() {
	c.mu.Lock()
	t := c.tierLocked()
	if t.sess.Phase() == session.Idle {
		c.mu.Unlock()
		return
	}
	start := time.Now()
	corrected, diff := t.sess.End()
	t.layout = corrected
	coord := t.coord
	c.mu.Unlock()

	observability.Layout().OnReflow(c.ctx, corrected.Len(), len(diff), time.Since(start))
	if len(diff) > 0 {
		coord.Schedule(diff)
	}
}

// CancelInteraction abandons the open interaction without persisting.
func (c *Controller) CancelInteraction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tierLocked()
	if t.sess.Phase() != session.Idle {
		t.layout = t.sess.Cancel()
	}
}

// AddBlock appends a block below the lowest occupied row and returns it.
// The new block's geometry is authoritative immediately; persisting the
// creation itself is the host's concern (creation is a store row, not a
// geometry diff).
func (c *Controller) AddBlock(content string, size, minSize geometry.Size) geometry.Block {
	b := geometry.Block{
		ID:      uuid.New().String(),
		MinSize: minSize,
		Content: content,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tierLocked()
	b.Rect = geometry.Clamp(geometry.Rect{X: 0, Y: t.layout.MaxBottom(), W: size.W, H: size.H}, minSize)
	t.layout = t.layout.Append(b)
	t.sess.Reset(t.layout)
	if c.logger != nil {
		c.logger.Debug("block added", "id", b.ID, "rect", b.Rect)
	}
	return b
}

// DeleteBlock removes a block and purges any pending diff that references
// it, so a deleted block can never resurrect through a late flush.
func (c *Controller) DeleteBlock(blockID string) error {
	c.mu.Lock()
	t := c.tierLocked()
	if _, ok := t.layout.Get(blockID); !ok {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeBlockNotFound, "no block %q on breakpoint %q", blockID, c.active)
	}
	if t.sess.Phase() != session.Idle && t.sess.Target() == blockID {
		t.layout = t.sess.Cancel()
	}
	t.layout = t.layout.Without(blockID)
	t.sess.Reset(t.layout)
	coord := t.coord
	c.mu.Unlock()

	coord.Drop(blockID)
	return nil
}

// ReceiveExternal routes a host-supplied authoritative block list through
// the reconciliation guard. The local layout is replaced only when nothing
// is being edited and nothing is pending or in flight; otherwise the
// candidate is dropped and the local layout stands.
func (c *Controller) ReceiveExternal(blocks []geometry.Block) reconcile.Decision {
	candidate := geometry.FromBlocks(blocks)

	c.mu.Lock()
	t := c.tierLocked()
	phase := t.sess.Phase()
	settled := t.coord.Settled()
	decision := reconcile.Evaluate(phase, settled, candidate, t.layout, c.tolerance)
	if decision.Adopted() {
		t.layout = candidate
		t.sess.Reset(candidate)
	}
	c.mu.Unlock()

	reason := decision.Reason(phase, settled)
	observability.Reconcile().OnDecision(c.ctx, decision.String(), reason)
	if c.logger != nil {
		c.logger.Debug("external layout evaluated", "decision", decision.String(), "reason", reason)
	}
	return decision
}

// Flush forces an immediate flush on the active tier; this is the explicit
// retry path after a commit error.
func (c *Controller) Flush() {
	c.mu.Lock()
	coord := c.tierLocked().coord
	c.mu.Unlock()
	coord.Flush()
}

// Settled reports whether the active tier has nothing pending or in flight.
func (c *Controller) Settled() bool {
	c.mu.Lock()
	coord := c.tierLocked().coord
	c.mu.Unlock()
	return coord.Settled()
}

// Stop halts every tier's coordinator and waits for in-flight commits.
func (c *Controller) Stop() {
	c.mu.Lock()
	coords := make([]*persist.Coordinator, 0, len(c.tiers))
	for _, t := range c.tiers {
		coords = append(coords, t.coord)
	}
	c.mu.Unlock()
	for _, coord := range coords {
		coord.Stop()
	}
}
