// Package session tracks a single in-progress drag or resize interaction
// and the user-visible working layout it produces.
//
// A session is an explicit finite-state machine:
//
//	Idle → Dragging → Idle
//	Idle → Resizing → Idle
//
// Move updates are synchronous and purely in-memory so the renderer always
// has an up-to-date working layout; nothing on this path blocks or touches
// the network. Ending the session runs reflow and yields the corrected
// layout together with the geometry diff against the layout the session
// started from.
package session

import (
	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/reflow"
)

// Phase is the interaction state of a session.
type Phase int

const (
	Idle Phase = iota
	Dragging
	Resizing
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	default:
		return "idle"
	}
}

// Kind selects the interaction flavour when a session begins.
type Kind int

const (
	KindDrag Kind = iota
	KindResize
)

// Session is the edit-session state machine. It is a plain value holder
// with no locking of its own; the controller that owns it serializes
// access.
type Session struct {
	phase   Phase
	target  string
	origin  geometry.Layout
	working geometry.Layout
}

// Phase returns the current interaction phase.
func (s *Session) Phase() Phase { return s.phase }

// Target returns the id of the block being manipulated, or "" when idle.
func (s *Session) Target() string { return s.target }

// Working returns the layout to render right now: the live working layout
// while an interaction is open, the origin layout otherwise.
func (s *Session) Working() geometry.Layout {
	if s.phase == Idle {
		return s.origin
	}
	return s.working
}

// Begin opens an interaction on blockID against the given authoritative
// layout. Beginning while a session is already open, or on a block the
// layout does not contain, is ignored and reports false.
func (s *Session) Begin(kind Kind, blockID string, layout geometry.Layout) bool {
	if s.phase != Idle {
		return false
	}
	if _, ok := layout.Get(blockID); !ok {
		return false
	}
	s.target = blockID
	s.origin = layout
	s.working = layout
	if kind == KindResize {
		s.phase = Resizing
	} else {
		s.phase = Dragging
	}
	return true
}

// Move applies a candidate rectangle for the target block to the working
// layout. The rectangle is clamped to the block's minimum size and the
// grid origin, so a violating candidate nudges rather than fails. Moves
// for any block other than the target, or outside an open session, are
// ignored.
func (s *Session) Move(blockID string, candidate geometry.Rect) {
	if s.phase == Idle || blockID != s.target {
		return
	}
	if s.phase == Dragging {
		// A drag carries position only; size stays as it was.
		cur, _ := s.working.Get(blockID)
		candidate.W = cur.Rect.W
		candidate.H = cur.Rect.H
	}
	s.working = s.working.WithRect(blockID, candidate)
}

// End closes the session: the working layout is compacted with the
// interaction's target keeping priority over residents of its row, the
// result is diffed against the origin, and the machine returns to Idle. The returned
// layout is the new authoritative layout; the diff map is empty when the
// interaction ended where it started.
func (s *Session) End() (geometry.Layout, map[string]geometry.Diff) {
	if s.phase == Idle {
		return s.origin, nil
	}
	corrected := reflow.CompactActive(s.working, s.target)
	diff := geometry.DiffLayouts(s.origin, corrected)
	s.phase = Idle
	s.target = ""
	s.origin = corrected
	s.working = geometry.Layout{}
	return corrected, diff
}

// Cancel abandons an open interaction and restores the origin layout.
func (s *Session) Cancel() geometry.Layout {
	s.phase = Idle
	s.target = ""
	s.working = geometry.Layout{}
	return s.origin
}

// Reset replaces the layout the session considers authoritative. Only legal
// while idle; the call is ignored during an open interaction.
func (s *Session) Reset(layout geometry.Layout) {
	if s.phase != Idle {
		return
	}
	s.origin = layout
}
