// Package reconcile decides whether an externally supplied layout may
// overwrite the locally held one.
//
// The decision is a pure function of the edit phase, the save state, and
// the two layouts, so it can be unit-tested without a UI harness or a
// store. The rule is the engine's anti-flicker guarantee: nothing the user
// is actively editing, and nothing committed but not yet confirmed, is ever
// silently overwritten by a refresh racing the save round-trip. Once local
// state is settled, an external change always wins (last writer wins; there
// is deliberately no merge).
package reconcile

import (
	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/session"
)

// Decision is the outcome of evaluating an external candidate layout.
type Decision int

const (
	// Reject keeps the local layout: an edit is open or a save is unsettled.
	Reject Decision = iota

	// AdoptUnchanged adopts the candidate, which matches the local layout
	// within tolerance; the renderer sees no movement.
	AdoptUnchanged

	// Replace adopts the candidate, which differs from the local layout;
	// the external change wins.
	Replace
)

// String returns the lowercase decision name.
func (d Decision) String() string {
	switch d {
	case AdoptUnchanged:
		return "adopt-unchanged"
	case Replace:
		return "replace"
	default:
		return "reject"
	}
}

// Adopted reports whether the decision lets the candidate through.
func (d Decision) Adopted() bool { return d != Reject }

// Reason explains a decision, for logs and hooks.
func (d Decision) Reason(phase session.Phase, settled bool) string {
	switch {
	case phase != session.Idle:
		return "interaction in progress"
	case !settled:
		return "unconfirmed save in flight"
	case d == AdoptUnchanged:
		return "candidate matches local layout"
	default:
		return "external change wins"
	}
}

// Evaluate applies the decision procedure:
//
//  1. While an interaction is open, or while the coordinator holds pending
//     or in-flight diffs, the candidate is rejected outright.
//  2. Otherwise the candidate is adopted: AdoptUnchanged when it equals the
//     local layout within tolerance grid units (absorbing the host's
//     rounding of the last confirmed write), Replace when it differs.
func Evaluate(phase session.Phase, settled bool, candidate, local geometry.Layout, tolerance int) Decision {
	if phase != session.Idle || !settled {
		return Reject
	}
	if geometry.Equal(candidate, local, tolerance) {
		return AdoptUnchanged
	}
	return Replace
}
