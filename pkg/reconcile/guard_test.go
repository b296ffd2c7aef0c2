package reconcile

import (
	"testing"

	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/session"
)

func layoutAt(y int) geometry.Layout {
	return geometry.FromBlocks([]geometry.Block{
		{ID: "a", Rect: geometry.Rect{X: 0, Y: y, W: 3, H: 2}},
	})
}

func TestRejectWhileEditing(t *testing.T) {
	local := layoutAt(0)
	candidate := layoutAt(5)

	for _, phase := range []session.Phase{session.Dragging, session.Resizing} {
		if got := Evaluate(phase, true, candidate, local, 0); got != Reject {
			t.Errorf("phase %v: got %v, want Reject", phase, got)
		}
	}

	// Even an identical candidate is rejected mid-edit; adopting it would
	// still have to interrupt the session bookkeeping.
	if got := Evaluate(session.Dragging, true, local, local, 0); got != Reject {
		t.Errorf("identical candidate mid-drag: got %v, want Reject", got)
	}
}

func TestRejectWhileUnsettled(t *testing.T) {
	local := layoutAt(0)
	candidate := layoutAt(5)

	if got := Evaluate(session.Idle, false, candidate, local, 0); got != Reject {
		t.Errorf("unsettled save: got %v, want Reject", got)
	}
}

func TestAdoptUnchangedWithinTolerance(t *testing.T) {
	local := layoutAt(0)

	if got := Evaluate(session.Idle, true, layoutAt(0), local, 0); got != AdoptUnchanged {
		t.Errorf("identical candidate: got %v, want AdoptUnchanged", got)
	}
	// One unit of drift is the host rounding its last confirmed write.
	if got := Evaluate(session.Idle, true, layoutAt(1), local, 1); got != AdoptUnchanged {
		t.Errorf("candidate within tolerance: got %v, want AdoptUnchanged", got)
	}
}

func TestReplaceWhenSettledAndDifferent(t *testing.T) {
	local := layoutAt(0)
	candidate := layoutAt(5)

	if got := Evaluate(session.Idle, true, candidate, local, 1); got != Replace {
		t.Errorf("settled external change: got %v, want Replace", got)
	}
	if !Replace.Adopted() || !AdoptUnchanged.Adopted() || Reject.Adopted() {
		t.Error("Adopted() must be true exactly for AdoptUnchanged and Replace")
	}
}

func TestReasons(t *testing.T) {
	if r := Reject.Reason(session.Dragging, true); r != "interaction in progress" {
		t.Errorf("reason = %q", r)
	}
	if r := Reject.Reason(session.Idle, false); r != "unconfirmed save in flight" {
		t.Errorf("reason = %q", r)
	}
	if r := Replace.Reason(session.Idle, true); r != "external change wins" {
		t.Errorf("reason = %q", r)
	}
}
