package geometry

import "testing"

func TestDiffLayouts(t *testing.T) {
	origin := FromBlocks([]Block{
		{ID: "a", Rect: Rect{0, 0, 3, 2}},
		{ID: "b", Rect: Rect{0, 2, 3, 2}},
		{ID: "gone", Rect: Rect{5, 0, 1, 1}},
	})
	next := FromBlocks([]Block{
		{ID: "a", Rect: Rect{0, 4, 3, 2}}, // moved down
		{ID: "b", Rect: Rect{0, 2, 3, 2}}, // unchanged
		{ID: "new", Rect: Rect{5, 0, 1, 1}},
	})

	diffs := DiffLayouts(origin, next)
	if len(diffs) != 1 {
		t.Fatalf("got %d diffs, want 1: %v", len(diffs), diffs)
	}
	d, ok := diffs["a"]
	if !ok {
		t.Fatal("missing diff for moved block")
	}
	if d.Y == nil || *d.Y != 4 {
		t.Errorf("diff Y = %v, want 4", d.Y)
	}
	if d.X != nil || d.W != nil || d.H != nil {
		t.Errorf("unchanged fields should stay nil: %+v", d)
	}
}

func TestDiffMergeLastWriteWins(t *testing.T) {
	first := Diff{X: ptr(1), Y: ptr(2)}
	second := Diff{Y: ptr(9), W: ptr(4)}

	merged := first.Merge(second)
	if *merged.X != 1 || *merged.Y != 9 || *merged.W != 4 || merged.H != nil {
		t.Errorf("Merge = %+v, want x:1 y:9 w:4", merged)
	}

	// Inputs untouched.
	if *first.Y != 2 {
		t.Error("Merge mutated its receiver")
	}
}

func TestDiffFillKeepsNewerFields(t *testing.T) {
	newer := Diff{Y: ptr(9)}
	failed := Diff{X: ptr(1), Y: ptr(2)}

	out := newer.Fill(failed)
	if *out.X != 1 {
		t.Errorf("Fill should recover X from the failed diff, got %v", out.X)
	}
	if *out.Y != 9 {
		t.Errorf("Fill must not clobber the newer Y, got %d", *out.Y)
	}
}

func TestDiffApplyTo(t *testing.T) {
	r := Rect{X: 1, Y: 1, W: 3, H: 3}
	d := Diff{Y: ptr(5), H: ptr(2)}
	got := d.ApplyTo(r)
	want := Rect{X: 1, Y: 5, W: 3, H: 2}
	if got != want {
		t.Errorf("ApplyTo = %v, want %v", got, want)
	}
	if (Diff{}).ApplyTo(r) != r {
		t.Error("zero diff should be a no-op")
	}
}
