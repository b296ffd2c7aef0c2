package geometry

// Diff is a partial geometry delta for a single block: nil fields are
// untouched, non-nil fields carry the new value. Diffs are what the
// persistence layer ships to the store, so a drag that only changes Y does
// not rewrite the block's width.
type Diff struct {
	X *int `json:"x,omitempty" bson:"x,omitempty"`
	Y *int `json:"y,omitempty" bson:"y,omitempty"`
	W *int `json:"w,omitempty" bson:"w,omitempty"`
	H *int `json:"h,omitempty" bson:"h,omitempty"`
}

// IsZero reports whether the diff carries no fields.
func (d Diff) IsZero() bool {
	return d.X == nil && d.Y == nil && d.W == nil && d.H == nil
}

// Merge overlays next onto d, field by field. Fields set in next win;
// fields unset in next keep d's value. Neither input is mutated.
func (d Diff) Merge(next Diff) Diff {
	out := d
	if next.X != nil {
		out.X = next.X
	}
	if next.Y != nil {
		out.Y = next.Y
	}
	if next.W != nil {
		out.W = next.W
	}
	if next.H != nil {
		out.H = next.H
	}
	return out
}

// Fill returns a copy of d with every unset field taken from older; fields
// already set in d win. Used when a failed batch is folded back under
// edits that arrived while it was in flight.
func (d Diff) Fill(older Diff) Diff {
	out := d
	if out.X == nil {
		out.X = older.X
	}
	if out.Y == nil {
		out.Y = older.Y
	}
	if out.W == nil {
		out.W = older.W
	}
	if out.H == nil {
		out.H = older.H
	}
	return out
}

// ApplyTo returns r with the diff's set fields applied.
func (d Diff) ApplyTo(r Rect) Rect {
	if d.X != nil {
		r.X = *d.X
	}
	if d.Y != nil {
		r.Y = *d.Y
	}
	if d.W != nil {
		r.W = *d.W
	}
	if d.H != nil {
		r.H = *d.H
	}
	return r
}

// DiffLayouts computes per-block diffs turning origin into next. Blocks
// absent from either layout produce no diff: creation and deletion are
// separate store operations, not geometry deltas.
func DiffLayouts(origin, next Layout) map[string]Diff {
	diffs := make(map[string]Diff)
	for _, b := range next.blocks {
		prev, ok := origin.Get(b.ID)
		if !ok {
			continue
		}
		var d Diff
		if b.Rect.X != prev.Rect.X {
			d.X = ptr(b.Rect.X)
		}
		if b.Rect.Y != prev.Rect.Y {
			d.Y = ptr(b.Rect.Y)
		}
		if b.Rect.W != prev.Rect.W {
			d.W = ptr(b.Rect.W)
		}
		if b.Rect.H != prev.Rect.H {
			d.H = ptr(b.Rect.H)
		}
		if !d.IsZero() {
			diffs[b.ID] = d
		}
	}
	return diffs
}

func ptr(v int) *int { return &v }
