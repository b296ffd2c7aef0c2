// Package geometry defines the value types for block layouts: integer-grid
// rectangles, blocks, and layouts, plus the pure comparison and clamping
// operations the rest of the engine is built on.
//
// Every function in this package is total: invalid input is clamped to the
// nearest valid value, never rejected. Coordinates are grid units, not
// pixels; mapping grid units to pixels is the renderer's concern.
package geometry

// Size is a width/height pair in grid units.
type Size struct {
	W int `json:"w" bson:"w"`
	H int `json:"h" bson:"h"`
}

// Rect is an axis-aligned rectangle in grid units. X/Y is the top-left
// corner; Y grows downward, matching screen coordinates.
type Rect struct {
	X int `json:"x" bson:"x"`
	Y int `json:"y" bson:"y"`
	W int `json:"w" bson:"w"`
	H int `json:"h" bson:"h"`
}

// Right returns the exclusive right edge of the rectangle.
func (r Rect) Right() int { return r.X + r.W }

// Bottom returns the exclusive bottom edge of the rectangle.
func (r Rect) Bottom() int { return r.Y + r.H }

// Overlaps reports whether a and b overlap on both axes. Touching edges do
// not count: a block ending at x=3 and one starting at x=3 are adjacent,
// not overlapping.
func Overlaps(a, b Rect) bool {
	return a.X < b.Right() && b.X < a.Right() &&
		a.Y < b.Bottom() && b.Y < a.Bottom()
}

// Clamp returns r adjusted to the nearest valid rectangle: X and Y are
// raised to 0 and W/H are raised to min. A zero min still forces W/H to at
// least one grid unit so a block never collapses to nothing.
func Clamp(r Rect, min Size) Rect {
	r.X = max(r.X, 0)
	r.Y = max(r.Y, 0)
	r.W = max(r.W, min.W, 1)
	r.H = max(r.H, min.H, 1)
	return r
}

// Block is one rectangular element of a layout. Content is an opaque
// reference to whatever the block renders (a widget id, a query handle);
// the engine never interprets it.
type Block struct {
	ID      string `json:"id" bson:"id"`
	Rect    Rect   `json:"rect" bson:"rect"`
	MinSize Size   `json:"min_size,omitempty" bson:"min_size,omitempty"`
	Content string `json:"content,omitempty" bson:"content,omitempty"`
}

// Layout is an ordered collection of blocks for one breakpoint tier.
// Layouts are treated as values: operations return new layouts and never
// mutate their input.
type Layout struct {
	blocks []Block
}

// FromBlocks builds a layout from a block slice. The slice is copied and
// each rectangle is clamped against the block's MinSize, so a layout is
// valid by construction.
func FromBlocks(blocks []Block) Layout {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		b.Rect = Clamp(b.Rect, b.MinSize)
		out[i] = b
	}
	return Layout{blocks: out}
}

// Blocks returns a copy of the layout's blocks in order.
func (l Layout) Blocks() []Block {
	out := make([]Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Len returns the number of blocks in the layout.
func (l Layout) Len() int { return len(l.blocks) }

// Get returns the block with the given id.
func (l Layout) Get(id string) (Block, bool) {
	for _, b := range l.blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

// WithRect returns a copy of the layout with the identified block's
// rectangle replaced (clamped against the block's MinSize). If id is not
// present the layout is returned unchanged.
func (l Layout) WithRect(id string, r Rect) Layout {
	out := l.Blocks()
	for i := range out {
		if out[i].ID == id {
			out[i].Rect = Clamp(r, out[i].MinSize)
			break
		}
	}
	return Layout{blocks: out}
}

// Without returns a copy of the layout with the identified block removed.
func (l Layout) Without(id string) Layout {
	out := make([]Block, 0, len(l.blocks))
	for _, b := range l.blocks {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return Layout{blocks: out}
}

// Append returns a copy of the layout with b added at the end.
func (l Layout) Append(b Block) Layout {
	b.Rect = Clamp(b.Rect, b.MinSize)
	out := append(l.Blocks(), b)
	return Layout{blocks: out}
}

// MaxBottom returns the lowest occupied row edge, i.e. the largest
// Rect.Bottom() across all blocks. An empty layout has a bottom of 0.
// New blocks are appended at this row.
func (l Layout) MaxBottom() int {
	bottom := 0
	for _, b := range l.blocks {
		bottom = max(bottom, b.Rect.Bottom())
	}
	return bottom
}

// Equal reports whether a and b hold the same blocks (by id, order
// ignored) with every rectangle field within tolerance grid units. The
// tolerance absorbs rounding from a host's last confirmed write; pass 0
// for exact comparison. Layouts carrying duplicate block ids never
// compare equal.
func Equal(a, b Layout, tolerance int) bool {
	if len(a.blocks) != len(b.blocks) {
		return false
	}
	if tolerance < 0 {
		tolerance = 0
	}
	byID := make(map[string]Rect, len(b.blocks))
	for _, blk := range b.blocks {
		if _, dup := byID[blk.ID]; dup {
			return false
		}
		byID[blk.ID] = blk.Rect
	}
	for _, blk := range a.blocks {
		other, ok := byID[blk.ID]
		if !ok {
			return false
		}
		delete(byID, blk.ID)
		if !within(blk.Rect.X, other.X, tolerance) ||
			!within(blk.Rect.Y, other.Y, tolerance) ||
			!within(blk.Rect.W, other.W, tolerance) ||
			!within(blk.Rect.H, other.H, tolerance) {
			return false
		}
	}
	return true
}

func within(a, b, tolerance int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
