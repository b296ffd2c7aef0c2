// Package reflow turns a candidate, possibly overlapping layout into a
// corrected non-overlapping one by vertical compaction.
//
// The algorithm only ever pushes blocks down. Pushing sideways or up would
// discard the horizontal intent of the drag gesture that produced the
// candidate, so a block's X, W and H are never altered and Y never
// decreases. This is a deliberate simplification over full bin packing.
package reflow

import (
	"sort"

	"github.com/blockboard/blockboard/pkg/geometry"
)

// Compact returns a corrected copy of l in which no two blocks overlap.
//
// Blocks are stably sorted by (Y ascending, X ascending) and walked in
// order; each block whose top edge lies above the bottom edge of any
// already-placed block it collides with is pushed down until it clears.
//
// Compact is deterministic for a fixed input ordering and idempotent:
// Compact(Compact(l)) == Compact(l).
func Compact(l geometry.Layout) geometry.Layout {
	return compact(l, "")
}

// CompactActive is Compact with the identified block given priority over
// blocks that share its row. A block dropped exactly onto a resident then
// keeps the drop point and the resident is pushed below it; with plain
// input-order ties the drop itself would snap under the resident. An empty
// or unknown id behaves like Compact.
func CompactActive(l geometry.Layout, activeID string) geometry.Layout {
	return compact(l, activeID)
}

func compact(l geometry.Layout, activeID string) geometry.Layout {
	blocks := l.Blocks()

	order := make([]int, len(blocks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ba, bb := blocks[order[a]], blocks[order[b]]
		if ba.Rect.Y != bb.Rect.Y {
			return ba.Rect.Y < bb.Rect.Y
		}
		// The active block wins its row so the gesture's drop point sticks.
		if activeID != "" && (ba.ID == activeID) != (bb.ID == activeID) {
			return ba.ID == activeID
		}
		return ba.Rect.X < bb.Rect.X
	})

	// Walk in sort order; placed holds the blocks already settled. A block
	// is pushed below every settled block it collides with, repeating until
	// it is clear: a push can move it into a settled block it had already
	// passed over. Y only ever grows, so the loop terminates.
	placed := make([]geometry.Rect, 0, len(blocks))
	for _, idx := range order {
		r := blocks[idx].Rect
		for moved := true; moved; {
			moved = false
			for _, p := range placed {
				if geometry.Overlaps(r, p) {
					r.Y = p.Bottom()
					moved = true
				}
			}
		}
		blocks[idx].Rect = r
		placed = append(placed, r)
	}

	return geometry.FromBlocks(blocks)
}
