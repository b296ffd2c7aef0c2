package store

import (
	"context"
	"errors"
	"testing"

	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/persist"
)

func ptr(v int) *int { return &v }

func seedBlocks() []geometry.Block {
	return []geometry.Block{
		{ID: "a", Rect: geometry.Rect{X: 0, Y: 0, W: 3, H: 2}},
		{ID: "b", Rect: geometry.Rect{X: 0, Y: 2, W: 3, H: 2}, MinSize: geometry.Size{W: 2, H: 2}},
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.LoadBlocks(ctx, "board1", "default"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load of unwritten board = %v, want ErrNotFound", err)
	}

	if err := m.ReplaceBlocks(ctx, "board1", "default", seedBlocks()); err != nil {
		t.Fatalf("ReplaceBlocks: %v", err)
	}

	batch := persist.Batch{
		Generation: 1,
		Diffs: map[string]geometry.Diff{
			"a":    {Y: ptr(6)},
			"gone": {X: ptr(1)}, // deleted block: skipped, not resurrected
		},
	}
	if err := m.SaveGeometry(ctx, "board1", "default", batch); err != nil {
		t.Fatalf("SaveGeometry: %v", err)
	}

	blocks, err := m.LoadBlocks(ctx, "board1", "default")
	if err != nil {
		t.Fatalf("LoadBlocks: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].ID != "a" || blocks[0].Rect.Y != 6 {
		t.Errorf("block a = %+v, want y=6", blocks[0].Rect)
	}
	if blocks[1].Rect.Y != 2 {
		t.Errorf("block b moved unexpectedly: %+v", blocks[1].Rect)
	}
}

func TestMemoryGeometryClampedOnWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.ReplaceBlocks(ctx, "board1", "default", seedBlocks()); err != nil {
		t.Fatal(err)
	}

	// A hostile (or buggy) diff below min size is clamped, never stored raw.
	batch := persist.Batch{Generation: 1, Diffs: map[string]geometry.Diff{
		"b": {W: ptr(0), X: ptr(-4)},
	}}
	if err := m.SaveGeometry(ctx, "board1", "default", batch); err != nil {
		t.Fatal(err)
	}
	blocks, _ := m.LoadBlocks(ctx, "board1", "default")
	if blocks[1].Rect.W != 2 || blocks[1].Rect.X != 0 {
		t.Errorf("stored rect = %+v, want clamped to w=2 x=0", blocks[1].Rect)
	}
}

func TestMemoryFailureInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.ReplaceBlocks(ctx, "board1", "default", seedBlocks()); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	m.FailWith(boom)
	err := m.SaveGeometry(ctx, "board1", "default", persist.Batch{
		Generation: 1,
		Diffs:      map[string]geometry.Diff{"a": {X: ptr(1)}},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("SaveGeometry = %v, want injected failure", err)
	}

	m.FailWith(nil)
	// The failed write left the stored layout untouched.
	blocks, err := m.LoadBlocks(ctx, "board1", "default")
	if err != nil {
		t.Fatal(err)
	}
	if blocks[0].Rect.X != 0 {
		t.Error("failed write mutated stored state")
	}
}

func TestMemorySaveToUnknownBoard(t *testing.T) {
	m := NewMemory()
	err := m.SaveGeometry(context.Background(), "nope", "default", persist.Batch{
		Generation: 1,
		Diffs:      map[string]geometry.Diff{"a": {X: ptr(1)}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveGeometry = %v, want ErrNotFound", err)
	}
}
