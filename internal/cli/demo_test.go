package cli

import (
	"context"
	"testing"
	"time"

	"github.com/blockboard/blockboard/pkg/board"
	"github.com/blockboard/blockboard/pkg/persist"
	"github.com/blockboard/blockboard/pkg/session"
)

// The demo's debounced saves patch geometry onto records the store already
// holds, so the model must write the block set eagerly on add and delete.
// A model that skips that step has every later save fail with not-found.
func TestDemoSavesToSeededStore(t *testing.T) {
	m := newDemoModel()
	defer m.ctrl.Stop()

	blocks, err := m.mem.LoadBlocks(context.Background(), demoBoardID, board.DefaultBreakpoint)
	if err != nil {
		t.Fatalf("LoadBlocks after seeding: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("store holds %d blocks after seeding, want 3", len(blocks))
	}

	// Grab the selected block, nudge it down one row and drop it; the
	// resulting diff must commit cleanly against the seeded records.
	m.toggleGrab(session.KindDrag)
	m.nudge(0, 1)
	m.toggleGrab(session.KindDrag)
	m.ctrl.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, saveErr := m.ctrl.SaveStatus()
		if status == persist.StatusError {
			t.Fatalf("save against seeded store failed: %v", saveErr)
		}
		if status == persist.StatusIdle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("save did not settle, status %v", status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Deleting keeps the store's membership in step with the board.
	m.selected = blocks[0].ID
	if err := m.ctrl.DeleteBlock(m.selected); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	m.syncStore()
	blocks, err = m.mem.LoadBlocks(context.Background(), demoBoardID, board.DefaultBreakpoint)
	if err != nil {
		t.Fatalf("LoadBlocks after delete: %v", err)
	}
	if len(blocks) != 2 {
		t.Errorf("store holds %d blocks after delete, want 2", len(blocks))
	}
}
