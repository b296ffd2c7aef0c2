package store

import (
	"context"
	"sync"

	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/persist"
)

// Memory is an in-process store for development and testing. It supports
// failure injection so tests can exercise the coordinator's error path
// without a real backend.
type Memory struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	failErr error
}

type memoryRecord struct {
	blocks  []geometry.Block
	version uint64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*memoryRecord)}
}

// FailWith makes every subsequent write fail with err. Pass nil to heal.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func recordKey(boardID, breakpoint string) string {
	return boardID + "/" + breakpoint
}

// SaveGeometry applies the batch to the stored block list.
func (m *Memory) SaveGeometry(ctx context.Context, boardID, breakpoint string, batch persist.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	rec, ok := m.records[recordKey(boardID, breakpoint)]
	if !ok {
		return ErrNotFound
	}
	rec.blocks = applyBatch(rec.blocks, batch)
	rec.version++
	return nil
}

// LoadBlocks returns a copy of the stored block list.
func (m *Memory) LoadBlocks(ctx context.Context, boardID, breakpoint string) ([]geometry.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey(boardID, breakpoint)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]geometry.Block, len(rec.blocks))
	copy(out, rec.blocks)
	return out, nil
}

// ReplaceBlocks overwrites the stored block list.
func (m *Memory) ReplaceBlocks(ctx context.Context, boardID, breakpoint string, blocks []geometry.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	key := recordKey(boardID, breakpoint)
	rec, ok := m.records[key]
	if !ok {
		rec = &memoryRecord{}
		m.records[key] = rec
	}
	rec.blocks = make([]geometry.Block, len(blocks))
	copy(rec.blocks, blocks)
	rec.version++
	return nil
}

// Close does nothing for the in-memory store.
func (m *Memory) Close(ctx context.Context) error { return nil }

// Ensure Memory implements Store.
var _ Store = (*Memory)(nil)
