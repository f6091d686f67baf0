package keyring

import (
	"context"
	"fmt"
	"sync"
)

// CursorStore persists rotation cursors. The Redis-backed store in
// internal/shared/redisstore implements it; MemoryCursorStore covers
// single-instance deployments without Redis.
type CursorStore interface {
	NextIndex(ctx context.Context, key string, modulo int) (int, error)
}

// MemoryCursorStore keeps rotation cursors in process memory.
type MemoryCursorStore struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewMemoryCursorStore creates a new in-memory cursor store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{counters: make(map[string]uint64)}
}

// NextIndex returns the next round-robin index for the key.
func (m *MemoryCursorStore) NextIndex(_ context.Context, key string, modulo int) (int, error) {
	if modulo <= 0 {
		return 0, fmt.Errorf("modulo must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.counters[key]
	m.counters[key] = next + 1
	return int(next % uint64(modulo)), nil
}
