package cache

import (
	"context"
	"sync"
)

// ExpirationCache is a row-level read cache for account expiration lookups,
// keyed by account id. Every store write touching an account's expiration
// must call Invalidate for that key — invalidation is explicit, never implied
// by write ordering.
type ExpirationCache interface {
	Get(ctx context.Context, accountID string) (int64, bool)
	Set(ctx context.Context, accountID string, expirationTS int64)
	Invalidate(ctx context.Context, accountID string)
}

// Memory is a process-local ExpirationCache. Used in development and tests,
// and as the fallback when no Redis URL is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]int64
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]int64)}
}

func (m *Memory) Get(_ context.Context, accountID string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[accountID]
	return v, ok
}

func (m *Memory) Set(_ context.Context, accountID string, expirationTS int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[accountID] = expirationTS
}

func (m *Memory) Invalidate(_ context.Context, accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, accountID)
}
