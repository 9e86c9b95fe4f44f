package cache

import (
	"context"
	"sync"
	"time"

	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
)

type memoryEntry struct {
	snap    *domain.ProductSnapshot
	expires time.Time
}

// MemoryCache is the default in-process snapshot cache. Expiry is wall-clock;
// the TTL vastly exceeds expected clock drift.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, productID string) (*domain.ProductSnapshot, error) {
	m.mu.RLock()
	entry, ok := m.entries[productID]
	m.mu.RUnlock()
	if !ok || !m.now().Before(entry.expires) {
		return nil, ErrCacheMiss
	}
	return entry.snap, nil
}

func (m *MemoryCache) Set(_ context.Context, productID string, snap *domain.ProductSnapshot) error {
	m.mu.Lock()
	m.entries[productID] = memoryEntry{snap: snap, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}
