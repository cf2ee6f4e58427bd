package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is the in-process fallback used when no shared store is
// configured. It only guards same-process races: there is no TTL and no
// cross-instance visibility, which is a documented degraded mode.
type MemoryBackend struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{held: make(map[string]string)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Acquire(ctx context.Context, key string, token string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.held[key]; exists {
		return false, nil
	}
	b.held[key] = token
	return true, nil
}

func (b *MemoryBackend) Release(ctx context.Context, key string, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, exists := b.held[key]; exists && current == token {
		delete(b.held, key)
	}
	return nil
}
