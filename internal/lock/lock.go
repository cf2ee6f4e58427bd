// Package lock provides a named, TTL-bound exclusive lock used to serialize
// per-account work across worker instances. Backends share the same contract:
// acquire is a conditional set-if-absent with TTL, release only deletes the
// key when the caller still owns it (compare-and-delete).
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// ErrLockWaitTimeout is returned by WithLock when the maximum wait elapses
// without acquiring the lock. It is distinguishable from errors returned by
// the guarded function.
var ErrLockWaitTimeout = errors.New("lock wait timeout")

// Backend is a single lock store. Acquire must be atomic set-if-absent with
// TTL; Release must only delete the key if its value equals token.
type Backend interface {
	Name() string
	Acquire(ctx context.Context, key string, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string, token string) error
}

// Config selects the backend. Checked in priority order: REST store, then
// Redis, then the in-process fallback.
type Config struct {
	RestURL   string
	RestToken string
	RedisURL  string

	WaitMax time.Duration // hard ceiling for WithLock, default 30m
	Poll    time.Duration // sleep between acquire attempts, default 5s
}

// SelectBackend resolves the configured backend. The decision is made once
// here, at construction, never lazily per call.
func SelectBackend(cfg Config) Backend {
	if cfg.RestURL != "" && cfg.RestToken != "" {
		return NewRestBackend(cfg.RestURL, cfg.RestToken)
	}
	if cfg.RedisURL != "" {
		return NewRedisBackend(cfg.RedisURL)
	}
	return NewMemoryBackend()
}

// Manager wraps a backend with token bookkeeping and the WithLock helper.
type Manager struct {
	backend Backend
	waitMax time.Duration
	poll    time.Duration
}

func NewManager(cfg Config) *Manager {
	backend := SelectBackend(cfg)
	log.Printf("Lock manager using %s backend", backend.Name())
	return NewManagerWithBackend(backend, cfg)
}

func NewManagerWithBackend(backend Backend, cfg Config) *Manager {
	waitMax := cfg.WaitMax
	if waitMax <= 0 {
		waitMax = 30 * time.Minute
	}
	poll := cfg.Poll
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Manager{backend: backend, waitMax: waitMax, poll: poll}
}

// Acquire tries to take the lock once. Backend errors are treated as
// not-acquired: the caller must never proceed without the lock just because
// the store was unreachable.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	token := uuid.New().String()
	ok, err := m.backend.Acquire(ctx, key, token, ttl)
	if err != nil {
		log.Printf("Lock acquire error for %s (treated as not acquired): %v", key, err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return token, true
}

// Release gives the lock back. Only the holder of the current token can
// release; a stale token is a no-op
func (m *Manager) Release(ctx context.Context, key string, token string) {
	if token == "" {
		return
	}
	if err := m.backend.Release(ctx, key, token); err != nil {
		log.Printf("Lock release error for %s: %v", key, err)
	}
}

// WithLock runs fn while holding the lock, polling acquire on a fixed
// interval up to the maximum wait. After the ceiling it returns
// ErrLockWaitTimeout rather than blocking forever.
func (m *Manager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(m.waitMax)
	for {
		token, ok := m.Acquire(ctx, key, ttl)
		if ok {
			defer m.Release(ctx, key, token)
			return fn(ctx)
		}

		if !time.Now().Add(m.poll).Before(deadline) {
			return fmt.Errorf("%w: key %s after %s", ErrLockWaitTimeout, key, m.waitMax)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.poll):
		}
	}
}
