package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Event is one delivery from the executor. The same event may be delivered
// more than once; handlers must be idempotent or self-guarding.
type Event struct {
	ID   string
	Name string
	Data json.RawMessage
}

// DecodeData unmarshals the event payload into v
func (e Event) DecodeData(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s event data: %w", e.Name, err)
	}
	return nil
}

// Handler processes one event. Returned errors are classified with
// Retryable/Permanent; anything unclassified retries.
type Handler func(ctx context.Context, evt Event, steps *Steps) error

// Registry maps event names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}
