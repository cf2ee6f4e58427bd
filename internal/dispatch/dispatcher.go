package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Dispatcher enqueues typed events to the external job executor. When no
// executor URL is configured it falls back to in-process delivery against
// the local registry, with capped retries on retryable errors, so a
// single-instance deployment still gets at-least-once semantics.
type Dispatcher struct {
	eventURL   string
	eventKey   string
	httpClient *http.Client
	registry   *Registry
	steps      *StepStore
	maxRetries int
}

func NewDispatcher(eventURL string, eventKey string, registry *Registry, maxRetries int) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Dispatcher{
		eventURL: eventURL,
		eventKey: eventKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		registry:   registry,
		steps:      NewStepStore(),
		maxRetries: maxRetries,
	}
}

type eventEnvelope struct {
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"ts"`
}

// EnqueueOption tweaks a single enqueue call.
type EnqueueOption func(*eventEnvelope)

// WithIdempotencyKey sets a stable event id so the executor can deduplicate
// repeated enqueues of the same logical event.
func WithIdempotencyKey(key string) EnqueueOption {
	return func(e *eventEnvelope) { e.ID = key }
}

// Enqueue sends one event. Transport errors are returned to the caller; the
// caller decides whether they are fatal (scheduled sends) or best-effort
// (enrichment).
func (d *Dispatcher) Enqueue(ctx context.Context, name string, data interface{}, opts ...EnqueueOption) error {
	envelope := eventEnvelope{
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, opt := range opts {
		opt(&envelope)
	}

	if d.eventURL == "" {
		return d.deliverLocal(envelope)
	}
	return d.post(ctx, envelope)
}

func (d *Dispatcher) post(ctx context.Context, envelope eventEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.eventURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.eventKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.eventKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event %s: %w", envelope.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("event API returned status %d for %s: %s", resp.StatusCode, envelope.Name, string(respBody))
	}
	return nil
}

// deliverLocal hands the event to the registered handler on a background
// goroutine. Registration problems surface to the caller; handler failures
// go through the local retry loop.
func (d *Dispatcher) deliverLocal(envelope eventEnvelope) error {
	handler, ok := d.registry.get(envelope.Name)
	if !ok {
		return fmt.Errorf("no handler registered for event %s", envelope.Name)
	}

	data, err := json.Marshal(envelope.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	evt := Event{ID: envelope.ID, Name: envelope.Name, Data: data}
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	go d.invokeWithRetry(handler, evt)
	return nil
}

// invokeWithRetry retries retryable failures with capped exponential backoff.
// Permanent failures stop immediately; the handler has already written its
// terminal state and ledger entry by the time it returns one.
func (d *Dispatcher) invokeWithRetry(handler Handler, evt Event) {
	steps := NewSteps(evt.ID, d.steps)

	for attempt := 1; ; attempt++ {
		err := handler(context.Background(), evt, steps)
		if err == nil {
			return
		}
		if !IsRetryable(err) {
			log.Printf("Event %s (%s) failed permanently: %v", evt.Name, evt.ID, err)
			return
		}
		if attempt >= d.maxRetries {
			log.Printf("Event %s (%s) failed after %d attempts: %v", evt.Name, evt.ID, attempt, err)
			return
		}

		backoff := time.Duration(math.Min(math.Pow(2, float64(attempt)), 60)) * time.Second
		log.Printf("Event %s (%s) attempt %d failed, retrying in %s: %v", evt.Name, evt.ID, attempt, backoff, err)
		time.Sleep(backoff)
	}
}

// Invoke runs the handler for evt once, synchronously. It is the boundary
// adapter used when an external executor drives delivery: the returned error
// carries the retry classification.
func (d *Dispatcher) Invoke(ctx context.Context, evt Event) error {
	handler, ok := d.registry.get(evt.Name)
	if !ok {
		return Permanent(fmt.Errorf("no handler registered for event %s", evt.Name))
	}
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	return handler(ctx, evt, NewSteps(evt.ID, d.steps))
}
