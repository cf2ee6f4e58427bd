package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "unclassified retries by default", err: base, retryable: true},
		{name: "explicit retryable", err: Retryable(base), retryable: true},
		{name: "explicit permanent", err: Permanent(base), retryable: false},
		{name: "wrapped permanent", err: fmt.Errorf("context: %w", Permanent(base)), retryable: false},
		{name: "wrapped retryable", err: fmt.Errorf("context: %w", Retryable(base)), retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestClassifiersPreserveNil(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) must be nil")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
}

func TestClassifiersUnwrap(t *testing.T) {
	base := errors.New("original cause")
	if !errors.Is(Retryable(base), base) {
		t.Error("Retryable must unwrap to the cause")
	}
	if !errors.Is(Permanent(base), base) {
		t.Error("Permanent must unwrap to the cause")
	}
}

func TestSteps_RunAtMostOnce(t *testing.T) {
	store := NewStepStore()
	steps := &Steps{runID: "run-1", store: store}
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) error {
		calls++
		return nil
	}

	if err := steps.Run(ctx, "charge-card", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := steps.Run(ctx, "charge-card", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected the step to run once, got %d", calls)
	}

	// A different step name under the same run still runs
	if err := steps.Run(ctx, "send-receipt", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a second distinct step to run, got %d calls", calls)
	}
}

func TestSteps_FailedStepRunsAgain(t *testing.T) {
	store := NewStepStore()
	steps := &Steps{runID: "run-1", store: store}
	ctx := context.Background()

	calls := 0
	err := steps.Run(ctx, "flaky", func(ctx context.Context) error {
		calls++
		return errors.New("first attempt fails")
	})
	if err == nil {
		t.Fatal("expected the step error to surface")
	}

	if err := steps.Run(ctx, "flaky", func(ctx context.Context) error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("a failed step must not be memoized, got %d calls", calls)
	}
}

func TestSteps_ScopedByRun(t *testing.T) {
	store := NewStepStore()
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) error {
		calls++
		return nil
	}

	first := &Steps{runID: "run-1", store: store}
	second := &Steps{runID: "run-2", store: store}
	_ = first.Run(ctx, "step", fn)
	_ = second.Run(ctx, "step", fn)

	if calls != 2 {
		t.Errorf("step completion must be scoped per run, got %d calls", calls)
	}
}

func TestDispatcher_EnqueueRemote(t *testing.T) {
	var received eventEnvelope
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad envelope: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, "secret", NewRegistry(), 3)
	err := d.Enqueue(context.Background(), EventScheduledSend,
		ScheduledSendData{ScheduledSendID: "send1"},
		WithIdempotencyKey("scheduled-send/send1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", auth)
	}
	if received.Name != EventScheduledSend {
		t.Errorf("unexpected event name: %q", received.Name)
	}
	if received.ID != "scheduled-send/send1" {
		t.Errorf("expected the idempotency key as event id, got %q", received.ID)
	}
}

func TestDispatcher_EnqueueRemoteNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, "", NewRegistry(), 3)
	if err := d.Enqueue(context.Background(), EventEmailAnalysis, EmailAnalysisData{MessageID: "m1"}); err == nil {
		t.Fatal("expected an error for a rejected event")
	}
}

func TestDispatcher_EnqueueLocalDelivery(t *testing.T) {
	registry := NewRegistry()
	done := make(chan Event, 1)
	registry.Register(EventEmailAnalysis, func(ctx context.Context, evt Event, steps *Steps) error {
		done <- evt
		return nil
	})

	d := NewDispatcher("", "", registry, 3)
	if err := d.Enqueue(context.Background(), EventEmailAnalysis, EmailAnalysisData{MessageID: "m1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := <-done
	var data EmailAnalysisData
	if err := evt.DecodeData(&data); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if data.MessageID != "m1" {
		t.Errorf("unexpected message id: %q", data.MessageID)
	}
	if evt.ID == "" {
		t.Error("expected a generated event id")
	}
}

func TestDispatcher_EnqueueLocalMissingHandler(t *testing.T) {
	d := NewDispatcher("", "", NewRegistry(), 3)
	if err := d.Enqueue(context.Background(), "nobody/home", nil); err == nil {
		t.Fatal("expected an error for an unregistered event")
	}
}

func TestDispatcher_InvokeRunsHandler(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	registry.Register(EventScheduledSend, func(ctx context.Context, evt Event, steps *Steps) error {
		calls++
		return Permanent(errors.New("row is gone"))
	})

	d := NewDispatcher("https://executor.example.com/e", "k", registry, 3)
	err := d.Invoke(context.Background(), Event{Name: EventScheduledSend, Data: json.RawMessage(`{}`)})
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if err == nil || IsRetryable(err) {
		t.Fatalf("expected the permanent classification to survive, got %v", err)
	}
}

func TestDispatcher_InvokeMissingHandlerIsPermanent(t *testing.T) {
	d := NewDispatcher("", "", NewRegistry(), 3)
	err := d.Invoke(context.Background(), Event{Name: "nobody/home"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if IsRetryable(err) {
		t.Error("a missing handler must not be retried")
	}
}
