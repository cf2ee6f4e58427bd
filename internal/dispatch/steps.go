package dispatch

import (
	"context"
	"sync"
)

// StepStore remembers which named sub-steps completed for a given run, so a
// retried handler does not repeat side effects from a prior attempt.
type StepStore struct {
	mu   sync.Mutex
	done map[string]struct{}
}

func NewStepStore() *StepStore {
	return &StepStore{done: make(map[string]struct{})}
}

func (s *StepStore) isDone(runID string, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[runID+"/"+name]
	return ok
}

func (s *StepStore) markDone(runID string, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done[runID+"/"+name] = struct{}{}
}

// Steps is the memoization primitive handed to handlers. Run executes fn at
// most once per (run, step name) pair; completed steps are skipped on retry.
type Steps struct {
	runID string
	store *StepStore
}

// NewSteps binds a run id to a step store. The dispatcher builds one per
// delivery; retries of the same run share it.
func NewSteps(runID string, store *StepStore) *Steps {
	return &Steps{runID: runID, store: store}
}

func (s *Steps) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if s.store.isDone(s.runID, name) {
		return nil
	}
	if err := fn(ctx); err != nil {
		return err
	}
	s.store.markDone(s.runID, name)
	return nil
}
