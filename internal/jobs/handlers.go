// Package jobs binds executor events to the domain processors. Handlers
// record terminal failures to the failed-job ledger before returning, so the
// ledger row exists even when a later retry succeeds.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/parbhatkapila4/vectormail-worker/internal/dispatch"
	"github.com/parbhatkapila4/vectormail-worker/internal/lock"
	"github.com/parbhatkapila4/vectormail-worker/internal/models"
	"github.com/parbhatkapila4/vectormail-worker/internal/service"
)

const (
	// syncLockTTL bounds how long a crashed backfill can keep an account
	// locked before the lock self-heals.
	syncLockTTL = 10 * time.Minute
)

// FailureLedger is the slice of the ledger the handlers write to
type FailureLedger interface {
	Record(ctx context.Context, jobType string, resourceID string, payload models.JSONB, errMsg string) error
}

// Locker serializes account-level work
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type Handlers struct {
	analysis *service.EmailAnalysisProcessor
	sends    *service.ScheduledSendProcessor
	ledger   FailureLedger
	locks    Locker
}

func NewHandlers(
	analysis *service.EmailAnalysisProcessor,
	sends *service.ScheduledSendProcessor,
	ledger FailureLedger,
	locks Locker,
) *Handlers {
	return &Handlers{
		analysis: analysis,
		sends:    sends,
		ledger:   ledger,
		locks:    locks,
	}
}

// Register wires the three event handlers into the registry
func (h *Handlers) Register(registry *dispatch.Registry) {
	registry.Register(dispatch.EventEmailAnalysis, h.HandleEmailAnalysis)
	registry.Register(dispatch.EventScheduledSend, h.HandleScheduledSend)
	registry.Register(dispatch.EventBackfill, h.HandleBackfill)
}

// HandleEmailAnalysis enriches one message or a list of messages. A list is
// processed as a batch that reports counts and never fails the event; a
// single message failure goes to the ledger and retries.
func (h *Handlers) HandleEmailAnalysis(ctx context.Context, evt dispatch.Event, steps *dispatch.Steps) error {
	var data dispatch.EmailAnalysisData
	if err := evt.DecodeData(&data); err != nil {
		return dispatch.Permanent(err)
	}

	if len(data.MessageIDs) > 0 {
		batch := h.analysis.RunMany(ctx, data.MessageIDs)
		log.Printf("Email analysis batch done: processed=%d failed=%d skipped=%d",
			batch.Processed, batch.Failed, batch.Skipped)
		return nil
	}

	if data.MessageID == "" {
		return dispatch.Permanent(fmt.Errorf("email-analysis event missing message id"))
	}

	res := h.analysis.RunOne(ctx, data.MessageID)
	if res.OK {
		return nil
	}

	// Ledger first, then the retryable error: the record must exist even if
	// the executor's retry eventually succeeds.
	h.recordFailure(ctx, steps, models.JobTypeEmailAnalysis, data.MessageID, evt, res.Err)
	return dispatch.Retryable(res.Err)
}

// HandleScheduledSend executes one deferred send.
func (h *Handlers) HandleScheduledSend(ctx context.Context, evt dispatch.Event, steps *dispatch.Steps) error {
	var data dispatch.ScheduledSendData
	if err := evt.DecodeData(&data); err != nil {
		return dispatch.Permanent(err)
	}
	if data.ScheduledSendID == "" {
		return dispatch.Permanent(fmt.Errorf("scheduled-send event missing send id"))
	}

	if err := h.sends.Run(ctx, data.ScheduledSendID); err != nil {
		h.recordFailure(ctx, steps, models.JobTypeScheduledSend, data.ScheduledSendID, evt, err)
		return err
	}
	return nil
}

// HandleBackfill enriches an account's unprocessed messages under the
// account sync lock, so two backfills for the same account never overlap.
func (h *Handlers) HandleBackfill(ctx context.Context, evt dispatch.Event, steps *dispatch.Steps) error {
	var data dispatch.BackfillData
	if err := evt.DecodeData(&data); err != nil {
		return dispatch.Permanent(err)
	}
	if data.AccountID == "" {
		return dispatch.Permanent(fmt.Errorf("backfill event missing account id"))
	}

	err := h.locks.WithLock(ctx, "sync:"+data.AccountID, syncLockTTL, func(ctx context.Context) error {
		batch, err := h.analysis.RunAccountBackfill(ctx, data.AccountID, data.Limit)
		if err != nil {
			return err
		}
		log.Printf("Backfill for account %s done: processed=%d failed=%d skipped=%d",
			data.AccountID, batch.Processed, batch.Failed, batch.Skipped)
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockWaitTimeout) {
			log.Printf("Backfill for account %s timed out waiting for sync lock", data.AccountID)
		}
		h.recordFailure(ctx, steps, models.JobTypeBackfill, data.AccountID, evt, err)
		return dispatch.Retryable(err)
	}
	return nil
}

// recordFailure upserts a ledger row, memoized per run so retries of the
// same delivery do not rewrite it. Ledger problems are logged, never
// propagated: they must not mask the original failure.
func (h *Handlers) recordFailure(ctx context.Context, steps *dispatch.Steps, jobType string, resourceID string, evt dispatch.Event, cause error) {
	payload := models.JSONB{"event": evt.Name}
	var data map[string]interface{}
	if err := json.Unmarshal(evt.Data, &data); err == nil {
		payload["data"] = data
	}

	err := steps.Run(ctx, "ledger:"+jobType+":"+resourceID, func(ctx context.Context) error {
		return h.ledger.Record(ctx, jobType, resourceID, payload, cause.Error())
	})
	if err != nil {
		log.Printf("Failed to record %s failure for %s in ledger: %v", jobType, resourceID, err)
	}
}
