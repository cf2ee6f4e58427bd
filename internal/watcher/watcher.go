package watcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/parbhatkapila4/vectormail-worker/internal/config"
	"github.com/parbhatkapila4/vectormail-worker/internal/dispatch"
	"github.com/parbhatkapila4/vectormail-worker/internal/models"
)

const (
	dueSendBatch  = 20
	backfillBatch = 10
)

// DueSendSource lists pending sends whose time has come and can mark a row
// failed when its event cannot even be enqueued
type DueSendSource interface {
	GetDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledSend, error)
	MarkFailed(ctx context.Context, sendID string, errMsg string) error
}

// BackfillSource lists accounts that still have unenriched messages
type BackfillSource interface {
	ListIDsWithUnenrichedMessages(ctx context.Context, limit int) ([]string, error)
}

// Enqueuer sends events to the job executor
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, data interface{}, opts ...dispatch.EnqueueOption) error
}

// Watcher is the cron sweep: it turns due rows into executor events. It does
// no domain work itself; the handlers own correctness.
type Watcher struct {
	cfg        *config.Config
	sends      DueSendSource
	accounts   BackfillSource
	dispatcher Enqueuer
}

func New(cfg *config.Config, sends DueSendSource, accounts BackfillSource, dispatcher Enqueuer) *Watcher {
	return &Watcher{
		cfg:        cfg,
		sends:      sends,
		accounts:   accounts,
		dispatcher: dispatcher,
	}
}

// Start begins the sweep loop
func (w *Watcher) Start(ctx context.Context) error {
	log.Println("Starting watcher for scheduled sends and enrichment backfills...")

	// Sweep once on startup to pick up work left over from previous runs
	w.sweep(ctx)

	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Watcher shutting down...")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	if err := w.enqueueDueSends(ctx); err != nil {
		log.Printf("Error sweeping due sends: %v", err)
	}
	if err := w.enqueueBackfills(ctx); err != nil {
		log.Printf("Error sweeping backfills: %v", err)
	}
}

// enqueueDueSends emits one scheduled-send-process event per due row. The
// idempotency key keeps repeated sweeps of a still-pending row from fanning
// out into duplicate events. An enqueue transport error is terminal for the
// row: silent loss here would strand it in pending forever.
func (w *Watcher) enqueueDueSends(ctx context.Context) error {
	due, err := w.sends.GetDue(ctx, time.Now(), dueSendBatch)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	log.Printf("Found %d due scheduled send(s)", len(due))

	for _, send := range due {
		err := w.dispatcher.Enqueue(ctx, dispatch.EventScheduledSend,
			dispatch.ScheduledSendData{ScheduledSendID: send.ID},
			dispatch.WithIdempotencyKey("scheduled-send/"+send.ID),
		)
		if err != nil {
			log.Printf("Failed to enqueue scheduled send %s, marking failed: %v", send.ID, err)
			msg := fmt.Sprintf("failed to enqueue send event: %v", err)
			if markErr := w.sends.MarkFailed(ctx, send.ID, msg); markErr != nil {
				log.Printf("Failed to mark send %s failed: %v", send.ID, markErr)
			}
		}
	}
	return nil
}

// enqueueBackfills emits backfill events for accounts with unenriched
// messages. Enrichment is best-effort: enqueue errors are logged only.
func (w *Watcher) enqueueBackfills(ctx context.Context) error {
	accountIDs, err := w.accounts.ListIDsWithUnenrichedMessages(ctx, backfillBatch)
	if err != nil {
		return err
	}

	for _, accountID := range accountIDs {
		err := w.dispatcher.Enqueue(ctx, dispatch.EventBackfill,
			dispatch.BackfillData{AccountID: accountID},
			dispatch.WithIdempotencyKey("backfill/"+accountID),
		)
		if err != nil {
			log.Printf("Failed to enqueue backfill for account %s: %v", accountID, err)
		}
	}
	return nil
}
