package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/parbhatkapila4/vectormail-worker/internal/models"
)

const (
	// BackfillBatchSize bounds how many messages one backfill event enriches
	BackfillBatchSize = 100
)

// EmailStore is the slice of message persistence the analysis job needs
type EmailStore interface {
	GetByID(ctx context.Context, messageID string) (*models.EmailMessage, error)
	ListUnenrichedIDs(ctx context.Context, accountID string, limit int) ([]string, error)
	SaveEnrichment(ctx context.Context, messageID string, embedding models.Vector, summary string) error
}

// MessageContent is the part of a message the enrichment provider sees
type MessageContent struct {
	From    string
	Subject string
	Body    string
}

// Enricher is the external enrichment provider
type Enricher interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Summarize(ctx context.Context, msg MessageContent) (string, error)
}

// AnalysisResult is the outcome for one message. A skipped message is a
// success: it was already enriched before this invocation.
type AnalysisResult struct {
	OK      bool
	Skipped bool
	Err     error
}

// BatchResult is the per-item outcome tally of a batch run.
type BatchResult struct {
	Processed int
	Failed    int
	Skipped   int
}

// EmailAnalysisProcessor enriches mailbox messages with an embedding vector
// and a summary. RunOne is idempotent: a message whose embedding is already
// set is never sent to the provider again.
type EmailAnalysisProcessor struct {
	emails   EmailStore
	enricher Enricher
}

func NewEmailAnalysisProcessor(emails EmailStore, enricher Enricher) *EmailAnalysisProcessor {
	return &EmailAnalysisProcessor{
		emails:   emails,
		enricher: enricher,
	}
}

// RunOne enriches a single message. Errors are returned in the result, not
// thrown, so batch callers can keep going; the event handler re-wraps the
// error for the executor's retry.
func (p *EmailAnalysisProcessor) RunOne(ctx context.Context, messageID string) AnalysisResult {
	start := time.Now()

	msg, err := p.emails.GetByID(ctx, messageID)
	if err != nil {
		return AnalysisResult{Err: fmt.Errorf("failed to load message %s: %w", messageID, err)}
	}

	// Idempotence guard: a non-empty embedding means a prior delivery or a
	// backfill already finished this message.
	if msg.Enriched() {
		log.Printf("Message %s already enriched, skipping", messageID)
		return AnalysisResult{OK: true, Skipped: true}
	}

	embedding, err := p.enricher.Embed(ctx, analysisText(msg))
	if err != nil {
		return AnalysisResult{Err: fmt.Errorf("failed to embed message %s: %w", messageID, err)}
	}

	summary, err := p.enricher.Summarize(ctx, MessageContent{
		From:    msg.FromAddress,
		Subject: msg.Subject,
		Body:    messageBody(msg),
	})
	if err != nil {
		return AnalysisResult{Err: fmt.Errorf("failed to summarize message %s: %w", messageID, err)}
	}

	if err := p.emails.SaveEnrichment(ctx, messageID, models.Vector(embedding), summary); err != nil {
		return AnalysisResult{Err: fmt.Errorf("failed to save enrichment for %s: %w", messageID, err)}
	}

	log.Printf("Enriched message %s (account: %s) in %s", messageID, msg.AccountID, time.Since(start))
	return AnalysisResult{OK: true}
}

// RunMany enriches messages strictly sequentially. Sequential on purpose:
// it bounds load on the enrichment provider and keeps per-message failures
// isolated. The batch never fails as a whole.
func (p *EmailAnalysisProcessor) RunMany(ctx context.Context, messageIDs []string) BatchResult {
	var batch BatchResult
	for _, id := range messageIDs {
		res := p.RunOne(ctx, id)
		switch {
		case res.Skipped:
			batch.Skipped++
		case res.OK:
			batch.Processed++
		default:
			batch.Failed++
			log.Printf("Failed to enrich message %s: %v", id, res.Err)
		}
	}
	return batch
}

// RunAccountBackfill enriches up to limit of an account's unprocessed
// messages. Callers serialize per-account backfills with the lock manager.
func (p *EmailAnalysisProcessor) RunAccountBackfill(ctx context.Context, accountID string, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = BackfillBatchSize
	}

	ids, err := p.emails.ListUnenrichedIDs(ctx, accountID, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list unenriched messages for account %s: %w", accountID, err)
	}
	if len(ids) == 0 {
		return BatchResult{}, nil
	}

	log.Printf("Backfilling %d messages for account %s", len(ids), accountID)
	return p.RunMany(ctx, ids), nil
}

func analysisText(msg *models.EmailMessage) string {
	var b strings.Builder
	b.WriteString(msg.Subject)
	b.WriteString("\n")
	b.WriteString(messageBody(msg))
	return b.String()
}

func messageBody(msg *models.EmailMessage) string {
	if msg.BodyText != "" {
		return msg.BodyText
	}
	if msg.BodyHTML != "" {
		return msg.BodyHTML
	}
	return msg.Snippet
}
