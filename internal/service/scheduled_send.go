package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/parbhatkapila4/vectormail-worker/internal/dispatch"
	"github.com/parbhatkapila4/vectormail-worker/internal/models"
	"github.com/parbhatkapila4/vectormail-worker/internal/repository"
)

// SendStore is the slice of scheduled-send persistence the job needs
type SendStore interface {
	GetByID(ctx context.Context, sendID string) (*models.ScheduledSend, error)
	MarkSent(ctx context.Context, sendID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, sendID string, errMsg string) error
}

// AccountStore resolves the owning account
type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
}

// SendResult is the provider's answer to a successful send
type SendResult struct {
	ProviderMessageID string
}

// GmailSender executes the structured compose-via-session variant
type GmailSender interface {
	Send(ctx context.Context, account *models.Account, payload *models.GmailSendPayload) (*SendResult, error)
}

// RestSender executes the flat REST variant
type RestSender interface {
	Send(ctx context.Context, account *models.Account, payload *models.RestSendPayload) (*SendResult, error)
}

// InstrumentationStore persists open-tracking and audit rows. Everything
// behind it is best-effort.
type InstrumentationStore interface {
	CreateTracking(ctx context.Context, tracking models.EmailTracking) error
	CreateAudit(ctx context.Context, audit models.SendAudit) error
}

// ScheduledSendProcessor executes one deferred send at most once per row.
// The composition of "check terminal status on entry" and "write the
// terminal status as the last action" is what makes sending safe under the
// executor's at-least-once delivery.
type ScheduledSendProcessor struct {
	sends           SendStore
	accounts        AccountStore
	gmail           GmailSender
	rest            RestSender
	instrumentation InstrumentationStore
	trackingBaseURL string
}

func NewScheduledSendProcessor(
	sends SendStore,
	accounts AccountStore,
	gmail GmailSender,
	rest RestSender,
	instrumentation InstrumentationStore,
	trackingBaseURL string,
) *ScheduledSendProcessor {
	return &ScheduledSendProcessor{
		sends:           sends,
		accounts:        accounts,
		gmail:           gmail,
		rest:            rest,
		instrumentation: instrumentation,
		trackingBaseURL: trackingBaseURL,
	}
}

// Run executes the scheduled send with the given id. Errors carry their
// retry classification; permanent failures have already written the row's
// terminal failed state when Run returns.
func (p *ScheduledSendProcessor) Run(ctx context.Context, sendID string) error {
	send, err := p.sends.GetByID(ctx, sendID)
	if err != nil {
		if errors.Is(err, repository.ErrSendNotFound) {
			return dispatch.Permanent(fmt.Errorf("scheduled send %s: %w", sendID, err))
		}
		return dispatch.Retryable(fmt.Errorf("failed to load scheduled send %s: %w", sendID, err))
	}

	// Duplicate delivery guard: once the row left pending, this invocation
	// must not touch the provider again.
	if send.Status != models.SendStatusPending {
		log.Printf("Scheduled send %s already %s, nothing to do", sendID, send.Status)
		return nil
	}

	if err := send.Payload.Validate(); err != nil {
		p.markFailed(ctx, sendID, err)
		return dispatch.Permanent(fmt.Errorf("scheduled send %s: %w", sendID, err))
	}

	account, err := p.accounts.GetByID(ctx, send.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			p.markFailed(ctx, sendID, err)
			return dispatch.Permanent(fmt.Errorf("scheduled send %s: %w", sendID, err))
		}
		return dispatch.Retryable(fmt.Errorf("failed to resolve account for send %s: %w", sendID, err))
	}

	payload := p.withTracking(ctx, send)

	var result *SendResult
	var sendErr error
	switch payload.Type {
	case models.SendPayloadRest:
		result, sendErr = p.rest.Send(ctx, account, payload.Rest)
	case models.SendPayloadGmail:
		result, sendErr = p.gmail.Send(ctx, account, payload.Gmail)
	default:
		// Validate catches unknown tags; keep the switch exhaustive anyway.
		err := fmt.Errorf("%w: unknown payload type %q", models.ErrInvalidSendPayload, payload.Type)
		p.markFailed(ctx, sendID, err)
		return dispatch.Permanent(err)
	}

	if sendErr != nil {
		// The row's only failure transition. The executor may still retry
		// the event, but re-entry hits the terminal-state guard above.
		p.markFailed(ctx, sendID, sendErr)
		return dispatch.Retryable(fmt.Errorf("send failed for %s: %w", sendID, sendErr))
	}

	sentAt := time.Now()
	if err := p.sends.MarkSent(ctx, sendID, sentAt); err != nil {
		// The email went out but the row still says pending; a retry will
		// re-enter and the guard will see pending. Surface loudly.
		return dispatch.Retryable(fmt.Errorf("sent %s but failed to mark row: %w", sendID, err))
	}

	providerID := ""
	if result != nil {
		providerID = result.ProviderMessageID
	}
	p.auditSent(send, string(payload.Type), providerID, sentAt)

	log.Printf("Scheduled send %s delivered via %s (provider message: %s)", sendID, payload.Type, providerID)
	return nil
}

// withTracking creates the open-tracking record and injects the pixel when
// the payload asks for it. Any failure here is swallowed: instrumentation
// must never block delivery.
func (p *ScheduledSendProcessor) withTracking(ctx context.Context, send *models.ScheduledSend) models.SendPayload {
	payload := send.Payload
	if !payload.TrackOpensRequested() || p.trackingBaseURL == "" {
		return payload
	}
	// A rest payload without an HTML body has nowhere to carry the pixel;
	// creating a tracking row for it would leave a record no open can match.
	if payload.Type == models.SendPayloadRest && payload.Rest.BodyHTML == "" {
		return payload
	}

	token := uuid.New().String()
	tracking := models.EmailTracking{
		ID:              uuid.New().String(),
		ScheduledSendID: send.ID,
		AccountID:       send.AccountID,
		Token:           token,
		CreatedAt:       time.Now(),
	}
	if err := p.instrumentation.CreateTracking(ctx, tracking); err != nil {
		log.Printf("Failed to create tracking record for send %s (sending without pixel): %v", send.ID, err)
		return payload
	}

	pixelURL := fmt.Sprintf("%s/t/%s.png", p.trackingBaseURL, token)
	switch payload.Type {
	case models.SendPayloadRest:
		rest := *payload.Rest
		if rest.BodyHTML != "" {
			rest.BodyHTML = injectTrackingPixel(rest.BodyHTML, pixelURL)
		}
		payload.Rest = &rest
	case models.SendPayloadGmail:
		gm := *payload.Gmail
		gm.BodyHTML = injectTrackingPixel(gm.BodyHTML, pixelURL)
		payload.Gmail = &gm
	}
	return payload
}

func (p *ScheduledSendProcessor) markFailed(ctx context.Context, sendID string, cause error) {
	if err := p.sends.MarkFailed(ctx, sendID, cause.Error()); err != nil {
		log.Printf("Failed to mark send %s failed: %v", sendID, err)
	}
}

func (p *ScheduledSendProcessor) auditSent(send *models.ScheduledSend, strategy string, providerID string, sentAt time.Time) {
	audit := models.SendAudit{
		ID:              uuid.New().String(),
		ScheduledSendID: send.ID,
		AccountID:       send.AccountID,
		Strategy:        strategy,
		SentAt:          sentAt,
		CreatedAt:       time.Now(),
	}
	if providerID != "" {
		audit.ProviderMessageID = &providerID
	}
	bestEffort("send audit", func() error {
		return p.instrumentation.CreateAudit(context.Background(), audit)
	})
}
