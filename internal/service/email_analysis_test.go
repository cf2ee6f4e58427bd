package service

import (
	"context"
	"errors"
	"testing"

	"github.com/parbhatkapila4/vectormail-worker/internal/models"
)

type mockEmailStore struct {
	getByIDFunc           func(ctx context.Context, messageID string) (*models.EmailMessage, error)
	listUnenrichedIDsFunc func(ctx context.Context, accountID string, limit int) ([]string, error)
	saveEnrichmentFunc    func(ctx context.Context, messageID string, embedding models.Vector, summary string) error
}

func (m *mockEmailStore) GetByID(ctx context.Context, messageID string) (*models.EmailMessage, error) {
	return m.getByIDFunc(ctx, messageID)
}

func (m *mockEmailStore) ListUnenrichedIDs(ctx context.Context, accountID string, limit int) ([]string, error) {
	return m.listUnenrichedIDsFunc(ctx, accountID, limit)
}

func (m *mockEmailStore) SaveEnrichment(ctx context.Context, messageID string, embedding models.Vector, summary string) error {
	return m.saveEnrichmentFunc(ctx, messageID, embedding, summary)
}

type mockEnricher struct {
	embedFunc     func(ctx context.Context, text string) ([]float32, error)
	summarizeFunc func(ctx context.Context, msg MessageContent) (string, error)

	embedCalls     int
	summarizeCalls int
}

func (m *mockEnricher) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls++
	return m.embedFunc(ctx, text)
}

func (m *mockEnricher) Summarize(ctx context.Context, msg MessageContent) (string, error) {
	m.summarizeCalls++
	return m.summarizeFunc(ctx, msg)
}

func plainMessage(id string) *models.EmailMessage {
	return &models.EmailMessage{
		ID:          id,
		AccountID:   "acct1",
		Subject:     "Quarterly report",
		FromAddress: "boss@example.com",
		BodyText:    "Please review the attached numbers.",
	}
}

func TestRunOne_Success(t *testing.T) {
	saved := false
	store := &mockEmailStore{
		getByIDFunc: func(ctx context.Context, messageID string) (*models.EmailMessage, error) {
			return plainMessage(messageID), nil
		},
		saveEnrichmentFunc: func(ctx context.Context, messageID string, embedding models.Vector, summary string) error {
			saved = true
			if len(embedding) == 0 {
				t.Error("expected a non-empty embedding to be saved")
			}
			if summary != "a short summary" {
				t.Errorf("unexpected summary: %q", summary)
			}
			return nil
		},
	}
	enricher := &mockEnricher{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{0.1, 0.2}, nil
		},
		summarizeFunc: func(ctx context.Context, msg MessageContent) (string, error) {
			return "a short summary", nil
		},
	}

	p := NewEmailAnalysisProcessor(store, enricher)
	res := p.RunOne(context.Background(), "msg1")

	if !res.OK || res.Skipped || res.Err != nil {
		t.Fatalf("expected a clean success, got %+v", res)
	}
	if !saved {
		t.Fatal("expected the enrichment to be persisted")
	}
}

func TestRunOne_SkipsAlreadyEnriched(t *testing.T) {
	store := &mockEmailStore{
		getByIDFunc: func(ctx context.Context, messageID string) (*models.EmailMessage, error) {
			msg := plainMessage(messageID)
			msg.Embedding = models.Vector{0.5}
			return msg, nil
		},
		saveEnrichmentFunc: func(ctx context.Context, messageID string, embedding models.Vector, summary string) error {
			t.Error("save must not be called for an enriched message")
			return nil
		},
	}
	enricher := &mockEnricher{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("must not be called")
		},
		summarizeFunc: func(ctx context.Context, msg MessageContent) (string, error) {
			return "", errors.New("must not be called")
		},
	}

	p := NewEmailAnalysisProcessor(store, enricher)
	res := p.RunOne(context.Background(), "msg1")

	if !res.OK || !res.Skipped {
		t.Fatalf("expected a skipped success, got %+v", res)
	}
	if enricher.embedCalls != 0 || enricher.summarizeCalls != 0 {
		t.Errorf("provider must not be touched for an enriched message, got %d embed / %d summarize calls",
			enricher.embedCalls, enricher.summarizeCalls)
	}
}

func TestRunOne_ProviderError(t *testing.T) {
	store := &mockEmailStore{
		getByIDFunc: func(ctx context.Context, messageID string) (*models.EmailMessage, error) {
			return plainMessage(messageID), nil
		},
		saveEnrichmentFunc: func(ctx context.Context, messageID string, embedding models.Vector, summary string) error {
			t.Error("save must not be called when embedding fails")
			return nil
		},
	}
	enricher := &mockEnricher{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("rate limited")
		},
		summarizeFunc: func(ctx context.Context, msg MessageContent) (string, error) {
			return "unused", nil
		},
	}

	p := NewEmailAnalysisProcessor(store, enricher)
	res := p.RunOne(context.Background(), "msg1")

	if res.OK || res.Err == nil {
		t.Fatalf("expected a failed result, got %+v", res)
	}
}

func TestRunMany_TalliesOutcomes(t *testing.T) {
	messages := map[string]*models.EmailMessage{
		"fresh":    plainMessage("fresh"),
		"enriched": plainMessage("enriched"),
		"broken":   plainMessage("broken"),
	}
	messages["enriched"].Embedding = models.Vector{0.5}

	store := &mockEmailStore{
		getByIDFunc: func(ctx context.Context, messageID string) (*models.EmailMessage, error) {
			return messages[messageID], nil
		},
		// The broken message fails at the save step
		saveEnrichmentFunc: func(ctx context.Context, messageID string, embedding models.Vector, summary string) error {
			if messageID == "broken" {
				return errors.New("constraint violation")
			}
			return nil
		},
	}
	enricher := &mockEnricher{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{0.1}, nil
		},
		summarizeFunc: func(ctx context.Context, msg MessageContent) (string, error) {
			return "summary", nil
		},
	}

	p := NewEmailAnalysisProcessor(store, enricher)
	batch := p.RunMany(context.Background(), []string{"fresh", "enriched", "broken"})

	if batch.Processed != 1 || batch.Skipped != 1 || batch.Failed != 1 {
		t.Fatalf("expected 1 processed / 1 skipped / 1 failed, got %+v", batch)
	}
}

func TestRunAccountBackfill(t *testing.T) {
	var requestedLimit int
	store := &mockEmailStore{
		getByIDFunc: func(ctx context.Context, messageID string) (*models.EmailMessage, error) {
			return plainMessage(messageID), nil
		},
		listUnenrichedIDsFunc: func(ctx context.Context, accountID string, limit int) ([]string, error) {
			requestedLimit = limit
			if accountID != "acct1" {
				t.Errorf("unexpected account id: %s", accountID)
			}
			return []string{"m1", "m2"}, nil
		},
		saveEnrichmentFunc: func(ctx context.Context, messageID string, embedding models.Vector, summary string) error {
			return nil
		},
	}
	enricher := &mockEnricher{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{0.1}, nil
		},
		summarizeFunc: func(ctx context.Context, msg MessageContent) (string, error) {
			return "summary", nil
		},
	}

	p := NewEmailAnalysisProcessor(store, enricher)
	batch, err := p.RunAccountBackfill(context.Background(), "acct1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Processed != 2 {
		t.Errorf("expected 2 processed, got %+v", batch)
	}
	if requestedLimit != BackfillBatchSize {
		t.Errorf("expected the default batch size %d, got %d", BackfillBatchSize, requestedLimit)
	}
}

func TestRunAccountBackfill_ListError(t *testing.T) {
	store := &mockEmailStore{
		listUnenrichedIDsFunc: func(ctx context.Context, accountID string, limit int) ([]string, error) {
			return nil, errors.New("db down")
		},
	}
	p := NewEmailAnalysisProcessor(store, &mockEnricher{})

	if _, err := p.RunAccountBackfill(context.Background(), "acct1", 10); err == nil {
		t.Fatal("expected an error when listing fails")
	}
}
