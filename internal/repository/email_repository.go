package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parbhatkapila4/vectormail-worker/internal/models"
	"gorm.io/gorm"
)

var ErrMessageNotFound = errors.New("email message not found")

type EmailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

// GetByID retrieves a message with its enrichment columns
func (r *EmailRepository) GetByID(ctx context.Context, messageID string) (*models.EmailMessage, error) {
	var msg models.EmailMessage
	result := r.db.WithContext(ctx).First(&msg, "id = ?", messageID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", result.Error)
	}
	return &msg, nil
}

// ListUnenrichedIDs returns ids of an account's messages that have no
// embedding yet, oldest first
func (r *EmailRepository) ListUnenrichedIDs(ctx context.Context, accountID string, limit int) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).
		Model(&models.EmailMessage{}).
		Where("account_id = ? AND embedding IS NULL", accountID).
		Order("received_at ASC").
		Limit(limit).
		Pluck("id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list unenriched messages: %w", result.Error)
	}
	return ids, nil
}

// SaveEnrichment persists the embedding and summary for a message
func (r *EmailRepository) SaveEnrichment(ctx context.Context, messageID string, embedding models.Vector, summary string) error {
	result := r.db.WithContext(ctx).Model(&models.EmailMessage{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"embedding":  embedding,
			"summary":    summary,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save enrichment: %w", result.Error)
	}
	return nil
}
