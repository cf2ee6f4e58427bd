package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parbhatkapila4/vectormail-worker/internal/models"
	"gorm.io/gorm"
)

var ErrSendNotFound = errors.New("scheduled send not found")

type ScheduledSendRepository struct {
	db *gorm.DB
}

func NewScheduledSendRepository(db *gorm.DB) *ScheduledSendRepository {
	return &ScheduledSendRepository{db: db}
}

// GetByID retrieves a scheduled send by ID
func (r *ScheduledSendRepository) GetByID(ctx context.Context, sendID string) (*models.ScheduledSend, error) {
	var send models.ScheduledSend
	result := r.db.WithContext(ctx).First(&send, "id = ?", sendID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSendNotFound
		}
		return nil, fmt.Errorf("failed to get scheduled send: %w", result.Error)
	}
	return &send, nil
}

// GetDue retrieves pending sends whose scheduled time has passed, oldest first
func (r *ScheduledSendRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledSend, error) {
	var sends []models.ScheduledSend
	result := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.SendStatusPending, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&sends)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query due sends: %w", result.Error)
	}
	return sends, nil
}

// MarkSent transitions a row to its terminal sent state
func (r *ScheduledSendRepository) MarkSent(ctx context.Context, sendID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.ScheduledSend{}).
		Where("id = ?", sendID).
		Updates(map[string]interface{}{
			"status":     models.SendStatusSent,
			"sent_at":    sentAt,
			"last_error": nil,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark send sent: %w", result.Error)
	}
	return nil
}

// MarkFailed transitions a row to its terminal failed state
func (r *ScheduledSendRepository) MarkFailed(ctx context.Context, sendID string, errMsg string) error {
	result := r.db.WithContext(ctx).Model(&models.ScheduledSend{}).
		Where("id = ?", sendID).
		Updates(map[string]interface{}{
			"status":     models.SendStatusFailed,
			"last_error": errMsg,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark send failed: %w", result.Error)
	}
	return nil
}
