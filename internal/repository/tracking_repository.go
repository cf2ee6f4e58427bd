package repository

import (
	"context"
	"fmt"

	"github.com/parbhatkapila4/vectormail-worker/internal/models"
	"gorm.io/gorm"
)

type TrackingRepository struct {
	db *gorm.DB
}

func NewTrackingRepository(db *gorm.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// CreateTracking inserts an open-tracking record for a send
func (r *TrackingRepository) CreateTracking(ctx context.Context, tracking models.EmailTracking) error {
	if err := r.db.WithContext(ctx).Create(&tracking).Error; err != nil {
		return fmt.Errorf("failed to create tracking record: %w", err)
	}
	return nil
}

// CreateAudit appends a send-audit entry
func (r *TrackingRepository) CreateAudit(ctx context.Context, audit models.SendAudit) error {
	if err := r.db.WithContext(ctx).Create(&audit).Error; err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}
