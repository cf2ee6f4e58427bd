package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parbhatkapila4/vectormail-worker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FailedJobRepository is the failed-job ledger. One row per
// (job_type, resource_id); repeated failures update the existing row.
type FailedJobRepository struct {
	db *gorm.DB
}

func NewFailedJobRepository(db *gorm.DB) *FailedJobRepository {
	return &FailedJobRepository{db: db}
}

// Record upserts a failure for (jobType, resourceID). The upsert is a single
// statement keyed on the unique pair, so concurrent recorders cannot race
// into duplicate rows.
func (r *FailedJobRepository) Record(ctx context.Context, jobType string, resourceID string, payload models.JSONB, errMsg string) error {
	now := time.Now()
	row := models.FailedJob{
		ID:           uuid.New().String(),
		JobType:      jobType,
		ResourceID:   resourceID,
		Payload:      payload,
		ErrorMessage: errMsg,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_type"}, {Name: "resource_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"payload":       row.Payload,
			"error_message": row.ErrorMessage,
			"updated_at":    now,
		}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to record failed job: %w", result.Error)
	}
	return nil
}

// Count returns the number of ledger rows, optionally restricted to rows
// updated since the given time
func (r *FailedJobRepository) Count(ctx context.Context, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.FailedJob{})
	if since != nil {
		query = query.Where("updated_at >= ?", *since)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	return count, nil
}
