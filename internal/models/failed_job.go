package models

import "time"

// Job type constants used as the ledger's job_type key
const (
	JobTypeEmailAnalysis = "email-analysis"
	JobTypeScheduledSend = "scheduled-send-process"
	JobTypeBackfill      = "email-analysis-account-backfill"
)

// FailedJob is one row of the failed-job ledger: a durable, deduplicated
// record of handler failures keyed by (job_type, resource_id). Repeated
// failures for the same key upsert into the existing row. Rows are never
// deleted by the worker; they are an operator-facing audit trail.
type FailedJob struct {
	ID           string    `gorm:"column:id;primaryKey"`
	JobType      string    `gorm:"column:job_type;uniqueIndex:idx_failed_job_type_resource"`
	ResourceID   string    `gorm:"column:resource_id;uniqueIndex:idx_failed_job_type_resource"`
	Payload      JSONB     `gorm:"column:payload;type:jsonb"`
	ErrorMessage string    `gorm:"column:error_message"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (FailedJob) TableName() string {
	return "failed_job"
}
