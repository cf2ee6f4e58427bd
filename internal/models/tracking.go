package models

import "time"

// EmailTracking is an open-tracking record created before a tracked send.
// The token is embedded in the pixel URL injected into the outgoing body.
// Creation is best-effort and must never block delivery.
type EmailTracking struct {
	ID              string     `gorm:"column:id;primaryKey"`
	ScheduledSendID string     `gorm:"column:scheduled_send_id;index"`
	AccountID       string     `gorm:"column:account_id;index"`
	Token           string     `gorm:"column:token;uniqueIndex"`
	OpenedAt        *time.Time `gorm:"column:opened_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (EmailTracking) TableName() string {
	return "email_tracking"
}

// SendAudit is an append-only audit entry written after a successful send.
type SendAudit struct {
	ID                string    `gorm:"column:id;primaryKey"`
	ScheduledSendID   string    `gorm:"column:scheduled_send_id;index"`
	AccountID         string    `gorm:"column:account_id;index"`
	Strategy          string    `gorm:"column:strategy"`
	ProviderMessageID *string   `gorm:"column:provider_message_id"`
	SentAt            time.Time `gorm:"column:sent_at"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (SendAudit) TableName() string {
	return "send_audit"
}
