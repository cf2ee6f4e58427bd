package models

import "time"

// EmailMessage represents a mirrored mailbox message. The embedding column
// doubles as the enrichment completion flag: once it is non-empty the message
// is considered processed and analysis must skip it.
type EmailMessage struct {
	ID          string    `gorm:"column:id;primaryKey"`
	AccountID   string    `gorm:"column:account_id;index"`
	ThreadID    string    `gorm:"column:thread_id;index"`
	Subject     string    `gorm:"column:subject"`
	FromAddress string    `gorm:"column:from_address"`
	ToAddress   string    `gorm:"column:to_address"`
	Snippet     string    `gorm:"column:snippet"`
	BodyText    string    `gorm:"column:body_text"`
	BodyHTML    string    `gorm:"column:body_html"`
	ReceivedAt  time.Time `gorm:"column:received_at;index"`
	Embedding   Vector    `gorm:"column:embedding;type:jsonb"`
	Summary     *string   `gorm:"column:summary"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (EmailMessage) TableName() string {
	return "email_message"
}

// Enriched reports whether the message already carries an embedding.
func (m *EmailMessage) Enriched() bool {
	return len(m.Embedding) > 0
}
