package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type ScheduledSendStatus string

const (
	SendStatusPending ScheduledSendStatus = "pending" // Waiting for its scheduled time
	SendStatusSent    ScheduledSendStatus = "sent"    // Delivered, terminal
	SendStatusFailed  ScheduledSendStatus = "failed"  // Terminal, re-queue is an operator action
)

// ScheduledSend represents a deferred outbound email. The status machine is
// pending -> sent | failed; both outcomes are terminal and the handler never
// transitions a row out of a terminal state.
type ScheduledSend struct {
	ID          string              `gorm:"column:id;primaryKey"`
	AccountID   string              `gorm:"column:account_id;index"`
	Status      ScheduledSendStatus `gorm:"column:status;index"`
	ScheduledAt time.Time           `gorm:"column:scheduled_at;index"`
	Payload     SendPayload         `gorm:"column:payload;type:jsonb"`
	SentAt      *time.Time          `gorm:"column:sent_at"`
	LastError   *string             `gorm:"column:last_error"`
	CreatedAt   time.Time           `gorm:"column:created_at"`
	UpdatedAt   time.Time           `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (ScheduledSend) TableName() string {
	return "scheduled_send"
}

type SendPayloadType string

const (
	SendPayloadRest  SendPayloadType = "rest"  // Flat REST-style send
	SendPayloadGmail SendPayloadType = "gmail" // Structured compose via the account's Gmail session
)

// Attachment is a base64-encoded file attached to an outbound send.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

// RestSendPayload is the flat REST-style variant.
type RestSendPayload struct {
	To          []string     `json:"to"`
	CC          []string     `json:"cc,omitempty"`
	BCC         []string     `json:"bcc,omitempty"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	BodyHTML    string       `json:"bodyHtml,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	TrackOpens  bool         `json:"trackOpens,omitempty"`
}

// GmailSendPayload is the structured provider-SDK variant, composed inside
// the account's Gmail session so replies keep their thread.
type GmailSendPayload struct {
	To         []string `json:"to"`
	CC         []string `json:"cc,omitempty"`
	BCC        []string `json:"bcc,omitempty"`
	Subject    string   `json:"subject"`
	BodyHTML   string   `json:"bodyHtml"`
	ThreadID   string   `json:"threadId,omitempty"`
	InReplyTo  string   `json:"inReplyTo,omitempty"`
	References string   `json:"references,omitempty"`
	TrackOpens bool     `json:"trackOpens,omitempty"`
}

// SendPayload is a tagged union over the two send variants. Exactly one of
// Rest/Gmail is non-nil for a valid payload; dispatch switches on Type and
// treats unknown tags as a permanent failure.
type SendPayload struct {
	Type  SendPayloadType
	Rest  *RestSendPayload
	Gmail *GmailSendPayload
}

var ErrInvalidSendPayload = errors.New("invalid send payload")

// Validate checks the tag and the variant-specific required fields. It never
// mutates the payload; a payload that fails validation will not heal itself,
// so callers mark the owning row failed.
func (p SendPayload) Validate() error {
	switch p.Type {
	case SendPayloadRest:
		if p.Rest == nil {
			return fmt.Errorf("%w: missing rest fields", ErrInvalidSendPayload)
		}
		if len(p.Rest.To) == 0 {
			return fmt.Errorf("%w: rest payload has no recipients", ErrInvalidSendPayload)
		}
		if p.Rest.Subject == "" || (p.Rest.Body == "" && p.Rest.BodyHTML == "") {
			return fmt.Errorf("%w: rest payload missing subject or body", ErrInvalidSendPayload)
		}
		return nil
	case SendPayloadGmail:
		if p.Gmail == nil {
			return fmt.Errorf("%w: missing gmail fields", ErrInvalidSendPayload)
		}
		if len(p.Gmail.To) == 0 {
			return fmt.Errorf("%w: gmail payload has no recipients", ErrInvalidSendPayload)
		}
		if p.Gmail.BodyHTML == "" {
			return fmt.Errorf("%w: gmail payload missing body", ErrInvalidSendPayload)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown payload type %q", ErrInvalidSendPayload, p.Type)
	}
}

// TrackOpensRequested reports whether the payload asked for open tracking.
func (p SendPayload) TrackOpensRequested() bool {
	switch p.Type {
	case SendPayloadRest:
		return p.Rest != nil && p.Rest.TrackOpens
	case SendPayloadGmail:
		return p.Gmail != nil && p.Gmail.TrackOpens
	default:
		return false
	}
}

// MarshalJSON flattens the active variant next to the "type" discriminant,
// matching the shape the frontend writes into the payload column.
func (p SendPayload) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case SendPayloadRest:
		if p.Rest == nil {
			return nil, fmt.Errorf("%w: missing rest fields", ErrInvalidSendPayload)
		}
		return marshalTagged(string(p.Type), *p.Rest)
	case SendPayloadGmail:
		if p.Gmail == nil {
			return nil, fmt.Errorf("%w: missing gmail fields", ErrInvalidSendPayload)
		}
		return marshalTagged(string(p.Type), *p.Gmail)
	default:
		return nil, fmt.Errorf("%w: unknown payload type %q", ErrInvalidSendPayload, p.Type)
	}
}

func marshalTagged(tag string, variant interface{}) ([]byte, error) {
	raw, err := json.Marshal(variant)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(fmt.Sprintf("%q", tag))
	return json.Marshal(fields)
}

// UnmarshalJSON reads the discriminant and decodes the matching variant.
// Unknown tags do not fail here: the row must still load so the handler can
// mark it failed instead of erroring on the read.
func (p *SendPayload) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type SendPayloadType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	p.Type = probe.Type
	p.Rest = nil
	p.Gmail = nil

	switch probe.Type {
	case SendPayloadRest:
		var v RestSendPayload
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		p.Rest = &v
	case SendPayloadGmail:
		var v GmailSendPayload
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		p.Gmail = &v
	}
	return nil
}

// Value implements driver.Valuer for SendPayload
func (p SendPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for SendPayload
func (p *SendPayload) Scan(value interface{}) error {
	if value == nil {
		*p = SendPayload{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, p)
}
