package model

import (
	"database/sql/driver"
	"time"
)

// WebhookStatus represents the processing status of a provider event
type WebhookStatus string

const (
	WebhookStatusCompleted WebhookStatus = "completed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// Scan implements sql.Scanner interface
func (w *WebhookStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*w = WebhookStatus(v)
	case []byte:
		*w = WebhookStatus(v)
	default:
		*w = WebhookStatusFailed
	}
	return nil
}

// Value implements driver.Valuer interface
func (w WebhookStatus) Value() (driver.Value, error) {
	return string(w), nil
}

// WebhookEvent records a provider event the processor has seen. A completed
// row is the idempotency marker: its effects have been committed.
type WebhookEvent struct {
	ID                 int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ProviderEventID    string        `gorm:"unique;not null;size:255" json:"provider_event_id"`
	EventType          string        `gorm:"not null;size:100;index" json:"event_type"`
	Status             WebhookStatus `gorm:"type:webhook_status;not null;index" json:"status"`
	ProcessedAt        *time.Time    `json:"processed_at,omitempty"`
	ProcessingAttempts int           `gorm:"not null" json:"processing_attempts"`
	LastError          *string       `json:"last_error,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// Applied reports whether the event's effects have been committed.
func (w *WebhookEvent) Applied() bool {
	return w != nil && w.Status == WebhookStatusCompleted
}
