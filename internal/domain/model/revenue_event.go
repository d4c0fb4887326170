package model

import (
	"database/sql/driver"
	"time"
)

// RevenueStatus is the settlement state of a revenue event
type RevenueStatus string

const (
	RevenueStatusCompleted RevenueStatus = "completed"
	RevenueStatusPending   RevenueStatus = "pending"
	RevenueStatusFailed    RevenueStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s RevenueStatus) Valid() bool {
	switch s {
	case RevenueStatusCompleted, RevenueStatusPending, RevenueStatusFailed:
		return true
	}
	return false
}

// Scan implements sql.Scanner interface
func (s *RevenueStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = RevenueStatus(v)
	case []byte:
		*s = RevenueStatus(v)
	default:
		*s = RevenueStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s RevenueStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// RevenueEvent is one append-only ledger entry. Seq preserves insertion order.
type RevenueEvent struct {
	Seq           int64         `gorm:"primaryKey;autoIncrement" json:"-"`
	EventID       string        `gorm:"column:event_id;type:uuid;uniqueIndex;not null" json:"id"`
	UserID        string        `gorm:"not null;size:255;index" json:"userId"`
	Amount        int64         `gorm:"not null" json:"amount"` // minor units
	Currency      string        `gorm:"not null;size:3" json:"currency"`
	PlanID        string        `gorm:"column:plan;not null;size:50;index" json:"plan"`
	Status        RevenueStatus `gorm:"type:revenue_status;not null;index" json:"status"`
	Timestamp     time.Time     `gorm:"column:occurred_at;not null;index" json:"timestamp"`
	Metadata      JSONB         `gorm:"type:jsonb" json:"metadata,omitempty"`
	SourceEventID *string       `gorm:"size:255;uniqueIndex" json:"sourceEventId,omitempty"`
}

// TableName specifies the table name for GORM
func (RevenueEvent) TableName() string {
	return "revenue_events"
}

// RevenueFilter selects ledger entries. Bounds are inclusive; zero values
// mean "no constraint".
type RevenueFilter struct {
	Start  *time.Time
	End    *time.Time
	PlanID string
	Status RevenueStatus
	UserID string
}

// Matches reports whether e passes the filter.
func (f RevenueFilter) Matches(e *RevenueEvent) bool {
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	if f.PlanID != "" && e.PlanID != f.PlanID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	return true
}
