package model

import "time"

// UserEntitlement is a user's current plan and usage within the billing cycle.
// Rows are created lazily with free defaults and never deleted.
type UserEntitlement struct {
	UserID             string     `gorm:"primaryKey;size:255" json:"userId"`
	PlanID             string     `gorm:"not null;size:50" json:"plan"`
	MonthlyQuota       int        `gorm:"not null" json:"monthlyQuota"` // -1 = unlimited
	UsageCount         int        `gorm:"not null" json:"usageCount"`
	HasUnlimitedAccess bool       `gorm:"not null" json:"hasUnlimitedAccess"`
	LastResetAt        time.Time  `gorm:"not null" json:"lastResetAt"`
	PlanEventAt        *time.Time `json:"planEventAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for GORM
func (UserEntitlement) TableName() string {
	return "user_entitlements"
}

// Unlimited reports whether usage is uncapped.
func (e *UserEntitlement) Unlimited() bool {
	return e.HasUnlimitedAccess || e.MonthlyQuota < 0
}

// CanPerformAction reports whether one more gated action fits in the quota.
func (e *UserEntitlement) CanPerformAction() bool {
	return e.Unlimited() || e.UsageCount < e.MonthlyQuota
}

// Remaining returns the actions left this cycle, or -1 when unlimited.
func (e *UserEntitlement) Remaining() int {
	if e.Unlimited() {
		return -1
	}
	if e.UsageCount >= e.MonthlyQuota {
		return 0
	}
	return e.MonthlyQuota - e.UsageCount
}

// CycleExpired reports whether a month has passed since the last reset.
func (e *UserEntitlement) CycleExpired(now time.Time) bool {
	return !now.Before(e.LastResetAt.AddDate(0, 1, 0))
}

// SupersededBy reports whether a provider event that occurred at t is older
// than the event behind the current plan (PlanEventAt). A zero t is never
// superseded.
func (e *UserEntitlement) SupersededBy(t time.Time) bool {
	return !t.IsZero() && e.PlanEventAt != nil && t.Before(*e.PlanEventAt)
}
