package repository

import (
	"context"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
)

// WebhookEventRepository tracks which provider events have been applied.
type WebhookEventRepository interface {
	// Get returns nil, nil for unseen events.
	Get(ctx context.Context, providerEventID string) (*model.WebhookEvent, error)
	IsApplied(ctx context.Context, providerEventID string) (bool, error)
	// MarkApplied records the event as completed.
	MarkApplied(ctx context.Context, providerEventID, eventType string) error
	// MarkFailed records a failed attempt and its error.
	MarkFailed(ctx context.Context, providerEventID, eventType string, cause error) error
}
