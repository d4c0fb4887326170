package repository

import (
	"context"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
)

// EntitlementRepository persists per-user entitlement state.
type EntitlementRepository interface {
	// Get returns nil, nil when the user has no row yet.
	Get(ctx context.Context, userID string) (*model.UserEntitlement, error)
	// Save inserts or fully overwrites the row for ent.UserID.
	Save(ctx context.Context, ent *model.UserEntitlement) error
}
