package repository

import (
	"context"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
)

// RevenueRepository is the append-only revenue ledger.
type RevenueRepository interface {
	Append(ctx context.Context, event *model.RevenueEvent) error
	// List returns matching events in insertion order.
	List(ctx context.Context, filter model.RevenueFilter) ([]model.RevenueEvent, error)
}
