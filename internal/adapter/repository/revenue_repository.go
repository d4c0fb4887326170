package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	domainRepo "github.com/fullmeo/aimastery-billing/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type revenueRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRevenueRepository creates a new revenue ledger repository
func NewRevenueRepository(db *gorm.DB, logger *zap.Logger) domainRepo.RevenueRepository {
	return &revenueRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts a ledger entry. Entries are never updated.
func (r *revenueRepository) Append(ctx context.Context, event *model.RevenueEvent) error {
	err := r.db.WithContext(ctx).Create(event).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) && event.SourceEventID != nil {
		return fmt.Errorf("%w: %s", domainRepo.ErrAlreadyRecorded, *event.SourceEventID)
	}
	if err != nil {
		r.logger.Error("Failed to append revenue event",
			zap.String("event_id", event.EventID),
			zap.String("user_id", event.UserID),
			zap.Int64("amount", event.Amount),
			zap.Error(err))
		return fmt.Errorf("failed to append revenue event: %w", err)
	}
	return nil
}

// List returns ledger entries matching filter in insertion order
func (r *revenueRepository) List(ctx context.Context, filter model.RevenueFilter) ([]model.RevenueEvent, error) {
	query := r.db.WithContext(ctx).Model(&model.RevenueEvent{})

	if filter.Start != nil {
		query = query.Where("occurred_at >= ?", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("occurred_at <= ?", *filter.End)
	}
	if filter.PlanID != "" {
		query = query.Where("plan = ?", filter.PlanID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var events []model.RevenueEvent
	if err := query.Order("seq ASC").Find(&events).Error; err != nil {
		r.logger.Error("Failed to list revenue events", zap.Error(err))
		return nil, fmt.Errorf("failed to list revenue events: %w", err)
	}

	return events, nil
}
