package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	domainRepo "github.com/fullmeo/aimastery-billing/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type entitlementRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewEntitlementRepository creates a new entitlement repository
func NewEntitlementRepository(db *gorm.DB, logger *zap.Logger) domainRepo.EntitlementRepository {
	return &entitlementRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the entitlement row of a user
func (r *entitlementRepository) Get(ctx context.Context, userID string) (*model.UserEntitlement, error) {
	var ent model.UserEntitlement

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&ent).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get user entitlement",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user entitlement: %w", err)
	}

	return &ent, nil
}

// Save upserts the entitlement row
func (r *entitlementRepository) Save(ctx context.Context, ent *model.UserEntitlement) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(ent).Error

	if err != nil {
		r.logger.Error("Failed to save user entitlement",
			zap.String("user_id", ent.UserID),
			zap.String("plan", ent.PlanID),
			zap.Error(err))
		return fmt.Errorf("failed to save user entitlement: %w", err)
	}

	return nil
}
