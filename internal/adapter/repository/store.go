package repository

import (
	"context"

	domainRepo "github.com/fullmeo/aimastery-billing/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormStore is the postgres-backed store.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates a store over db
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

func (s *GormStore) Entitlements() domainRepo.EntitlementRepository {
	return NewEntitlementRepository(s.db, s.logger)
}

func (s *GormStore) Revenue() domainRepo.RevenueRepository {
	return NewRevenueRepository(s.db, s.logger)
}

func (s *GormStore) WebhookEvents() domainRepo.WebhookEventRepository {
	return NewWebhookRepository(s.db, s.logger)
}

// Transaction runs fn inside a database transaction. Nested calls use savepoints.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx domainRepo.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, logger: s.logger})
	})
}
