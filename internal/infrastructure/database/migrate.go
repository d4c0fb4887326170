package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
)

// enumTypes must exist before AutoMigrate references them.
var enumTypes = []struct {
	name   string
	values string
}{
	{"revenue_status", `'completed', 'pending', 'failed'`},
	{"webhook_status", `'completed', 'failed'`},
}

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	if err := createCustomTypes(db); err != nil {
		logger.Error("Failed to create custom types", zap.Error(err))
		return err
	}

	err := db.AutoMigrate(
		&model.UserEntitlement{},
		&model.RevenueEvent{},
		&model.WebhookEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomTypes creates custom PostgreSQL types
func createCustomTypes(db *gorm.DB) error {
	for _, t := range enumTypes {
		var exists bool
		if err := db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = ?)`, t.name).Scan(&exists).Error; err != nil {
			return fmt.Errorf("check type %s: %w", t.name, err)
		}
		if exists {
			continue
		}
		if err := db.Exec(fmt.Sprintf(`CREATE TYPE %s AS ENUM (%s)`, t.name, t.values)).Error; err != nil {
			return fmt.Errorf("create type %s: %w", t.name, err)
		}
	}
	return nil
}

// createCustomIndexes creates indexes that GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	// MRR and report scans read completed events by time.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_revenue_events_completed ON revenue_events (occurred_at) WHERE status = 'completed'`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_failed ON webhook_events (updated_at) WHERE status = 'failed'`).Error; err != nil {
		return err
	}
	return nil
}
