package database

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/adapter/repository"
	"github.com/fullmeo/aimastery-billing/internal/adapter/repository/memory"
	"github.com/fullmeo/aimastery-billing/internal/config"
	domainRepo "github.com/fullmeo/aimastery-billing/internal/domain/repository"
)

// NewStore opens the store selected by cfg.Driver and runs migrations where
// they apply. The returned func releases the store.
func NewStore(cfg *config.DatabaseConfig, log *zap.Logger) (domainRepo.Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("Using in-memory store; state is lost on restart",
			zap.Int("max_applied_keys", cfg.MaxAppliedKeys))
		return memory.New(cfg.MaxAppliedKeys), func() error { return nil }, nil

	case config.DriverPostgres:
		db, err := NewConnection(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		if err := Migrate(db, log); err != nil {
			_ = Close(db, log)
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repository.NewGormStore(db, log), func() error { return Close(db, log) }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
