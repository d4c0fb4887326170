package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	domainRepo "github.com/fullmeo/aimastery-billing/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookRepository creates a new webhook event repository
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WebhookEventRepository {
	return &webhookRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a webhook event by provider event ID
func (r *webhookRepository) Get(ctx context.Context, providerEventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent

	err := r.db.WithContext(ctx).
		Where("provider_event_id = ?", providerEventID).
		First(&event).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get webhook event",
			zap.String("event_id", providerEventID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return &event, nil
}

// IsApplied reports whether the event's effects were committed
func (r *webhookRepository) IsApplied(ctx context.Context, providerEventID string) (bool, error) {
	event, err := r.Get(ctx, providerEventID)
	if err != nil {
		return false, err
	}
	return event.Applied(), nil
}

// MarkApplied records a webhook event as processed
func (r *webhookRepository) MarkApplied(ctx context.Context, providerEventID, eventType string) error {
	now := time.Now()
	event := &model.WebhookEvent{
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Status:          model.WebhookStatusCompleted,
		ProcessedAt:     &now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "processed_at", "updated_at"}),
		}).
		Create(event).Error

	if err != nil {
		r.logger.Error("Failed to mark webhook as processed",
			zap.String("event_id", providerEventID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return fmt.Errorf("failed to mark webhook as processed: %w", err)
	}

	return nil
}

// MarkFailed records a failed processing attempt
func (r *webhookRepository) MarkFailed(ctx context.Context, providerEventID, eventType string, cause error) error {
	errorMsg := cause.Error()
	event := &model.WebhookEvent{
		ProviderEventID:    providerEventID,
		EventType:          eventType,
		Status:             model.WebhookStatusFailed,
		ProcessingAttempts: 1,
		LastError:          &errorMsg,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_event_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":              model.WebhookStatusFailed,
				"processing_attempts": gorm.Expr("webhook_events.processing_attempts + 1"),
				"last_error":          errorMsg,
				"updated_at":          time.Now(),
			}),
		}).
		Create(event).Error

	if err != nil {
		r.logger.Error("Failed to mark webhook as failed",
			zap.String("event_id", providerEventID),
			zap.Error(err))
		return fmt.Errorf("failed to mark webhook as failed: %w", err)
	}

	return nil
}
