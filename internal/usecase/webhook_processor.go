package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	"github.com/fullmeo/aimastery-billing/internal/domain/event"
	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	"github.com/fullmeo/aimastery-billing/internal/domain/provider"
	"github.com/fullmeo/aimastery-billing/internal/domain/repository"
	pkgerrors "github.com/fullmeo/aimastery-billing/pkg/errors"
	"github.com/fullmeo/aimastery-billing/pkg/messaging"
)

// Outcome is the terminal state of a verified webhook delivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Notification types published after a webhook transaction commits.
const (
	NotificationUpgraded   = "entitlement.upgraded"
	NotificationUpdated    = "entitlement.updated"
	NotificationDowngraded = "entitlement.downgraded"
	NotificationRevenue    = "revenue.recorded"
)

// ReasonSuperseded is the ignored reason of a plan-only event older than the
// event behind the user's current plan.
const ReasonSuperseded = "superseded by a later plan change"

// WebhookVerifier authenticates a raw provider payload.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (*provider.WebhookEvent, error)
}

// EventClassifier maps a verified provider event to a domain event.
type EventClassifier interface {
	Classify(evt *provider.WebhookEvent) event.Event
}

// ProcessResult describes what happened to one delivery.
type ProcessResult struct {
	EventID   string  `json:"eventId"`
	EventType string  `json:"eventType"`
	Outcome   Outcome `json:"status"`
	Reason    string  `json:"reason,omitempty"`
}

// Notification is published on the billing events channel.
type Notification struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	PlanID     string    `json:"plan_id"`
	EventID    string    `json:"event_id"`
	Amount     int64     `json:"amount,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WebhookProcessorConfig bounds local retries of a failing apply.
type WebhookProcessorConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	Channel     string
}

// WebhookProcessor verifies provider deliveries and applies each event at
// most once: entitlement change, ledger entry and applied mark commit in one
// store transaction.
type WebhookProcessor struct {
	verifier     WebhookVerifier
	classifier   EventClassifier
	store        repository.Store
	entitlements *EntitlementService
	ledger       *RevenueLedger
	publisher    messaging.Publisher
	cfg          WebhookProcessorConfig
	inflight     singleflight.Group
	logger       *zap.Logger
}

// NewWebhookProcessor creates a new webhook processor
func NewWebhookProcessor(
	verifier WebhookVerifier,
	classifier EventClassifier,
	store repository.Store,
	entitlements *EntitlementService,
	ledger *RevenueLedger,
	publisher messaging.Publisher,
	cfg WebhookProcessorConfig,
	logger *zap.Logger,
) *WebhookProcessor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &WebhookProcessor{
		verifier:     verifier,
		classifier:   classifier,
		store:        store,
		entitlements: entitlements,
		ledger:       ledger,
		publisher:    publisher,
		cfg:          cfg,
		logger:       logger,
	}
}

// Process runs one delivery to a terminal state. Signature failures return
// ErrSignatureInvalid with nothing written; apply failures that survive the
// local retries return ErrUpstreamUnavailable so the provider redelivers.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (*ProcessResult, error) {
	verified, err := p.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		p.logger.Warn("Webhook signature verification failed", zap.Error(err))
		if !errors.Is(err, domainErrors.ErrSignatureInvalid) {
			err = fmt.Errorf("%w: %v", domainErrors.ErrSignatureInvalid, err)
		}
		return nil, err
	}

	// A verified event must not be abandoned half-applied.
	ctx = context.WithoutCancel(ctx)

	evt := p.classifier.Classify(verified)
	if u, ok := evt.(event.Unrecognized); ok {
		p.logger.Info("Webhook event not handled",
			zap.String("event_id", u.ID),
			zap.String("event_type", u.Type),
			zap.String("reason", u.Reason))
		return &ProcessResult{EventID: u.ID, EventType: u.Type, Outcome: OutcomeIgnored, Reason: u.Reason}, nil
	}

	v, err, shared := p.inflight.Do(verified.EventID, func() (interface{}, error) {
		return p.apply(ctx, verified, evt)
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*ProcessResult)
	if shared {
		p.logger.Debug("Concurrent delivery collapsed", zap.String("event_id", verified.EventID))
	}
	return &result, nil
}

func (p *WebhookProcessor) apply(ctx context.Context, verified *provider.WebhookEvent, evt event.Event) (*ProcessResult, error) {
	result := &ProcessResult{EventID: verified.EventID, EventType: verified.EventType}
	backoff := p.cfg.Backoff

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		outcome, reason, notes, err := p.applyOnce(ctx, verified, evt)
		if err == nil {
			result.Outcome = outcome
			result.Reason = reason
			p.logger.Info("Webhook event processed",
				zap.String("event_id", verified.EventID),
				zap.String("event_type", verified.EventType),
				zap.String("outcome", string(outcome)),
				zap.Int("attempt", attempt))
			p.publish(ctx, notes)
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			// Retrying will not change the outcome; acknowledge and keep the error on record.
			p.recordFailure(ctx, verified, err)
			pkgerrors.LogError(p.logger, err, "Webhook event rejected",
				zap.String("event_id", verified.EventID),
				zap.String("event_type", verified.EventType))
			result.Outcome = OutcomeIgnored
			result.Reason = err.Error()
			return result, nil
		}

		p.logger.Warn("Webhook apply attempt failed",
			zap.String("event_id", verified.EventID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.cfg.MaxAttempts),
			zap.Error(err))

		if attempt < p.cfg.MaxAttempts && backoff > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	p.recordFailure(ctx, verified, lastErr)
	pkgerrors.LogError(p.logger, lastErr, "Webhook event failed",
		zap.String("event_id", verified.EventID),
		zap.String("event_type", verified.EventType))

	if errors.Is(lastErr, domainErrors.ErrUpstreamUnavailable) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", domainErrors.ErrUpstreamUnavailable, lastErr)
}

func (p *WebhookProcessor) applyOnce(ctx context.Context, verified *provider.WebhookEvent, evt event.Event) (Outcome, string, []Notification, error) {
	var (
		outcome Outcome
		reason  string
		notes   []Notification
	)

	// User lock before the store transaction, the same order RecordUsage uses.
	err := p.entitlements.WithUserLock(evt.UserID(), func() error {
		return p.store.Transaction(ctx, func(tx repository.Store) error {
			applied, err := tx.WebhookEvents().IsApplied(ctx, verified.EventID)
			if err != nil {
				return storeError("check applied event", err)
			}
			if applied {
				outcome = OutcomeDuplicate
				return nil
			}

			v := &applyVisitor{ctx: ctx, tx: tx, entitlements: p.entitlements, ledger: p.ledger, logger: p.logger}
			if err := evt.Accept(v); err != nil {
				return err
			}

			// Superseded events are marked too, so a redelivery is a duplicate.
			if err := tx.WebhookEvents().MarkApplied(ctx, verified.EventID, verified.EventType); err != nil {
				return storeError("mark event applied", err)
			}
			outcome = OutcomeApplied
			if v.superseded != "" {
				outcome = OutcomeIgnored
				reason = v.superseded
			}
			notes = v.notes
			return nil
		})
	})
	if errors.Is(err, repository.ErrAlreadyRecorded) {
		// The applied mark was forgotten but the ledger still holds the entry.
		p.logger.Warn("Ledger already holds event, treating as duplicate",
			zap.String("event_id", verified.EventID))
		return OutcomeDuplicate, "", nil, nil
	}
	if err != nil {
		return "", "", nil, err
	}
	return outcome, reason, notes, nil
}

func (p *WebhookProcessor) recordFailure(ctx context.Context, verified *provider.WebhookEvent, cause error) {
	if err := p.store.WebhookEvents().MarkFailed(ctx, verified.EventID, verified.EventType, cause); err != nil {
		p.logger.Error("Failed to record webhook failure",
			zap.String("event_id", verified.EventID),
			zap.Error(err))
	}
}

func (p *WebhookProcessor) publish(ctx context.Context, notes []Notification) {
	for _, n := range notes {
		if err := p.publisher.Publish(ctx, p.cfg.Channel, n); err != nil {
			p.logger.Warn("Failed to publish billing notification",
				zap.String("type", n.Type),
				zap.String("event_id", n.EventID),
				zap.Error(err))
		}
	}
}

func retryable(err error) bool {
	return pkgerrors.CodeOf(err) != pkgerrors.ErrInvalidArgument
}

// applyVisitor applies one domain event inside a store transaction and
// collects the notifications to publish once it commits.
type applyVisitor struct {
	ctx          context.Context
	tx           repository.Store
	entitlements *EntitlementService
	ledger       *RevenueLedger
	logger       *zap.Logger
	notes        []Notification
	// superseded is set when the event only changes the plan and a later
	// provider event already did.
	superseded string
}

func (v *applyVisitor) VisitCheckoutCompleted(e event.CheckoutCompleted) error {
	ent, err := v.entitlements.ApplyUpgradeIn(v.ctx, v.tx.Entitlements(), e.User, e.PlanID, e.OccurredAt)
	switch {
	case errors.Is(err, ErrStalePlanChange):
		// The payment still happened; only the plan change is dropped.
		v.logStale(e.Header, e.User, ent)
	case err != nil:
		return err
	default:
		v.note(NotificationUpgraded, e.ID, e.User, ent.PlanID, 0, "")
	}

	return v.record(e.Header, e.User, e.PlanID, e.Amount, e.Currency, model.RevenueStatusCompleted,
		map[string]interface{}{"session_id": e.SessionID})
}

func (v *applyVisitor) VisitRecurringPaymentSucceeded(e event.RecurringPaymentSucceeded) error {
	return v.record(e.Header, e.User, e.PlanID, e.Amount, e.Currency, model.RevenueStatusCompleted,
		map[string]interface{}{"invoice_id": e.InvoiceID})
}

func (v *applyVisitor) VisitPaymentFailed(e event.PaymentFailed) error {
	return v.record(e.Header, e.User, e.PlanID, e.Amount, e.Currency, model.RevenueStatusFailed,
		map[string]interface{}{"invoice_id": e.InvoiceID})
}

func (v *applyVisitor) VisitSubscriptionUpdated(e event.SubscriptionUpdated) error {
	var (
		ent *model.UserEntitlement
		err error
		typ = NotificationUpdated
	)
	if e.Active {
		ent, err = v.entitlements.ApplyUpgradeIn(v.ctx, v.tx.Entitlements(), e.User, e.PlanID, e.OccurredAt)
	} else {
		typ = NotificationDowngraded
		ent, err = v.entitlements.DowngradeToFreeIn(v.ctx, v.tx.Entitlements(), e.User, e.OccurredAt)
	}
	if errors.Is(err, ErrStalePlanChange) {
		v.logStale(e.Header, e.User, ent)
		v.superseded = ReasonSuperseded
		return nil
	}
	if err != nil {
		return err
	}
	v.note(typ, e.ID, e.User, ent.PlanID, 0, e.Status)
	return nil
}

func (v *applyVisitor) VisitSubscriptionCancelled(e event.SubscriptionCancelled) error {
	ent, err := v.entitlements.DowngradeToFreeIn(v.ctx, v.tx.Entitlements(), e.User, e.OccurredAt)
	if errors.Is(err, ErrStalePlanChange) {
		v.logStale(e.Header, e.User, ent)
		v.superseded = ReasonSuperseded
		return nil
	}
	if err != nil {
		return err
	}
	v.note(NotificationDowngraded, e.ID, e.User, ent.PlanID, 0, "")
	return nil
}

func (v *applyVisitor) logStale(h event.Header, userID string, ent *model.UserEntitlement) {
	fields := []zap.Field{
		zap.String("event_id", h.ID),
		zap.String("event_type", h.Type),
		zap.String("user_id", userID),
		zap.Time("occurred_at", h.OccurredAt),
	}
	if ent != nil {
		fields = append(fields, zap.String("plan", ent.PlanID))
		if ent.PlanEventAt != nil {
			fields = append(fields, zap.Time("plan_event_at", *ent.PlanEventAt))
		}
	}
	v.logger.Warn("Plan change superseded by a later provider event", fields...)
}

func (v *applyVisitor) VisitUnrecognized(event.Unrecognized) error {
	return nil
}

func (v *applyVisitor) record(h event.Header, userID, planID string, amount int64, currency string, status model.RevenueStatus, metadata map[string]interface{}) error {
	metadata["event_type"] = h.Type
	evt, err := v.ledger.AppendIn(v.ctx, v.tx.Revenue(), RevenueEntry{
		UserID:        userID,
		Amount:        amount,
		Currency:      currency,
		PlanID:        planID,
		Status:        status,
		Metadata:      metadata,
		SourceEventID: h.ID,
	})
	if err != nil {
		return err
	}
	v.note(NotificationRevenue, h.ID, userID, planID, evt.Amount, string(evt.Status))
	return nil
}

func (v *applyVisitor) note(typ, eventID, userID, planID string, amount int64, status string) {
	v.notes = append(v.notes, Notification{
		Type:       typ,
		UserID:     userID,
		PlanID:     planID,
		EventID:    eventID,
		Amount:     amount,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	})
}
