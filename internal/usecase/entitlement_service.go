package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	"github.com/fullmeo/aimastery-billing/internal/domain/repository"
)

// ErrStalePlanChange is returned by the *In variants when the provider event
// driving the change is older than the one behind the user's current plan.
var ErrStalePlanChange = errors.New("plan change superseded by a later provider event")

// EntitlementService owns per-user plan and quota state. Every
// read-modify-write of one user's row runs inside that user's critical
// section.
type EntitlementService struct {
	store  repository.Store
	locks  *userLocks
	now    func() time.Time
	logger *zap.Logger
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(store repository.Store, logger *zap.Logger) *EntitlementService {
	return &EntitlementService{
		store:  store,
		locks:  newUserLocks(),
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source used for cycle resets.
func (s *EntitlementService) WithClock(now func() time.Time) *EntitlementService {
	s.now = now
	return s
}

// GetState returns the user's entitlement, creating the free default on first
// access and resetting usage when the billing cycle has rolled over.
func (s *EntitlementService) GetState(ctx context.Context, userID string) (*model.UserEntitlement, error) {
	if userID == "" {
		return nil, domainErrors.ErrMissingIdentity
	}

	var ent *model.UserEntitlement
	err := s.WithUserLock(userID, func() error {
		var err error
		ent, err = s.loadIn(ctx, s.store.Entitlements(), userID)
		return err
	})
	return ent, err
}

// CanPerformAction reports whether the user may perform one more gated action.
func (s *EntitlementService) CanPerformAction(ctx context.Context, userID string) (bool, error) {
	ent, err := s.GetState(ctx, userID)
	if err != nil {
		return false, err
	}
	return ent.CanPerformAction(), nil
}

// RecordUsage counts one gated action. It fails with ErrQuotaExceeded and
// leaves the counter untouched when the quota is used up.
func (s *EntitlementService) RecordUsage(ctx context.Context, userID string) (*model.UserEntitlement, error) {
	if userID == "" {
		return nil, domainErrors.ErrMissingIdentity
	}

	var ent *model.UserEntitlement
	err := s.WithUserLock(userID, func() error {
		repo := s.store.Entitlements()

		current, err := s.loadIn(ctx, repo, userID)
		if err != nil {
			return err
		}
		if !current.CanPerformAction() {
			ent = current
			return domainErrors.ErrQuotaExceeded
		}

		current.UsageCount++
		current.UpdatedAt = s.now()
		if err := repo.Save(ctx, current); err != nil {
			return storeError("save entitlement", err)
		}
		ent = current
		return nil
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrQuotaExceeded) {
			s.logger.Info("Usage rejected, quota exceeded",
				zap.String("user_id", userID),
				zap.String("plan", ent.PlanID),
				zap.Int("usage_count", ent.UsageCount),
				zap.Int("monthly_quota", ent.MonthlyQuota))
		}
		return ent, err
	}
	return ent, nil
}

// ApplyUpgrade moves the user onto planID.
func (s *EntitlementService) ApplyUpgrade(ctx context.Context, userID, planID string) (*model.UserEntitlement, error) {
	if userID == "" {
		return nil, domainErrors.ErrMissingIdentity
	}

	var ent *model.UserEntitlement
	err := s.WithUserLock(userID, func() error {
		var err error
		ent, err = s.ApplyUpgradeIn(ctx, s.store.Entitlements(), userID, planID, time.Time{})
		return err
	})
	return ent, err
}

// DowngradeToFree moves the user back to the free plan. Usage is kept until
// the next cycle reset.
func (s *EntitlementService) DowngradeToFree(ctx context.Context, userID string) (*model.UserEntitlement, error) {
	if userID == "" {
		return nil, domainErrors.ErrMissingIdentity
	}

	var ent *model.UserEntitlement
	err := s.WithUserLock(userID, func() error {
		var err error
		ent, err = s.DowngradeToFreeIn(ctx, s.store.Entitlements(), userID, time.Time{})
		return err
	})
	return ent, err
}

// ResetExpiredCycle zeroes usage if a month has passed since the last reset.
// It reports whether a reset happened.
func (s *EntitlementService) ResetExpiredCycle(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, domainErrors.ErrMissingIdentity
	}

	var reset bool
	err := s.WithUserLock(userID, func() error {
		repo := s.store.Entitlements()
		ent, err := repo.Get(ctx, userID)
		if err != nil {
			return storeError("get entitlement", err)
		}
		if ent == nil {
			return nil
		}
		if reset = s.resetIfExpired(ent); reset {
			if err := repo.Save(ctx, ent); err != nil {
				return storeError("save entitlement", err)
			}
		}
		return nil
	})
	return reset, err
}

// WithUserLock runs fn inside userID's critical section. Callers that combine
// entitlement changes with other writes in one store transaction take the
// lock first and use the *In variants inside.
func (s *EntitlementService) WithUserLock(userID string, fn func() error) error {
	unlock := s.locks.lock(userID)
	defer unlock()
	return fn()
}

// HasFeature reports whether the user's current plan includes feature.
func (s *EntitlementService) HasFeature(ctx context.Context, userID, feature string) (bool, *model.UserEntitlement, error) {
	if feature == "" {
		return false, nil, fmt.Errorf("%w: feature is required", domainErrors.ErrInvalidRequest)
	}

	ent, err := s.GetState(ctx, userID)
	if err != nil {
		return false, nil, err
	}

	plan, err := catalog.Lookup(ent.PlanID)
	if err != nil {
		return false, ent, err
	}
	return plan.HasFeature(feature), ent, nil
}

// ApplyUpgradeIn is ApplyUpgrade against repo. The caller must hold the user
// lock. A non-zero occurredAt is the provider time of the triggering event:
// it is recorded on the row, and the change is refused with
// ErrStalePlanChange when the row already reflects a later event.
func (s *EntitlementService) ApplyUpgradeIn(ctx context.Context, repo repository.EntitlementRepository, userID, planID string, occurredAt time.Time) (*model.UserEntitlement, error) {
	plan, err := catalog.Lookup(planID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrInvalidPlan, planID)
	}

	ent, err := s.loadIn(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	if ent.SupersededBy(occurredAt) {
		return ent, ErrStalePlanChange
	}

	previous := ent.PlanID
	setPlan(ent, plan)
	markPlanEvent(ent, occurredAt)
	ent.UpdatedAt = s.now()
	if err := repo.Save(ctx, ent); err != nil {
		return nil, storeError("save entitlement", err)
	}

	s.logger.Info("Entitlement upgraded",
		zap.String("user_id", userID),
		zap.String("from_plan", previous),
		zap.String("to_plan", plan.ID),
		zap.Int("monthly_quota", ent.MonthlyQuota))

	return ent, nil
}

// DowngradeToFreeIn is DowngradeToFree against repo. The caller must hold the
// user lock; occurredAt behaves as in ApplyUpgradeIn.
func (s *EntitlementService) DowngradeToFreeIn(ctx context.Context, repo repository.EntitlementRepository, userID string, occurredAt time.Time) (*model.UserEntitlement, error) {
	ent, err := s.loadIn(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	if ent.SupersededBy(occurredAt) {
		return ent, ErrStalePlanChange
	}

	previous := ent.PlanID
	setPlan(ent, catalog.Free())
	markPlanEvent(ent, occurredAt)
	ent.UpdatedAt = s.now()
	if err := repo.Save(ctx, ent); err != nil {
		return nil, storeError("save entitlement", err)
	}

	s.logger.Info("Entitlement downgraded to free",
		zap.String("user_id", userID),
		zap.String("from_plan", previous),
		zap.Int("usage_count", ent.UsageCount))

	return ent, nil
}

// loadIn returns the user's row, creating or cycle-resetting it as needed.
func (s *EntitlementService) loadIn(ctx context.Context, repo repository.EntitlementRepository, userID string) (*model.UserEntitlement, error) {
	ent, err := repo.Get(ctx, userID)
	if err != nil {
		return nil, storeError("get entitlement", err)
	}

	if ent == nil {
		now := s.now()
		ent = &model.UserEntitlement{
			UserID:      userID,
			LastResetAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		setPlan(ent, catalog.Free())
		if err := repo.Save(ctx, ent); err != nil {
			return nil, storeError("create entitlement", err)
		}
		return ent, nil
	}

	if s.resetIfExpired(ent) {
		if err := repo.Save(ctx, ent); err != nil {
			return nil, storeError("save entitlement", err)
		}
	}
	return ent, nil
}

func (s *EntitlementService) resetIfExpired(ent *model.UserEntitlement) bool {
	now := s.now()
	if !ent.CycleExpired(now) {
		return false
	}

	s.logger.Info("Billing cycle reset",
		zap.String("user_id", ent.UserID),
		zap.Int("usage_count", ent.UsageCount),
		zap.Time("last_reset_at", ent.LastResetAt))

	ent.UsageCount = 0
	ent.LastResetAt = now
	ent.UpdatedAt = now
	return true
}

func setPlan(ent *model.UserEntitlement, plan catalog.Plan) {
	ent.PlanID = plan.ID
	ent.MonthlyQuota = plan.MonthlyQuota
	ent.HasUnlimitedAccess = plan.IsUnlimited()
}

func markPlanEvent(ent *model.UserEntitlement, occurredAt time.Time) {
	if occurredAt.IsZero() {
		return
	}
	at := occurredAt.UTC()
	ent.PlanEventAt = &at
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domainErrors.ErrUpstreamUnavailable, op, err)
}

// userLocks hands out one mutex per user id and forgets it once nobody holds
// or waits for it.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()

	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
