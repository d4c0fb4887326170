package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	"github.com/fullmeo/aimastery-billing/internal/infrastructure/metrics"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
	pkgerrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

// PlanView is the wire form of a catalog plan.
type PlanView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Price        string   `json:"price"`
	Currency     string   `json:"currency"`
	TrialDays    int      `json:"trialDays"`
	MonthlyQuota int      `json:"monthlyQuota"`
	Unlimited    bool     `json:"unlimited"`
	Platforms    []string `json:"platforms"`
	Features     []string `json:"features"`
	Support      string   `json:"support"`
}

func newPlanView(p catalog.Plan) PlanView {
	return PlanView{
		ID:           p.ID,
		Name:         p.DisplayName,
		Price:        p.Price.StringFixed(2),
		Currency:     p.Currency,
		TrialDays:    p.TrialDays,
		MonthlyQuota: p.MonthlyQuota,
		Unlimited:    p.IsUnlimited(),
		Platforms:    p.Platforms,
		Features:     p.Features,
		Support:      p.Support,
	}
}

func planViews(plans []catalog.Plan) []PlanView {
	out := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		out = append(out, newPlanView(p))
	}
	return out
}

// UserPlanResponse is the plan query answer.
type UserPlanResponse struct {
	UserID      string     `json:"userId"`
	Plan        PlanView   `json:"plan"`
	UsageCount  int        `json:"usageCount"`
	Remaining   int        `json:"remaining"` // -1 = unlimited
	LastResetAt time.Time  `json:"lastResetAt"`
	NextResetAt time.Time  `json:"nextResetAt"`
	Upgrades    []PlanView `json:"upgrades"`
}

// EntitlementResponse is the gating decision plus the state it was made on.
type EntitlementResponse struct {
	Allowed            bool      `json:"allowed"`
	UserID             string    `json:"userId"`
	PlanID             string    `json:"plan"`
	MonthlyQuota       int       `json:"monthlyQuota"`
	UsageCount         int       `json:"usageCount"`
	Remaining          int       `json:"remaining"`
	HasUnlimitedAccess bool      `json:"hasUnlimitedAccess"`
	LastResetAt        time.Time `json:"lastResetAt"`
}

func newEntitlementResponse(ent *model.UserEntitlement) EntitlementResponse {
	return EntitlementResponse{
		Allowed:            ent.CanPerformAction(),
		UserID:             ent.UserID,
		PlanID:             ent.PlanID,
		MonthlyQuota:       ent.MonthlyQuota,
		UsageCount:         ent.UsageCount,
		Remaining:          ent.Remaining(),
		HasUnlimitedAccess: ent.HasUnlimitedAccess,
		LastResetAt:        ent.LastResetAt,
	}
}

type PlansHandler struct {
	entitlements *usecase.EntitlementService
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

func NewPlansHandler(entitlements *usecase.EntitlementService, m *metrics.Metrics, logger *zap.Logger) *PlansHandler {
	return &PlansHandler{
		entitlements: entitlements,
		metrics:      m,
		logger:       logger,
	}
}

// GetPlans handles GET /api/v1/plans
func (h *PlansHandler) GetPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"plans": planViews(catalog.All()),
	})
}

// GetUserPlan handles GET /api/user/:userId/plan
func (h *PlansHandler) GetUserPlan(c echo.Context) error {
	ent, err := h.entitlements.GetState(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return h.fail(c, err, "Failed to load entitlement")
	}

	plan, err := catalog.Lookup(ent.PlanID)
	if err != nil {
		return h.fail(c, err, "Entitlement references unknown plan")
	}

	return c.JSON(http.StatusOK, UserPlanResponse{
		UserID:      ent.UserID,
		Plan:        newPlanView(plan),
		UsageCount:  ent.UsageCount,
		Remaining:   ent.Remaining(),
		LastResetAt: ent.LastResetAt,
		NextResetAt: ent.LastResetAt.AddDate(0, 1, 0),
		Upgrades:    planViews(catalog.UpgradesFrom(plan.ID)),
	})
}

// GetEntitlement handles GET /api/user/:userId/entitlement
func (h *PlansHandler) GetEntitlement(c echo.Context) error {
	ent, err := h.entitlements.GetState(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return h.fail(c, err, "Failed to load entitlement")
	}
	return c.JSON(http.StatusOK, newEntitlementResponse(ent))
}

// FeatureResponse answers whether the user's plan includes a feature.
type FeatureResponse struct {
	UserID  string `json:"userId"`
	PlanID  string `json:"plan"`
	Feature string `json:"feature"`
	Allowed bool   `json:"allowed"`
}

// GetFeature handles GET /api/user/:userId/features/:feature
func (h *PlansHandler) GetFeature(c echo.Context) error {
	feature := c.Param("feature")
	allowed, ent, err := h.entitlements.HasFeature(c.Request().Context(), c.Param("userId"), feature)
	if err != nil {
		return h.fail(c, err, "Failed to check feature")
	}
	return c.JSON(http.StatusOK, FeatureResponse{
		UserID:  ent.UserID,
		PlanID:  ent.PlanID,
		Feature: feature,
		Allowed: allowed,
	})
}

// RecordUsage handles POST /api/user/:userId/usage
func (h *PlansHandler) RecordUsage(c echo.Context) error {
	ent, err := h.entitlements.RecordUsage(c.Request().Context(), c.Param("userId"))
	if err != nil {
		if ent != nil && pkgerrors.CodeOf(err) == pkgerrors.ErrQuotaExceeded {
			h.metrics.ObserveUsage(ent.PlanID, "rejected")
			h.logger.Info("Usage rejected",
				zap.String("user_id", ent.UserID),
				zap.String("plan", ent.PlanID),
				zap.Int("usage_count", ent.UsageCount))
			return errorResponse(c, err)
		}
		return h.fail(c, err, "Failed to record usage")
	}

	h.metrics.ObserveUsage(ent.PlanID, "recorded")
	return c.JSON(http.StatusOK, newEntitlementResponse(ent))
}

func (h *PlansHandler) fail(c echo.Context, err error, msg string) error {
	if pkgerrors.CodeOf(err) != pkgerrors.ErrInvalidArgument {
		pkgerrors.LogError(h.logger, err, msg, zap.String("user_id", c.Param("userId")))
	}
	return errorResponse(c, err)
}
