package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	"github.com/fullmeo/aimastery-billing/internal/infrastructure/metrics"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
	pkgerrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

type CheckoutHandler struct {
	checkout *usecase.CheckoutService
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout *usecase.CheckoutService, m *metrics.Metrics, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		metrics:  m,
		logger:   logger,
	}
}

type CreateCheckoutRequest struct {
	PlanID string `json:"planId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type CreateCheckoutResponse struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
	Plan        string `json:"plan"`
	PlanID      string `json:"planId"`
	TrialDays   int    `json:"trialDays"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
}

// CreateCheckout handles POST /api/payments/create-checkout
func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	var req CreateCheckoutRequest
	if err := c.Bind(&req); err != nil {
		h.metrics.ObserveCheckout("unknown", "rejected")
		return errorResponse(c, domainErrors.ErrInvalidRequest)
	}
	if err := c.Validate(&req); err != nil {
		h.metrics.ObserveCheckout("unknown", "rejected")
		return errorResponse(c, err)
	}

	session, err := h.checkout.CreateSession(c.Request().Context(), req.PlanID, req.UserID, c.Request().Header.Get(echo.HeaderOrigin))
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.ErrInvalidArgument {
			h.metrics.ObserveCheckout("unknown", "rejected")
		} else {
			h.metrics.ObserveCheckout(req.PlanID, "failed")
			pkgerrors.LogError(h.logger, err, "Checkout session creation failed",
				zap.String("plan", req.PlanID),
				zap.String("user_id", req.UserID))
		}
		return errorResponse(c, err)
	}

	h.metrics.ObserveCheckout(session.Plan.ID, "created")

	return c.JSON(http.StatusOK, CreateCheckoutResponse{
		SessionID:   session.SessionID,
		RedirectURL: session.RedirectURL,
		Plan:        session.Plan.DisplayName,
		PlanID:      session.Plan.ID,
		TrialDays:   session.Plan.TrialDays,
		Price:       session.Plan.Price.StringFixed(2),
		Currency:    session.Plan.Currency,
	})
}
