package http

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/infrastructure/metrics"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
	pkgerrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBody  = 1 << 20
)

type WebhookHandler struct {
	processor *usecase.WebhookProcessor
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewWebhookHandler(processor *usecase.WebhookProcessor, m *metrics.Metrics, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		metrics:   m,
		logger:    logger,
	}
}

// HandleStripeWebhook handles POST /api/webhooks/stripe. The body must reach
// the processor byte for byte; it is never bound or re-encoded.
func (h *WebhookHandler) HandleStripeWebhook(c echo.Context) error {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		h.logger.Error("Error reading webhook body", zap.Error(err))
		h.metrics.ObserveWebhook("", "rejected", time.Since(start))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "error reading request body"})
	}
	if len(body) > maxWebhookBody {
		h.metrics.ObserveWebhook("", "rejected", time.Since(start))
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "payload too large"})
	}

	result, err := h.processor.Process(c.Request().Context(), body, c.Request().Header.Get(signatureHeader))
	if err != nil {
		status := pkgerrors.ToHTTPStatus(pkgerrors.CodeOf(err))
		if status < http.StatusInternalServerError {
			h.metrics.ObserveWebhook("", "rejected", time.Since(start))
		} else {
			h.metrics.ObserveWebhook("", "failed", time.Since(start))
		}
		return errorResponse(c, err)
	}

	h.metrics.ObserveWebhook(result.EventType, string(result.Outcome), time.Since(start))

	resp := echo.Map{
		"received": true,
		"status":   result.Outcome,
		"eventId":  result.EventID,
	}
	if result.Reason != "" {
		resp["reason"] = result.Reason
	}
	return c.JSON(http.StatusOK, resp)
}
