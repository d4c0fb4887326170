package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
	pkgerrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

// RevenueHandler serves the ledger reports. Routes are admin only.
type RevenueHandler struct {
	ledger *usecase.RevenueLedger
	logger *zap.Logger
}

func NewRevenueHandler(ledger *usecase.RevenueLedger, logger *zap.Logger) *RevenueHandler {
	return &RevenueHandler{
		ledger: ledger,
		logger: logger,
	}
}

// GetReport handles GET /api/v1/revenue/report?start=&end=&plan=&status=
func (h *RevenueHandler) GetReport(c echo.Context) error {
	filter := model.RevenueFilter{
		PlanID: c.QueryParam("plan"),
		Status: model.RevenueStatus(c.QueryParam("status")),
	}

	var err error
	if filter.Start, err = parseTimeParam(c, "start"); err != nil {
		return errorResponse(c, err)
	}
	if filter.End, err = parseTimeParam(c, "end"); err != nil {
		return errorResponse(c, err)
	}

	report, err := h.ledger.Report(c.Request().Context(), filter)
	if err != nil {
		return h.fail(c, err, "Failed to build revenue report")
	}
	return c.JSON(http.StatusOK, report)
}

// GetMRR handles GET /api/v1/revenue/mrr
func (h *RevenueHandler) GetMRR(c echo.Context) error {
	mrr, err := h.ledger.MonthlyRecurringRevenue(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Failed to compute MRR")
	}
	return c.JSON(http.StatusOK, mrr)
}

// GetTopCustomers handles GET /api/v1/revenue/top-customers?limit=
func (h *RevenueHandler) GetTopCustomers(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errorResponse(c, fmt.Errorf("%w: limit must be a positive integer", domainErrors.ErrInvalidRequest))
		}
		limit = n
	}

	customers, err := h.ledger.TopCustomers(c.Request().Context(), limit)
	if err != nil {
		return h.fail(c, err, "Failed to rank customers")
	}
	return c.JSON(http.StatusOK, echo.Map{"customers": customers})
}

// GetUserRevenue handles GET /api/v1/revenue/users/:userId
func (h *RevenueHandler) GetUserRevenue(c echo.Context) error {
	rev, err := h.ledger.UserRevenue(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return h.fail(c, err, "Failed to load user revenue")
	}
	return c.JSON(http.StatusOK, rev)
}

func (h *RevenueHandler) fail(c echo.Context, err error, msg string) error {
	if pkgerrors.CodeOf(err) != pkgerrors.ErrInvalidArgument {
		pkgerrors.LogError(h.logger, err, msg)
	}
	return errorResponse(c, err)
}

func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domainErrors.ErrInvalidRequest, name)
	}
	return &t, nil
}
