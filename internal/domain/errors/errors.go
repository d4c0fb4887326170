// Package errors defines the billing error taxonomy.
//
// Each sentinel is an *AppError so errors.Is matches wrapped occurrences and
// pkg/errors can map the code to an HTTP or gRPC status.
package errors

import (
	pkgerrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

var (
	// ErrInvalidRequest indicates a malformed or incomplete request body
	ErrInvalidRequest = pkgerrors.NewAppError(pkgerrors.ErrInvalidArgument, "invalid request", nil)

	// ErrInvalidPlan indicates a plan id outside the catalog, or a plan that cannot be purchased
	ErrInvalidPlan = pkgerrors.NewAppError(pkgerrors.ErrInvalidArgument, "invalid plan", nil)

	// ErrMissingIdentity indicates an empty user id
	ErrMissingIdentity = pkgerrors.NewAppError(pkgerrors.ErrInvalidArgument, "user id is required", nil)

	// ErrSignatureInvalid indicates a webhook payload whose signature did not verify
	ErrSignatureInvalid = pkgerrors.NewAppError(pkgerrors.ErrInvalidArgument, "invalid webhook signature", nil)

	// ErrPlanNotFound indicates a plan query for an unknown plan id
	ErrPlanNotFound = pkgerrors.NewAppError(pkgerrors.ErrNotFound, "plan not found", nil)

	// ErrQuotaExceeded indicates the user used up the monthly quota of the current plan
	ErrQuotaExceeded = pkgerrors.NewAppError(pkgerrors.ErrQuotaExceeded, "monthly quota exceeded", nil)

	// ErrUpstreamUnavailable indicates the payment provider or the store could not be reached
	ErrUpstreamUnavailable = pkgerrors.NewAppError(pkgerrors.ErrUpstreamUnavailable, "upstream unavailable", nil)

	// ErrInvalidRevenueEvent indicates a ledger entry that fails validation
	ErrInvalidRevenueEvent = pkgerrors.NewAppError(pkgerrors.ErrInvalidArgument, "invalid revenue event", nil)
)
