package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	"github.com/fullmeo/aimastery-billing/internal/domain/provider"
)

// CheckoutSource tags sessions opened through this service.
const CheckoutSource = "vscode_extension"

// CheckoutSession is a created provider session and the plan it sells.
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
	Plan        catalog.Plan
}

// CheckoutService opens provider checkout sessions for catalog plans.
type CheckoutService struct {
	provider  provider.PaymentProvider
	clientURL string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. clientURL is the origin
// used when the caller does not supply one.
func NewCheckoutService(p provider.PaymentProvider, clientURL string, timeout time.Duration, logger *zap.Logger) *CheckoutService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CheckoutService{
		provider:  p,
		clientURL: clientURL,
		timeout:   timeout,
		logger:    logger,
	}
}

// CreateSession opens a subscription checkout for planID on behalf of userID.
// Invalid input fails before any provider call.
func (s *CheckoutService) CreateSession(ctx context.Context, planID, userID, originURL string) (*CheckoutSession, error) {
	plan, err := catalog.Lookup(planID)
	if err != nil || !plan.IsPurchasable() {
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrInvalidPlan, planID)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domainErrors.ErrMissingIdentity
	}

	origin := strings.TrimRight(originURL, "/")
	if origin == "" {
		origin = strings.TrimRight(s.clientURL, "/")
	}
	planParam := url.QueryEscape(plan.ID)

	req := &provider.CheckoutSessionRequest{
		PlanID:     plan.ID,
		PlanName:   plan.DisplayName,
		UserID:     userID,
		Amount:     plan.PriceMinorUnits(),
		Currency:   plan.Currency,
		TrialDays:  plan.TrialDays,
		SuccessURL: origin + "/success?session_id={CHECKOUT_SESSION_ID}&plan=" + planParam,
		CancelURL:  origin + "/cancel?plan=" + planParam,
		Metadata: map[string]string{
			provider.MetadataPlanID: plan.ID,
			provider.MetadataUserID: userID,
			provider.MetadataSource: CheckoutSource,
		},
		IdempotencyKey: uuid.NewString(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.logger.Error("Checkout session creation failed",
			zap.String("provider", s.provider.GetProviderName()),
			zap.String("plan_id", plan.ID),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: create checkout session: %v", domainErrors.ErrUpstreamUnavailable, err)
	}

	return &CheckoutSession{
		SessionID:   resp.SessionID,
		RedirectURL: resp.RedirectURL,
		Plan:        plan,
	}, nil
}

// ParseSessionMetadata recovers the plan and user a session was opened for.
func ParseSessionMetadata(metadata map[string]string) (planID, userID string, err error) {
	planID = metadata[provider.MetadataPlanID]
	userID = metadata[provider.MetadataUserID]
	if userID == "" {
		return "", "", domainErrors.ErrMissingIdentity
	}
	if _, lookupErr := catalog.Lookup(planID); lookupErr != nil {
		return "", "", fmt.Errorf("%w: %q", domainErrors.ErrInvalidPlan, planID)
	}
	return planID, userID, nil
}
