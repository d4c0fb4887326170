package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	"github.com/fullmeo/aimastery-billing/internal/domain/provider"
)

// Options configures the Stripe provider.
type Options struct {
	SecretKey     string
	WebhookSecret string
	// Prices maps plan ids to pre-created Stripe price ids. Plans without an
	// entry are billed with inline price data.
	Prices            map[string]string
	Timeout           time.Duration
	MaxNetworkRetries int
	// BaseURL overrides the API endpoint (tests, stripe-mock).
	BaseURL string
}

// StripeProvider implements the PaymentProvider interface for Stripe
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	prices        map[string]string
	logger        *zap.Logger
}

// NewStripeProvider creates a new Stripe provider
func NewStripeProvider(opts Options, logger *zap.Logger) *StripeProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(int64(opts.MaxNetworkRetries)),
		LeveledLogger:     logger.Sugar(),
	}
	if opts.BaseURL != "" {
		backendConfig.URL = stripe.String(opts.BaseURL)
	}

	api := &client.API{}
	api.Init(opts.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})

	return &StripeProvider{
		api:           api,
		webhookSecret: opts.WebhookSecret,
		prices:        opts.Prices,
		logger:        logger,
	}
}

// GetProviderName returns the provider name
func (s *StripeProvider) GetProviderName() string {
	return string(provider.ProviderTypeStripe)
}

// CreateCheckoutSession creates a subscription-mode Checkout Session. The
// metadata is copied onto the subscription so invoices and cancellations
// carry it as well.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, req *provider.CheckoutSessionRequest) (*provider.CheckoutSessionResponse, error) {
	subscriptionData := &stripe.CheckoutSessionSubscriptionDataParams{
		Metadata: req.Metadata,
	}
	if req.TrialDays > 0 {
		subscriptionData.TrialPeriodDays = stripe.Int64(int64(req.TrialDays))
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{s.lineItem(req)},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(req.UserID),
		SubscriptionData:   subscriptionData,
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		s.logger.Error("Failed to create checkout session",
			zap.String("plan_id", req.PlanID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return nil, toProviderError(err)
	}

	s.logger.Info("Checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("plan_id", req.PlanID),
		zap.String("user_id", req.UserID),
		zap.Int("trial_days", req.TrialDays))

	return &provider.CheckoutSessionResponse{
		SessionID:   sess.ID,
		RedirectURL: sess.URL,
	}, nil
}

func (s *StripeProvider) lineItem(req *provider.CheckoutSessionRequest) *stripe.CheckoutSessionLineItemParams {
	if priceID, ok := s.prices[req.PlanID]; ok && priceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}
	}

	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(req.Currency),
			UnitAmount: stripe.Int64(req.Amount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(req.PlanName),
			},
			Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			},
		},
		Quantity: stripe.Int64(1),
	}
}

// VerifyWebhook checks the Stripe-Signature header and decodes the event.
func (s *StripeProvider) VerifyWebhook(payload []byte, signature string) (*provider.WebhookEvent, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", domainErrors.ErrSignatureInvalid)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrSignatureInvalid, err)
	}

	out := &provider.WebhookEvent{
		EventID:   evt.ID,
		EventType: string(evt.Type),
		CreatedAt: time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data != nil {
		out.Object = evt.Data.Raw
	}
	return out, nil
}

// EnsurePrice returns the recurring price for plan, creating the product and
// price when none exists under the plan's lookup key.
func (s *StripeProvider) EnsurePrice(ctx context.Context, plan catalog.Plan) (priceID string, created bool, err error) {
	listParams := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{plan.ID}),
		Active:     stripe.Bool(true),
	}
	listParams.Context = ctx

	iter := s.api.Prices.List(listParams)
	if iter.Next() {
		return iter.Price().ID, false, nil
	}
	if err := iter.Err(); err != nil {
		return "", false, toProviderError(err)
	}

	productParams := &stripe.ProductParams{
		Name: stripe.String(plan.DisplayName),
	}
	productParams.AddMetadata(provider.MetadataPlanID, plan.ID)
	productParams.Context = ctx

	prod, err := s.api.Products.New(productParams)
	if err != nil {
		return "", false, toProviderError(err)
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(prod.ID),
		Currency:   stripe.String(plan.Currency),
		UnitAmount: stripe.Int64(plan.PriceMinorUnits()),
		LookupKey:  stripe.String(plan.ID),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
	}
	priceParams.Context = ctx

	p, err := s.api.Prices.New(priceParams)
	if err != nil {
		return "", false, toProviderError(err)
	}

	s.logger.Info("Created Stripe price",
		zap.String("plan_id", plan.ID),
		zap.String("product_id", prod.ID),
		zap.String("price_id", p.ID))

	return p.ID, true, nil
}

func toProviderError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &provider.ProviderError{
			Code:       string(stripeErr.Code),
			Message:    "stripe request failed",
			Details:    stripeErr.Msg,
			StatusCode: stripeErr.HTTPStatusCode,
		}
	}
	return &provider.ProviderError{
		Code:    "NETWORK_ERROR",
		Message: "stripe request failed",
		Details: err.Error(),
	}
}
