package provider

import (
	"fmt"

	"github.com/fullmeo/aimastery-billing/internal/config"
	stripeProvider "github.com/fullmeo/aimastery-billing/internal/infrastructure/provider/stripe"
	"go.uber.org/zap"
)

// Factory builds payment providers from configuration.
type Factory struct {
	config *config.Config
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// Stripe returns the concrete Stripe provider, which also exposes catalog sync.
func (f *Factory) Stripe() (*stripeProvider.StripeProvider, error) {
	if f.config.Service.StripeSecretKey == "" {
		return nil, fmt.Errorf("stripe secret key not configured")
	}
	if f.config.Service.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret not configured")
	}

	return stripeProvider.NewStripeProvider(stripeProvider.Options{
		SecretKey:         f.config.Service.StripeSecretKey,
		WebhookSecret:     f.config.Service.StripeWebhookSecret,
		Prices:            f.config.Checkout.Prices,
		Timeout:           f.config.Checkout.Timeout,
		MaxNetworkRetries: f.config.Checkout.MaxNetworkRetries,
	}, f.logger), nil
}
