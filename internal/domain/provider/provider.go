package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Metadata keys attached to checkout sessions and subscriptions so later
// provider events can be attributed to a user and plan.
const (
	MetadataPlanID = "plan_id"
	MetadataUserID = "user_id"
	MetadataSource = "source"
)

// PaymentProvider defines the interface for payment providers
type PaymentProvider interface {
	// CreateCheckoutSession opens a hosted checkout for a subscription
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionResponse, error)

	// VerifyWebhook authenticates a webhook payload against its signature
	// header and decodes the event envelope
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)

	// GetProviderName returns the provider name
	GetProviderName() string
}

// CheckoutSessionRequest represents a provider-agnostic subscription checkout request
type CheckoutSessionRequest struct {
	PlanID         string            `json:"plan_id"`
	PlanName       string            `json:"plan_name"`
	UserID         string            `json:"user_id"`
	Amount         int64             `json:"amount"` // minor units per month
	Currency       string            `json:"currency"`
	TrialDays      int               `json:"trial_days"`
	SuccessURL     string            `json:"success_url"`
	CancelURL      string            `json:"cancel_url"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// CheckoutSessionResponse is the created session
type CheckoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// WebhookEvent is a verified provider event envelope. Object holds the raw
// JSON of the event's subject (session, invoice, subscription).
type WebhookEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Object    json.RawMessage `json:"object"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProviderType represents the type of payment provider
type ProviderType string

const (
	ProviderTypeStripe ProviderType = "stripe"
)

// ProviderError is a failure reported by the provider API.
type ProviderError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Temporary reports whether retrying the call may succeed.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
