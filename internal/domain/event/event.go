// Package event defines the closed set of domain events a verified provider
// webhook can be translated into.
package event

import "time"

// Event is implemented only by the variants in this package. Consumers
// dispatch with Accept; adding a variant adds a Visitor method, so every
// consumer has to handle it before the code compiles again.
type Event interface {
	// EventID is the provider's delivery identifier, used as idempotency key.
	EventID() string
	// UserID is the user the event is attributed to, empty for Unrecognized.
	UserID() string
	Accept(v Visitor) error
	sealed()
}

// Visitor handles each event variant.
type Visitor interface {
	VisitCheckoutCompleted(CheckoutCompleted) error
	VisitRecurringPaymentSucceeded(RecurringPaymentSucceeded) error
	VisitPaymentFailed(PaymentFailed) error
	VisitSubscriptionUpdated(SubscriptionUpdated) error
	VisitSubscriptionCancelled(SubscriptionCancelled) error
	VisitUnrecognized(Unrecognized) error
}

// Header carries fields common to every variant.
type Header struct {
	ID   string
	Type string // provider event type, e.g. checkout.session.completed
	// OccurredAt is when the provider created the event. Zero when unknown.
	OccurredAt time.Time
}

func (h Header) EventID() string { return h.ID }

// CheckoutCompleted is a paid (or trialing) checkout for a plan.
type CheckoutCompleted struct {
	Header
	PlanID   string
	User     string
	Amount   int64 // minor units
	Currency string
	// SessionID is the provider checkout session id.
	SessionID string
}

func (e CheckoutCompleted) UserID() string {
	return e.User
}

func (e CheckoutCompleted) Accept(v Visitor) error {
	return v.VisitCheckoutCompleted(e)
}

func (CheckoutCompleted) sealed() {}

// RecurringPaymentSucceeded is a renewal payment for an existing subscription.
type RecurringPaymentSucceeded struct {
	Header
	PlanID    string
	User      string
	Amount    int64
	Currency  string
	InvoiceID string
}

func (e RecurringPaymentSucceeded) UserID() string {
	return e.User
}

func (e RecurringPaymentSucceeded) Accept(v Visitor) error {
	return v.VisitRecurringPaymentSucceeded(e)
}

func (RecurringPaymentSucceeded) sealed() {}

// PaymentFailed is a failed subscription charge.
type PaymentFailed struct {
	Header
	PlanID    string
	User      string
	Amount    int64
	Currency  string
	InvoiceID string
}

func (e PaymentFailed) UserID() string {
	return e.User
}

func (e PaymentFailed) Accept(v Visitor) error {
	return v.VisitPaymentFailed(e)
}

func (PaymentFailed) sealed() {}

// SubscriptionUpdated is a change to a live subscription: a plan switch or a
// status transition. Active is false once the provider stops collecting
// payment (past_due, unpaid, paused), which revokes the paid plan.
type SubscriptionUpdated struct {
	Header
	PlanID         string
	User           string
	SubscriptionID string
	Status         string
	Active         bool
}

func (e SubscriptionUpdated) UserID() string {
	return e.User
}

func (e SubscriptionUpdated) Accept(v Visitor) error {
	return v.VisitSubscriptionUpdated(e)
}

func (SubscriptionUpdated) sealed() {}

// SubscriptionCancelled ends the user's paid plan.
type SubscriptionCancelled struct {
	Header
	PlanID         string
	User           string
	SubscriptionID string
}

func (e SubscriptionCancelled) UserID() string {
	return e.User
}

func (e SubscriptionCancelled) Accept(v Visitor) error {
	return v.VisitSubscriptionCancelled(e)
}

func (SubscriptionCancelled) sealed() {}

// Unrecognized is any verified event the pipeline does not act on.
type Unrecognized struct {
	Header
	Reason string
}

func (Unrecognized) UserID() string {
	return ""
}

func (e Unrecognized) Accept(v Visitor) error {
	return v.VisitUnrecognized(e)
}

func (Unrecognized) sealed() {}
