package stripe

import (
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v79"

	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	"github.com/fullmeo/aimastery-billing/internal/domain/event"
	"github.com/fullmeo/aimastery-billing/internal/domain/provider"
)

// Classifier turns verified Stripe events into domain events. Events that
// cannot be attributed to a user and a catalog plan become Unrecognized.
type Classifier struct{}

// NewClassifier creates a Stripe event classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify never fails; anything it cannot map is returned as Unrecognized
// with the reason filled in.
func (c *Classifier) Classify(evt *provider.WebhookEvent) event.Event {
	header := event.Header{ID: evt.EventID, Type: evt.EventType, OccurredAt: evt.CreatedAt}

	switch stripe.EventType(evt.EventType) {
	case stripe.EventTypeCheckoutSessionCompleted:
		return c.checkoutCompleted(header, evt.Object)
	case stripe.EventTypeInvoicePaymentSucceeded:
		return c.invoice(header, evt.Object, false)
	case stripe.EventTypeInvoicePaymentFailed:
		return c.invoice(header, evt.Object, true)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return c.subscriptionUpdated(header, evt.Object)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return c.subscriptionDeleted(header, evt.Object)
	default:
		return unrecognized(header, "unhandled event type")
	}
}

func (c *Classifier) checkoutCompleted(header event.Header, raw json.RawMessage) event.Event {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return unrecognized(header, "malformed checkout session")
	}

	userID := session.Metadata[provider.MetadataUserID]
	if userID == "" {
		userID = session.ClientReferenceID
	}
	planID, reason := attribute(userID, session.Metadata)
	if reason != "" {
		return unrecognized(header, reason)
	}

	return event.CheckoutCompleted{
		Header:    header,
		PlanID:    planID,
		User:      userID,
		Amount:    session.AmountTotal,
		Currency:  currencyOr(string(session.Currency)),
		SessionID: session.ID,
	}
}

func (c *Classifier) invoice(header event.Header, raw json.RawMessage, failed bool) event.Event {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return unrecognized(header, "malformed invoice")
	}

	// The first invoice of a subscription is already booked by the checkout.
	if !failed && inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
		return unrecognized(header, "initial subscription invoice")
	}

	metadata := inv.Metadata
	if inv.SubscriptionDetails != nil && len(inv.SubscriptionDetails.Metadata) > 0 {
		metadata = inv.SubscriptionDetails.Metadata
	}
	userID := metadata[provider.MetadataUserID]
	planID, reason := attribute(userID, metadata)
	if reason != "" {
		return unrecognized(header, reason)
	}

	currency := currencyOr(string(inv.Currency))
	if failed {
		return event.PaymentFailed{
			Header:    header,
			PlanID:    planID,
			User:      userID,
			Amount:    inv.AmountDue,
			Currency:  currency,
			InvoiceID: inv.ID,
		}
	}
	return event.RecurringPaymentSucceeded{
		Header:    header,
		PlanID:    planID,
		User:      userID,
		Amount:    inv.AmountPaid,
		Currency:  currency,
		InvoiceID: inv.ID,
	}
}

func (c *Classifier) subscriptionUpdated(header event.Header, raw json.RawMessage) event.Event {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return unrecognized(header, "malformed subscription")
	}

	userID := sub.Metadata[provider.MetadataUserID]
	if userID == "" {
		return unrecognized(header, "missing user_id metadata")
	}

	updated := event.SubscriptionUpdated{
		Header:         header,
		PlanID:         sub.Metadata[provider.MetadataPlanID],
		User:           userID,
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}

	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		planID, reason := attribute(userID, sub.Metadata)
		if reason != "" {
			return unrecognized(header, reason)
		}
		updated.PlanID = planID
		updated.Active = true
	case stripe.SubscriptionStatusPastDue,
		stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusPaused,
		stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusIncompleteExpired:
		updated.Active = false
	default:
		// incomplete: the first payment is still pending, checkout decides.
		return unrecognized(header, "subscription status "+string(sub.Status))
	}
	return updated
}

func (c *Classifier) subscriptionDeleted(header event.Header, raw json.RawMessage) event.Event {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return unrecognized(header, "malformed subscription")
	}

	userID := sub.Metadata[provider.MetadataUserID]
	if userID == "" {
		return unrecognized(header, "missing user_id metadata")
	}

	return event.SubscriptionCancelled{
		Header:         header,
		PlanID:         sub.Metadata[provider.MetadataPlanID],
		User:           userID,
		SubscriptionID: sub.ID,
	}
}

// attribute returns the plan id from metadata, or a reason why the event
// cannot be attributed.
func attribute(userID string, metadata map[string]string) (string, string) {
	if userID == "" {
		return "", "missing user_id metadata"
	}
	planID := metadata[provider.MetadataPlanID]
	if planID == "" {
		return "", "missing plan_id metadata"
	}
	if _, err := catalog.Lookup(planID); err != nil {
		return "", "unknown plan " + planID
	}
	return planID, ""
}

func currencyOr(c string) string {
	if c == "" {
		return catalog.DefaultCurrency
	}
	return strings.ToLower(c)
}

func unrecognized(header event.Header, reason string) event.Event {
	return event.Unrecognized{Header: header, Reason: reason}
}
