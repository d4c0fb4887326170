package repository

import "context"

// Store groups the repositories that must change atomically when a provider
// event is applied.
type Store interface {
	Entitlements() EntitlementRepository
	Revenue() RevenueRepository
	WebhookEvents() WebhookEventRepository
	// Transaction runs fn against a transactional view of the store. All
	// writes made through tx commit together when fn returns nil and are
	// discarded otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
