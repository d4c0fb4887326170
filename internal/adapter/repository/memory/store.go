// Package memory is an in-process implementation of the billing store for
// single-instance deployments and tests. State is lost on restart.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	domainRepo "github.com/fullmeo/aimastery-billing/internal/domain/repository"
)

// DefaultMaxAppliedKeys bounds the recent-keys set when no size is given.
const DefaultMaxAppliedKeys = 10000

var (
	ErrDuplicateEventID       = errors.New("revenue event id already exists")
	ErrDuplicateSourceEventID = domainRepo.ErrAlreadyRecorded
)

type snapshot struct {
	entitlements map[string]model.UserEntitlement

	revenue      []model.RevenueEvent
	eventIDs     map[string]struct{}
	sourceEvents map[string]struct{}
	revenueSeq   int64

	webhooks     map[string]model.WebhookEvent
	webhookOrder []string // oldest first, for eviction
	webhookSeq   int64
}

func newSnapshot() *snapshot {
	return &snapshot{
		entitlements: make(map[string]model.UserEntitlement),
		eventIDs:     make(map[string]struct{}),
		sourceEvents: make(map[string]struct{}),
		webhooks:     make(map[string]model.WebhookEvent),
	}
}

// writeSet holds the writes of one transaction on top of the live snapshot.
// Reads consult it first; commit merges it into the snapshot.
type writeSet struct {
	base *snapshot

	entitlements map[string]model.UserEntitlement

	revenue      []model.RevenueEvent
	eventIDs     map[string]struct{}
	sourceEvents map[string]struct{}
	revenueSeq   int64

	webhooks    map[string]model.WebhookEvent
	newWebhooks []string
	webhookSeq  int64
}

func newWriteSet(base *snapshot) *writeSet {
	return &writeSet{
		base:         base,
		entitlements: make(map[string]model.UserEntitlement),
		eventIDs:     make(map[string]struct{}),
		sourceEvents: make(map[string]struct{}),
		revenueSeq:   base.revenueSeq,
		webhooks:     make(map[string]model.WebhookEvent),
		webhookSeq:   base.webhookSeq,
	}
}

func (w *writeSet) entitlement(userID string) (model.UserEntitlement, bool) {
	if ent, ok := w.entitlements[userID]; ok {
		return ent, true
	}
	ent, ok := w.base.entitlements[userID]
	return ent, ok
}

func (w *writeSet) hasEventID(id string) bool {
	_, staged := w.eventIDs[id]
	_, live := w.base.eventIDs[id]
	return staged || live
}

func (w *writeSet) hasSourceEvent(id string) bool {
	_, staged := w.sourceEvents[id]
	_, live := w.base.sourceEvents[id]
	return staged || live
}

// eachRevenue visits committed events then staged ones, in insertion order.
func (w *writeSet) eachRevenue(fn func(*model.RevenueEvent)) {
	for i := range w.base.revenue {
		fn(&w.base.revenue[i])
	}
	for i := range w.revenue {
		fn(&w.revenue[i])
	}
}

func (w *writeSet) webhook(providerEventID string) (model.WebhookEvent, bool) {
	if evt, ok := w.webhooks[providerEventID]; ok {
		return evt, true
	}
	evt, ok := w.base.webhooks[providerEventID]
	return evt, ok
}

// commit merges the staged writes and forgets the oldest webhook keys past
// maxKeys.
func (w *writeSet) commit(maxKeys int) {
	b := w.base
	for k, v := range w.entitlements {
		b.entitlements[k] = v
	}

	b.revenue = append(b.revenue, w.revenue...)
	for k := range w.eventIDs {
		b.eventIDs[k] = struct{}{}
	}
	for k := range w.sourceEvents {
		b.sourceEvents[k] = struct{}{}
	}
	b.revenueSeq = w.revenueSeq

	for k, v := range w.webhooks {
		b.webhooks[k] = v
	}
	b.webhookOrder = append(b.webhookOrder, w.newWebhooks...)
	b.webhookSeq = w.webhookSeq
	for len(b.webhookOrder) > maxKeys {
		delete(b.webhooks, b.webhookOrder[0])
		b.webhookOrder = b.webhookOrder[1:]
	}
}

// Store keeps all state behind one mutex. Writes are staged in a write set
// that is merged into the live state only when the callback succeeds.
type Store struct {
	mu             sync.Mutex
	data           *snapshot
	maxAppliedKeys int
	now            func() time.Time
}

// New creates an empty store. maxAppliedKeys bounds how many provider event
// ids are remembered; the oldest are forgotten first.
func New(maxAppliedKeys int) *Store {
	if maxAppliedKeys <= 0 {
		maxAppliedKeys = DefaultMaxAppliedKeys
	}
	return &Store{
		data:           newSnapshot(),
		maxAppliedKeys: maxAppliedKeys,
		now:            time.Now,
	}
}

func (s *Store) Entitlements() domainRepo.EntitlementRepository {
	return &entitlementRepo{view{store: s}}
}

func (s *Store) Revenue() domainRepo.RevenueRepository {
	return &revenueRepo{view{store: s}}
}

func (s *Store) WebhookEvents() domainRepo.WebhookEventRepository {
	return &webhookRepo{view{store: s}}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx domainRepo.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws := newWriteSet(s.data)
	if err := fn(&txStore{view{store: s, tx: ws}}); err != nil {
		return err
	}
	ws.commit(s.maxAppliedKeys)
	return nil
}

// view resolves which write set an operation works on: the transaction's
// (lock already held) or a single-operation one committed on success.
type view struct {
	store *Store
	tx    *writeSet
}

func (v view) with(fn func(*writeSet) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	ws := newWriteSet(v.store.data)
	if err := fn(ws); err != nil {
		return err
	}
	ws.commit(v.store.maxAppliedKeys)
	return nil
}

type txStore struct {
	view
}

func (t *txStore) Entitlements() domainRepo.EntitlementRepository { return &entitlementRepo{t.view} }

func (t *txStore) Revenue() domainRepo.RevenueRepository { return &revenueRepo{t.view} }

func (t *txStore) WebhookEvents() domainRepo.WebhookEventRepository { return &webhookRepo{t.view} }

// Transaction inside a transaction joins the outer one.
func (t *txStore) Transaction(_ context.Context, fn func(tx domainRepo.Store) error) error {
	return fn(t)
}

type entitlementRepo struct{ view }

func (r *entitlementRepo) Get(_ context.Context, userID string) (*model.UserEntitlement, error) {
	var out *model.UserEntitlement
	err := r.with(func(w *writeSet) error {
		if ent, ok := w.entitlement(userID); ok {
			out = &ent
		}
		return nil
	})
	return out, err
}

func (r *entitlementRepo) Save(_ context.Context, ent *model.UserEntitlement) error {
	return r.with(func(w *writeSet) error {
		now := r.store.now()
		if existing, ok := w.entitlement(ent.UserID); ok {
			ent.CreatedAt = existing.CreatedAt
		} else if ent.CreatedAt.IsZero() {
			ent.CreatedAt = now
		}
		ent.UpdatedAt = now
		w.entitlements[ent.UserID] = *ent
		return nil
	})
}

type revenueRepo struct{ view }

func (r *revenueRepo) Append(_ context.Context, event *model.RevenueEvent) error {
	return r.with(func(w *writeSet) error {
		if w.hasEventID(event.EventID) {
			return ErrDuplicateEventID
		}
		if event.SourceEventID != nil {
			if w.hasSourceEvent(*event.SourceEventID) {
				return ErrDuplicateSourceEventID
			}
			w.sourceEvents[*event.SourceEventID] = struct{}{}
		}
		w.revenueSeq++
		event.Seq = w.revenueSeq
		stored := *event
		stored.Metadata = event.Metadata.Clone()
		w.revenue = append(w.revenue, stored)
		w.eventIDs[event.EventID] = struct{}{}
		return nil
	})
}

func (r *revenueRepo) List(_ context.Context, filter model.RevenueFilter) ([]model.RevenueEvent, error) {
	var out []model.RevenueEvent
	err := r.with(func(w *writeSet) error {
		w.eachRevenue(func(evt *model.RevenueEvent) {
			if filter.Matches(evt) {
				e := *evt
				e.Metadata = e.Metadata.Clone()
				out = append(out, e)
			}
		})
		return nil
	})
	return out, err
}

type webhookRepo struct{ view }

func (r *webhookRepo) Get(_ context.Context, providerEventID string) (*model.WebhookEvent, error) {
	var out *model.WebhookEvent
	err := r.with(func(w *writeSet) error {
		if evt, ok := w.webhook(providerEventID); ok {
			out = &evt
		}
		return nil
	})
	return out, err
}

func (r *webhookRepo) IsApplied(ctx context.Context, providerEventID string) (bool, error) {
	evt, err := r.Get(ctx, providerEventID)
	if err != nil {
		return false, err
	}
	return evt.Applied(), nil
}

func (r *webhookRepo) MarkApplied(_ context.Context, providerEventID, eventType string) error {
	return r.with(func(w *writeSet) error {
		now := r.store.now()
		evt := upsert(w, providerEventID, eventType, now)
		evt.Status = model.WebhookStatusCompleted
		evt.ProcessedAt = &now
		w.webhooks[providerEventID] = *evt
		return nil
	})
}

func (r *webhookRepo) MarkFailed(_ context.Context, providerEventID, eventType string, cause error) error {
	return r.with(func(w *writeSet) error {
		evt := upsert(w, providerEventID, eventType, r.store.now())
		msg := cause.Error()
		evt.Status = model.WebhookStatusFailed
		evt.ProcessingAttempts++
		evt.LastError = &msg
		w.webhooks[providerEventID] = *evt
		return nil
	})
}

func upsert(w *writeSet, providerEventID, eventType string, now time.Time) *model.WebhookEvent {
	if evt, ok := w.webhook(providerEventID); ok {
		evt.UpdatedAt = now
		return &evt
	}

	w.webhookSeq++
	w.newWebhooks = append(w.newWebhooks, providerEventID)
	return &model.WebhookEvent{
		ID:              w.webhookSeq,
		ProviderEventID: providerEventID,
		EventType:       eventType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
