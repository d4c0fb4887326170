package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	domainRepo "github.com/fullmeo/aimastery-billing/internal/domain/repository"
)

func revenue(id, user string, amount int64, status model.RevenueStatus) *model.RevenueEvent {
	return &model.RevenueEvent{
		EventID:   id,
		UserID:    user,
		Amount:    amount,
		Currency:  "eur",
		PlanID:    "social_pack",
		Status:    status,
		Timestamp: time.Now(),
	}
}

func TestEntitlements(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	got, err := s.Entitlements().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	ent := &model.UserEntitlement{UserID: "alice", PlanID: "free", MonthlyQuota: 3}
	require.NoError(t, s.Entitlements().Save(ctx, ent))

	got, err = s.Entitlements().Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.MonthlyQuota)
	assert.False(t, got.CreatedAt.IsZero())

	// returned values are copies
	got.UsageCount = 99
	again, _ := s.Entitlements().Get(ctx, "alice")
	assert.Equal(t, 0, again.UsageCount)
}

func TestRevenueAppendKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	require.NoError(t, s.Revenue().Append(ctx, revenue("a", "u1", 10, model.RevenueStatusCompleted)))
	require.NoError(t, s.Revenue().Append(ctx, revenue("b", "u2", 5, model.RevenueStatusFailed)))
	require.NoError(t, s.Revenue().Append(ctx, revenue("c", "u1", 20, model.RevenueStatusCompleted)))

	all, err := s.Revenue().List(ctx, model.RevenueFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].EventID, all[1].EventID, all[2].EventID})
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})

	completed, err := s.Revenue().List(ctx, model.RevenueFilter{Status: model.RevenueStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	assert.ErrorIs(t, s.Revenue().Append(ctx, revenue("a", "u3", 1, model.RevenueStatusCompleted)), ErrDuplicateEventID)
}

func TestRevenueUniqueSourceEvent(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	src := "evt_1"
	first := revenue("a", "u1", 900, model.RevenueStatusCompleted)
	first.SourceEventID = &src
	require.NoError(t, s.Revenue().Append(ctx, first))

	second := revenue("b", "u1", 900, model.RevenueStatusCompleted)
	second.SourceEventID = &src
	assert.ErrorIs(t, s.Revenue().Append(ctx, second), ErrDuplicateSourceEventID)
}

func TestTransactionCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx domainRepo.Store) error {
		require.NoError(t, tx.Entitlements().Save(ctx, &model.UserEntitlement{UserID: "alice", PlanID: "pro_vincien", MonthlyQuota: -1}))
		require.NoError(t, tx.Revenue().Append(ctx, revenue("a", "alice", 1500, model.RevenueStatusCompleted)))
		require.NoError(t, tx.WebhookEvents().MarkApplied(ctx, "evt_1", "checkout.session.completed"))

		// staged writes are visible inside the transaction
		applied, err := tx.WebhookEvents().IsApplied(ctx, "evt_1")
		require.NoError(t, err)
		assert.True(t, applied)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ent, _ := s.Entitlements().Get(ctx, "alice")
	assert.Nil(t, ent)
	events, _ := s.Revenue().List(ctx, model.RevenueFilter{})
	assert.Empty(t, events)
	applied, _ := s.WebhookEvents().IsApplied(ctx, "evt_1")
	assert.False(t, applied)

	err = s.Transaction(ctx, func(tx domainRepo.Store) error {
		require.NoError(t, tx.Revenue().Append(ctx, revenue("a", "alice", 1500, model.RevenueStatusCompleted)))
		return tx.Transaction(ctx, func(inner domainRepo.Store) error {
			return inner.WebhookEvents().MarkApplied(ctx, "evt_1", "checkout.session.completed")
		})
	})
	require.NoError(t, err)

	events, _ = s.Revenue().List(ctx, model.RevenueFilter{})
	assert.Len(t, events, 1)
	applied, _ = s.WebhookEvents().IsApplied(ctx, "evt_1")
	assert.True(t, applied)
}

func TestTransactionHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New(0).Transaction(ctx, func(domainRepo.Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestWebhookFailuresAndEviction(t *testing.T) {
	ctx := context.Background()
	s := New(2)

	require.NoError(t, s.WebhookEvents().MarkFailed(ctx, "evt_1", "invoice.payment_succeeded", errors.New("timeout")))
	require.NoError(t, s.WebhookEvents().MarkFailed(ctx, "evt_1", "invoice.payment_succeeded", errors.New("timeout again")))

	evt, err := s.WebhookEvents().Get(ctx, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Equal(t, 2, evt.ProcessingAttempts)
	assert.Equal(t, "timeout again", *evt.LastError)
	assert.False(t, evt.Applied())

	require.NoError(t, s.WebhookEvents().MarkApplied(ctx, "evt_1", "invoice.payment_succeeded"))
	require.NoError(t, s.WebhookEvents().MarkApplied(ctx, "evt_2", "invoice.payment_succeeded"))
	require.NoError(t, s.WebhookEvents().MarkApplied(ctx, "evt_3", "invoice.payment_succeeded"))

	evicted, _ := s.WebhookEvents().Get(ctx, "evt_1")
	assert.Nil(t, evicted)
	for _, id := range []string{"evt_2", "evt_3"} {
		applied, _ := s.WebhookEvents().IsApplied(ctx, id)
		assert.True(t, applied, id)
	}
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	require.NoError(t, s.Entitlements().Save(ctx, &model.UserEntitlement{UserID: "alice", PlanID: "free", MonthlyQuota: 1000}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Transaction(ctx, func(tx domainRepo.Store) error {
				ent, err := tx.Entitlements().Get(ctx, "alice")
				if err != nil {
					return err
				}
				ent.UsageCount++
				return tx.Entitlements().Save(ctx, ent)
			})
		}()
	}
	wg.Wait()

	ent, _ := s.Entitlements().Get(ctx, "alice")
	assert.Equal(t, 50, ent.UsageCount)
}

func TestTransactionStagesWritesUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := New(1)
	require.NoError(t, s.Revenue().Append(ctx, revenue("a", "alice", 900, model.RevenueStatusCompleted)))
	require.NoError(t, s.WebhookEvents().MarkApplied(ctx, "evt_old", "checkout.session.completed"))

	err := s.Transaction(ctx, func(tx domainRepo.Store) error {
		require.NoError(t, tx.Revenue().Append(ctx, revenue("b", "alice", 1500, model.RevenueStatusCompleted)))
		require.NoError(t, tx.WebhookEvents().MarkApplied(ctx, "evt_new", "checkout.session.completed"))

		staged, err := tx.Revenue().List(ctx, model.RevenueFilter{})
		require.NoError(t, err)
		assert.Len(t, staged, 2)
		assert.Equal(t, int64(2), staged[1].Seq)

		// live state is untouched while the transaction runs
		assert.Len(t, s.data.revenue, 1)
		assert.Contains(t, s.data.webhooks, "evt_old")
		assert.NotContains(t, s.data.webhooks, "evt_new")

		err = tx.Revenue().Append(ctx, revenue("a", "alice", 900, model.RevenueStatusCompleted))
		assert.ErrorIs(t, err, ErrDuplicateEventID)
		return nil
	})
	require.NoError(t, err)

	events, err := s.Revenue().List(ctx, model.RevenueFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[1].EventID)

	evicted, err := s.WebhookEvents().Get(ctx, "evt_old")
	require.NoError(t, err)
	assert.Nil(t, evicted)
	applied, err := s.WebhookEvents().IsApplied(ctx, "evt_new")
	require.NoError(t, err)
	assert.True(t, applied)
}
