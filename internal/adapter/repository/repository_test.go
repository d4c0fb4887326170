package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fullmeo/aimastery-billing/internal/adapter/repository"
	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	domainRepo "github.com/fullmeo/aimastery-billing/internal/domain/repository"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestEntitlementRepository_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := repository.NewEntitlementRepository(gormDB, zap.NewNop())

		now := time.Now()
		planEventAt := now.Add(-time.Hour)
		rows := sqlmock.NewRows([]string{"user_id", "plan_id", "monthly_quota", "usage_count", "has_unlimited_access", "last_reset_at", "plan_event_at", "created_at", "updated_at"}).
			AddRow("user-1", "social_pack", 100, 12, false, now, planEventAt, now, now)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "user_entitlements" WHERE user_id = $1`)).
			WillReturnRows(rows)

		ent, err := repo.Get(context.Background(), "user-1")
		require.NoError(t, err)
		require.NotNil(t, ent)
		assert.Equal(t, "social_pack", ent.PlanID)
		assert.Equal(t, 12, ent.UsageCount)
		require.NotNil(t, ent.PlanEventAt)
		assert.True(t, ent.PlanEventAt.Equal(planEventAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is not an error", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := repository.NewEntitlementRepository(gormDB, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "user_entitlements"`)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

		ent, err := repo.Get(context.Background(), "ghost")
		assert.NoError(t, err)
		assert.Nil(t, ent)
	})

	t.Run("query error", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := repository.NewEntitlementRepository(gormDB, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "user_entitlements"`)).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.Get(context.Background(), "user-1")
		assert.ErrorContains(t, err, "failed to get user entitlement")
	})
}

func TestEntitlementRepository_SaveUpserts(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewEntitlementRepository(gormDB, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "user_entitlements"`) + `.*` + regexp.QuoteMeta(`ON CONFLICT ("user_id") DO UPDATE SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Save(context.Background(), &model.UserEntitlement{
		UserID:       "user-1",
		PlanID:       "free",
		MonthlyQuota: 3,
		LastResetAt:  time.Now(),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevenueRepository_Append(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewRevenueRepository(gormDB, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "revenue_events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(42))
	mock.ExpectCommit()

	event := &model.RevenueEvent{
		EventID:   "5f0c7f4e-8e33-4c55-9b0a-0d1f2f7c1a11",
		UserID:    "user-1",
		Amount:    900,
		Currency:  "eur",
		PlanID:    "social_pack",
		Status:    model.RevenueStatusCompleted,
		Timestamp: time.Now(),
	}
	require.NoError(t, repo.Append(context.Background(), event))
	assert.Equal(t, int64(42), event.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevenueRepository_ListAppliesFilter(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewRevenueRepository(gormDB, zap.NewNop())

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"seq", "event_id", "user_id", "amount", "currency", "plan", "status", "occurred_at", "metadata", "source_event_id"}).
		AddRow(1, "id-1", "alice", 900, "eur", "social_pack", "completed", start, nil, nil).
		AddRow(2, "id-2", "bob", 1500, "eur", "pro_vincien", "completed", start.Add(time.Hour), []byte(`{"source":"checkout"}`), "evt_2")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "revenue_events" WHERE occurred_at >= $1 AND status = $2 ORDER BY seq ASC`)).
		WithArgs(start, model.RevenueStatusCompleted).
		WillReturnRows(rows)

	events, err := repo.List(context.Background(), model.RevenueFilter{Start: &start, Status: model.RevenueStatusCompleted})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, "checkout", events[1].Metadata["source"])
	require.NotNil(t, events[1].SourceEventID)
	assert.Equal(t, "evt_2", *events[1].SourceEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepository(t *testing.T) {
	t.Run("applied event", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := repository.NewWebhookRepository(gormDB, zap.NewNop())

		rows := sqlmock.NewRows([]string{"id", "provider_event_id", "event_type", "status", "processing_attempts"}).
			AddRow(1, "evt_1", "checkout.session.completed", "completed", 0)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook_events" WHERE provider_event_id = $1`)).
			WillReturnRows(rows)

		applied, err := repo.IsApplied(context.Background(), "evt_1")
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("failed event is not applied", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := repository.NewWebhookRepository(gormDB, zap.NewNop())

		rows := sqlmock.NewRows([]string{"id", "provider_event_id", "event_type", "status", "processing_attempts"}).
			AddRow(1, "evt_1", "checkout.session.completed", "failed", 2)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook_events"`)).
			WillReturnRows(rows)

		applied, err := repo.IsApplied(context.Background(), "evt_1")
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("unseen event", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := repository.NewWebhookRepository(gormDB, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook_events"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		applied, err := repo.IsApplied(context.Background(), "evt_new")
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("mark applied upserts", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := repository.NewWebhookRepository(gormDB, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "webhook_events"`) + `.*` + regexp.QuoteMeta(`ON CONFLICT ("provider_event_id") DO UPDATE SET`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()

		assert.NoError(t, repo.MarkApplied(context.Background(), "evt_1", "checkout.session.completed"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mark failed increments attempts", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := repository.NewWebhookRepository(gormDB, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "webhook_events"`) + `.*` + regexp.QuoteMeta(`webhook_events.processing_attempts + 1`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()

		assert.NoError(t, repo.MarkFailed(context.Background(), "evt_1", "invoice.payment_succeeded", errors.New("deadlock detected")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_TransactionRollsBack(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook_events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	boom := errors.New("apply failed")
	err := store.Transaction(context.Background(), func(tx domainRepo.Store) error {
		applied, err := tx.WebhookEvents().IsApplied(context.Background(), "evt_1")
		require.NoError(t, err)
		assert.False(t, applied)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
