package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fullmeo/aimastery-billing/internal/adapter/repository/memory"
	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
	"github.com/fullmeo/aimastery-billing/pkg/messaging"
)

type fakeEnsurer struct {
	calls []string
	fail  string
}

func (f *fakeEnsurer) EnsurePrice(_ context.Context, plan catalog.Plan) (string, bool, error) {
	f.calls = append(f.calls, plan.ID)
	if plan.ID == f.fail {
		return "", false, errors.New("stripe down")
	}
	return "price_" + plan.ID, plan.ID == catalog.PlanProVincien, nil
}

func TestSyncPlans(t *testing.T) {
	ensurer := &fakeEnsurer{}
	prices, err := syncPlans(context.Background(), ensurer, catalog.All(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{catalog.PlanSocialPack, catalog.PlanProVincien}, ensurer.calls)
	assert.Equal(t, map[string]string{
		catalog.PlanSocialPack: "price_social_pack",
		catalog.PlanProVincien: "price_pro_vincien",
	}, prices)

	var buf bytes.Buffer
	require.NoError(t, writePriceMapping(&buf, prices))

	var doc priceMapping
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "price_social_pack", doc.Checkout.Prices[catalog.PlanSocialPack])
	assert.Contains(t, buf.String(), "checkout:\n  prices:\n")

	_, err = syncPlans(context.Background(), &fakeEnsurer{fail: catalog.PlanSocialPack}, catalog.All(), zap.NewNop())
	assert.ErrorContains(t, err, "social_pack")
}

func TestWriteReport(t *testing.T) {
	ctx := context.Background()
	ledger := usecase.NewRevenueLedger(memory.New(0), zap.NewNop())
	for _, e := range []usecase.RevenueEntry{
		{UserID: "u1", Amount: 10, PlanID: catalog.PlanSocialPack, Status: model.RevenueStatusCompleted},
		{UserID: "u2", Amount: 5, PlanID: catalog.PlanSocialPack, Status: model.RevenueStatusFailed},
		{UserID: "u1", Amount: 20, PlanID: catalog.PlanSocialPack, Status: model.RevenueStatusCompleted},
	} {
		_, err := ledger.Append(ctx, e)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, writeReport(ctx, &buf, ledger, model.RevenueFilter{}, 5, false))

	var out struct {
		Report struct {
			TotalRevenue int64 `json:"totalRevenue"`
			EventCount   int   `json:"eventCount"`
			UserCount    int   `json:"userCount"`
			Events       []interface{}
		} `json:"report"`
		MRR struct {
			Amount int64 `json:"amount"`
		} `json:"mrr"`
		TopCustomers []usecase.CustomerRevenue `json:"topCustomers"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, int64(30), out.Report.TotalRevenue)
	assert.Equal(t, 3, out.Report.EventCount)
	assert.Equal(t, 2, out.Report.UserCount)
	assert.Empty(t, out.Report.Events)
	assert.Equal(t, int64(30), out.MRR.Amount)
	require.Len(t, out.TopCustomers, 1)
	assert.Equal(t, "u1", out.TopCustomers[0].UserID)
}

func TestReportFilter(t *testing.T) {
	reportFlags.start = "2026-01-01T00:00:00Z"
	reportFlags.end = ""
	reportFlags.status = "completed"
	t.Cleanup(func() { reportFlags.start, reportFlags.status = "", "" })

	filter, err := reportFilter()
	require.NoError(t, err)
	require.NotNil(t, filter.Start)
	assert.Nil(t, filter.End)
	assert.Equal(t, model.RevenueStatusCompleted, filter.Status)

	reportFlags.start = "yesterday"
	_, err = reportFilter()
	assert.ErrorContains(t, err, "--start")
}

type fakeSubscriber struct {
	messages chan messaging.Message
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ string) (<-chan messaging.Message, error) {
	return f.messages, nil
}

func TestWatch(t *testing.T) {
	sub := &fakeSubscriber{messages: make(chan messaging.Message, 2)}
	sub.messages <- messaging.Message{
		Channel: "billing.events",
		Payload: []byte(`{"type":"entitlement.upgraded","user_id":"u1"}`),
		Time:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	close(sub.messages)

	var buf bytes.Buffer
	require.NoError(t, watch(context.Background(), sub, "billing.events", &buf))
	assert.Equal(t, "2026-03-01T10:00:00Z {\"type\":\"entitlement.upgraded\",\"user_id\":\"u1\"}\n", buf.String())
}
