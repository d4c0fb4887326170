package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	"github.com/fullmeo/aimastery-billing/internal/infrastructure/database"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
)

var reportFlags struct {
	start  string
	end    string
	plan   string
	status string
	top    int
	events bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a revenue report, MRR and top customers as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := reportFilter()
		if err != nil {
			return err
		}

		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		store, closeStore, err := database.NewStore(&cfg.Database, log)
		if err != nil {
			return err
		}
		defer closeStore()

		ledger := usecase.NewRevenueLedger(store, log)
		return writeReport(cmd.Context(), cmd.OutOrStdout(), ledger, filter, reportFlags.top, reportFlags.events)
	},
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.start, "start", "", "inclusive lower bound (RFC3339)")
	f.StringVar(&reportFlags.end, "end", "", "inclusive upper bound (RFC3339)")
	f.StringVar(&reportFlags.plan, "plan", "", "only events of this plan")
	f.StringVar(&reportFlags.status, "status", "", "only events with this status (completed, pending, failed)")
	f.IntVar(&reportFlags.top, "top", 10, "number of top customers to include")
	f.BoolVar(&reportFlags.events, "events", false, "include the matched events")
}

func reportFilter() (model.RevenueFilter, error) {
	filter := model.RevenueFilter{
		PlanID: reportFlags.plan,
		Status: model.RevenueStatus(reportFlags.status),
	}
	for _, b := range []struct {
		raw string
		dst **time.Time
		tag string
	}{
		{reportFlags.start, &filter.Start, "--start"},
		{reportFlags.end, &filter.End, "--end"},
	} {
		if b.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, b.raw)
		if err != nil {
			return filter, fmt.Errorf("%s: %w", b.tag, err)
		}
		*b.dst = &t
	}
	return filter, nil
}

type reportOutput struct {
	Report       *usecase.RevenueReport    `json:"report"`
	MRR          *usecase.MRRSummary       `json:"mrr"`
	TopCustomers []usecase.CustomerRevenue `json:"topCustomers"`
}

func writeReport(ctx context.Context, w io.Writer, ledger *usecase.RevenueLedger, filter model.RevenueFilter, top int, withEvents bool) error {
	report, err := ledger.Report(ctx, filter)
	if err != nil {
		return err
	}
	if !withEvents {
		report.Events = nil
	}

	mrr, err := ledger.MonthlyRecurringRevenue(ctx)
	if err != nil {
		return err
	}

	customers, err := ledger.TopCustomers(ctx, top)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reportOutput{Report: report, MRR: mrr, TopCustomers: customers})
}
