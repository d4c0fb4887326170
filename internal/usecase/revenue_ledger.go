package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/domain/catalog"
	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	"github.com/fullmeo/aimastery-billing/internal/domain/model"
	"github.com/fullmeo/aimastery-billing/internal/domain/repository"
)

const (
	// mrrWindow is the trailing window whose completed total is the MRR.
	mrrWindow = 30 * 24 * time.Hour

	defaultTopCustomers = 10
	maxTopCustomers     = 100
)

// RevenueEntry is the caller-supplied part of a ledger event; the ledger
// assigns the id and timestamp.
type RevenueEntry struct {
	UserID        string
	Amount        int64 // minor units
	Currency      string
	PlanID        string
	Status        model.RevenueStatus
	Metadata      map[string]interface{}
	SourceEventID string
}

// RevenueReport aggregates the events matched by a filter. TotalRevenue only
// counts completed events; EventCount and UserCount cover every match.
type RevenueReport struct {
	TotalRevenue   int64                         `json:"totalRevenue"`
	FormattedTotal string                        `json:"formattedTotal"`
	AmountByStatus map[model.RevenueStatus]int64 `json:"amountByStatus"`
	EventCount     int                           `json:"eventCount"`
	UserCount      int                           `json:"userCount"`
	Events         []model.RevenueEvent          `json:"events"`
	StartDate      *time.Time                    `json:"startDate,omitempty"`
	EndDate        *time.Time                    `json:"endDate,omitempty"`
}

// MRRSummary is the monthly recurring revenue estimate.
type MRRSummary struct {
	Amount      int64     `json:"amount"`
	Formatted   string    `json:"formatted"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
}

// CustomerRevenue is the completed revenue attributed to one user.
type CustomerRevenue struct {
	UserID       string `json:"userId"`
	TotalRevenue int64  `json:"totalRevenue"`
	Formatted    string `json:"formatted"`
	EventCount   int    `json:"eventCount"`
}

// RevenueLedger appends monetization events and aggregates them for
// reporting. Events are never modified once appended.
type RevenueLedger struct {
	store  repository.Store
	now    func() time.Time
	logger *zap.Logger
}

// NewRevenueLedger creates a new revenue ledger
func NewRevenueLedger(store repository.Store, logger *zap.Logger) *RevenueLedger {
	return &RevenueLedger{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source used for timestamps and the MRR window.
func (l *RevenueLedger) WithClock(now func() time.Time) *RevenueLedger {
	l.now = now
	return l
}

// Append records entry and returns the stored event.
func (l *RevenueLedger) Append(ctx context.Context, entry RevenueEntry) (*model.RevenueEvent, error) {
	return l.AppendIn(ctx, l.store.Revenue(), entry)
}

// AppendIn is Append against repo, typically a transactional view.
func (l *RevenueLedger) AppendIn(ctx context.Context, repo repository.RevenueRepository, entry RevenueEntry) (*model.RevenueEvent, error) {
	if err := validateEntry(&entry); err != nil {
		return nil, err
	}

	evt := &model.RevenueEvent{
		EventID:   uuid.NewString(),
		UserID:    entry.UserID,
		Amount:    entry.Amount,
		Currency:  entry.Currency,
		PlanID:    entry.PlanID,
		Status:    entry.Status,
		Timestamp: l.now().UTC(),
		Metadata:  model.JSONB(entry.Metadata),
	}
	if entry.SourceEventID != "" {
		src := entry.SourceEventID
		evt.SourceEventID = &src
	}

	if err := repo.Append(ctx, evt); err != nil {
		l.logger.Error("Failed to append revenue event",
			zap.String("user_id", entry.UserID),
			zap.String("source_event_id", entry.SourceEventID),
			zap.Error(err))
		return nil, storeError("append revenue event", err)
	}

	l.logger.Info("Revenue event recorded",
		zap.String("event_id", evt.EventID),
		zap.String("user_id", evt.UserID),
		zap.String("plan", evt.PlanID),
		zap.Int64("amount", evt.Amount),
		zap.String("status", string(evt.Status)))

	return evt, nil
}

func validateEntry(entry *RevenueEntry) error {
	if entry.UserID == "" {
		return fmt.Errorf("%w: user id is required", domainErrors.ErrInvalidRevenueEvent)
	}
	if entry.PlanID == "" {
		return fmt.Errorf("%w: plan is required", domainErrors.ErrInvalidRevenueEvent)
	}
	if entry.Amount < 0 {
		return fmt.Errorf("%w: negative amount %d", domainErrors.ErrInvalidRevenueEvent, entry.Amount)
	}
	if !entry.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domainErrors.ErrInvalidRevenueEvent, entry.Status)
	}
	if entry.Currency == "" {
		entry.Currency = catalog.DefaultCurrency
	}
	entry.Currency = strings.ToLower(entry.Currency)
	return nil
}

// Report aggregates every event matched by filter.
func (l *RevenueLedger) Report(ctx context.Context, filter model.RevenueFilter) (*RevenueReport, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domainErrors.ErrInvalidRequest, filter.Status)
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, fmt.Errorf("%w: end date before start date", domainErrors.ErrInvalidRequest)
	}

	events, err := l.store.Revenue().List(ctx, filter)
	if err != nil {
		return nil, storeError("list revenue events", err)
	}

	report := &RevenueReport{
		AmountByStatus: make(map[model.RevenueStatus]int64),
		Events:         events,
		StartDate:      filter.Start,
		EndDate:        filter.End,
	}
	if report.Events == nil {
		report.Events = []model.RevenueEvent{}
	}

	users := make(map[string]struct{})
	for i := range events {
		report.AmountByStatus[events[i].Status] += events[i].Amount
		users[events[i].UserID] = struct{}{}
	}
	report.TotalRevenue = report.AmountByStatus[model.RevenueStatusCompleted]
	report.EventCount = len(events)
	report.UserCount = len(users)
	report.FormattedTotal = formatMinor(report.TotalRevenue)

	return report, nil
}

// MonthlyRecurringRevenue is the completed total of the trailing 30 days.
func (l *RevenueLedger) MonthlyRecurringRevenue(ctx context.Context) (*MRRSummary, error) {
	end := l.now().UTC()
	start := end.Add(-mrrWindow)

	events, err := l.store.Revenue().List(ctx, model.RevenueFilter{
		Start:  &start,
		End:    &end,
		Status: model.RevenueStatusCompleted,
	})
	if err != nil {
		return nil, storeError("list revenue events", err)
	}

	var total int64
	for i := range events {
		total += events[i].Amount
	}

	return &MRRSummary{
		Amount:      total,
		Formatted:   formatMinor(total),
		WindowStart: start,
		WindowEnd:   end,
	}, nil
}

// TopCustomers returns the users with the highest completed revenue. Ties
// keep the order in which the users first appear in the ledger.
func (l *RevenueLedger) TopCustomers(ctx context.Context, limit int) ([]CustomerRevenue, error) {
	if limit < 1 {
		limit = defaultTopCustomers
	} else if limit > maxTopCustomers {
		limit = maxTopCustomers
	}

	events, err := l.store.Revenue().List(ctx, model.RevenueFilter{Status: model.RevenueStatusCompleted})
	if err != nil {
		return nil, storeError("list revenue events", err)
	}

	index := make(map[string]int)
	var customers []CustomerRevenue
	for i := range events {
		pos, ok := index[events[i].UserID]
		if !ok {
			pos = len(customers)
			index[events[i].UserID] = pos
			customers = append(customers, CustomerRevenue{UserID: events[i].UserID})
		}
		customers[pos].TotalRevenue += events[i].Amount
		customers[pos].EventCount++
	}

	sort.SliceStable(customers, func(i, j int) bool {
		return customers[i].TotalRevenue > customers[j].TotalRevenue
	})
	if len(customers) > limit {
		customers = customers[:limit]
	}
	for i := range customers {
		customers[i].Formatted = formatMinor(customers[i].TotalRevenue)
	}
	if customers == nil {
		customers = []CustomerRevenue{}
	}
	return customers, nil
}

// UserRevenue is the lifetime completed revenue of one user.
func (l *RevenueLedger) UserRevenue(ctx context.Context, userID string) (*CustomerRevenue, error) {
	if userID == "" {
		return nil, domainErrors.ErrMissingIdentity
	}

	events, err := l.store.Revenue().List(ctx, model.RevenueFilter{
		UserID: userID,
		Status: model.RevenueStatusCompleted,
	})
	if err != nil {
		return nil, storeError("list revenue events", err)
	}

	out := &CustomerRevenue{UserID: userID, EventCount: len(events)}
	for i := range events {
		out.TotalRevenue += events[i].Amount
	}
	out.Formatted = formatMinor(out.TotalRevenue)
	return out, nil
}

// formatMinor renders minor units as a major-unit amount, e.g. 900 -> "9.00".
func formatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
