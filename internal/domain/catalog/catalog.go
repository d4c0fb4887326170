// Package catalog holds the fixed set of subscription plans.
//
// The table is compiled in and never mutated at runtime; every lookup is a
// pure function of the plan identifier.
package catalog

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
)

const (
	PlanFree       = "free"
	PlanSocialPack = "social_pack"
	PlanProVincien = "pro_vincien"
)

// Unlimited is the MonthlyQuota of plans without a usage cap.
const Unlimited = -1

// DefaultCurrency is the ISO 4217 code all plans are billed in.
const DefaultCurrency = "eur"

// Features gated by plan.
const (
	FeatureAIGeneration      = "ai_generation"
	FeatureMultiPlatform     = "multi_platform"
	FeatureTemplatesBasic    = "templates_basic"
	FeatureTemplatesPremium  = "templates_premium"
	FeatureExportDirect      = "export_direct"
	FeatureAnalyticsAdvanced = "analytics_advanced"
	FeatureSupportPriority   = "support_priority"
	FeatureUnlimitedCredits  = "unlimited_credits"
)

// Plan describes one subscription tier.
type Plan struct {
	ID           string          `json:"id"`
	DisplayName  string          `json:"name"`
	Price        decimal.Decimal `json:"price"` // major units per month
	Currency     string          `json:"currency"`
	TrialDays    int             `json:"trialDays"`
	MonthlyQuota int             `json:"monthlyQuota"`
	Tier         int             `json:"tier"`
	Platforms    []string        `json:"platforms"`
	Support      string          `json:"support"`
	Features     []string        `json:"features"`
}

// IsUnlimited reports whether the plan has no usage cap.
func (p Plan) IsUnlimited() bool {
	return p.MonthlyQuota == Unlimited
}

// IsPurchasable reports whether a checkout session can be opened for the plan.
func (p Plan) IsPurchasable() bool {
	return p.Price.IsPositive()
}

// HasFeature reports whether the plan includes feature.
func (p Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// PriceMinorUnits returns the price in the currency's minor unit (cents).
func (p Plan) PriceMinorUnits() int64 {
	return p.Price.Shift(2).Round(0).IntPart()
}

var plans = map[string]Plan{
	PlanFree: {
		ID:           PlanFree,
		DisplayName:  "AIMastery Free",
		Price:        decimal.Zero,
		Currency:     DefaultCurrency,
		MonthlyQuota: 3,
		Tier:         0,
		Platforms:    []string{"instagram", "linkedin"},
		Support:      "community",
		Features:     []string{FeatureAIGeneration},
	},
	PlanSocialPack: {
		ID:           PlanSocialPack,
		DisplayName:  "Social Media Pack",
		Price:        decimal.RequireFromString("9.00"),
		Currency:     DefaultCurrency,
		TrialDays:    7,
		MonthlyQuota: 100,
		Tier:         1,
		Platforms:    []string{"instagram", "linkedin", "tiktok", "youtube"},
		Support:      "email",
		Features: []string{
			FeatureAIGeneration,
			FeatureMultiPlatform,
			FeatureTemplatesBasic,
			FeatureExportDirect,
		},
	},
	PlanProVincien: {
		ID:           PlanProVincien,
		DisplayName:  "Pro Vincien",
		Price:        decimal.RequireFromString("15.00"),
		Currency:     DefaultCurrency,
		TrialDays:    14,
		MonthlyQuota: Unlimited,
		Tier:         2,
		Platforms:    []string{"instagram", "linkedin", "tiktok", "youtube", "pinterest", "twitter"},
		Support:      "priority",
		Features: []string{
			FeatureAIGeneration,
			FeatureMultiPlatform,
			FeatureTemplatesPremium,
			FeatureAnalyticsAdvanced,
			FeatureSupportPriority,
			FeatureExportDirect,
			FeatureUnlimitedCredits,
		},
	},
}

// Lookup returns the plan with the given identifier, or an error wrapping
// ErrPlanNotFound.
func Lookup(planID string) (Plan, error) {
	p, ok := plans[planID]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", domainErrors.ErrPlanNotFound, planID)
	}
	return clone(p), nil
}

// Free returns the default plan every user starts on.
func Free() Plan {
	return clone(plans[PlanFree])
}

// All returns every plan ordered by tier.
func All() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// UpgradesFrom returns the plans of a higher tier than planID, ordered by
// tier. An unknown plan is treated as free.
func UpgradesFrom(planID string) []Plan {
	current, ok := plans[planID]
	if !ok {
		current = plans[PlanFree]
	}
	var out []Plan
	for _, p := range All() {
		if p.Tier > current.Tier {
			out = append(out, p)
		}
	}
	return out
}

func clone(p Plan) Plan {
	p.Platforms = append([]string(nil), p.Platforms...)
	p.Features = append([]string(nil), p.Features...)
	return p
}
