package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/fullmeo/aimastery-billing/internal/domain/errors"
	pkgerrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		id        string
		name      string
		cents     int64
		trialDays int
		quota     int
	}{
		{PlanFree, "AIMastery Free", 0, 0, 3},
		{PlanSocialPack, "Social Media Pack", 900, 7, 100},
		{PlanProVincien, "Pro Vincien", 1500, 14, Unlimited},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, err := Lookup(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.id, p.ID)
			assert.Equal(t, tt.name, p.DisplayName)
			assert.Equal(t, tt.cents, p.PriceMinorUnits())
			assert.Equal(t, tt.trialDays, p.TrialDays)
			assert.Equal(t, tt.quota, p.MonthlyQuota)
			assert.Equal(t, "eur", p.Currency)
		})
	}

	_, err := Lookup("enterprise")
	assert.ErrorIs(t, err, domainErrors.ErrPlanNotFound)
	assert.Equal(t, pkgerrors.ErrNotFound, pkgerrors.CodeOf(err))
	_, err = Lookup("")
	assert.ErrorIs(t, err, domainErrors.ErrPlanNotFound)
}

func TestLookupIsPure(t *testing.T) {
	p, err := Lookup(PlanSocialPack)
	require.NoError(t, err)
	p.Platforms[0] = "myspace"
	p.Features[0] = "time_travel"
	p.MonthlyQuota = 1

	again, err := Lookup(PlanSocialPack)
	require.NoError(t, err)
	assert.Equal(t, "instagram", again.Platforms[0])
	assert.Equal(t, FeatureAIGeneration, again.Features[0])
	assert.Equal(t, 100, again.MonthlyQuota)
}

func TestPlanPredicates(t *testing.T) {
	assert.False(t, Free().IsPurchasable())
	assert.False(t, Free().IsUnlimited())

	pro, _ := Lookup(PlanProVincien)
	assert.True(t, pro.IsPurchasable())
	assert.True(t, pro.IsUnlimited())
}

func TestAllOrderedByTier(t *testing.T) {
	all := All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{PlanFree, PlanSocialPack, PlanProVincien}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestUpgradesFrom(t *testing.T) {
	ids := func(ps []Plan) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []string{PlanSocialPack, PlanProVincien}, ids(UpgradesFrom(PlanFree)))
	assert.Equal(t, []string{PlanProVincien}, ids(UpgradesFrom(PlanSocialPack)))
	assert.Empty(t, UpgradesFrom(PlanProVincien))
	assert.Equal(t, []string{PlanSocialPack, PlanProVincien}, ids(UpgradesFrom("unknown")))
}

func TestHasFeature(t *testing.T) {
	social, err := Lookup(PlanSocialPack)
	require.NoError(t, err)
	pro, err := Lookup(PlanProVincien)
	require.NoError(t, err)

	assert.True(t, Free().HasFeature(FeatureAIGeneration))
	assert.False(t, Free().HasFeature(FeatureMultiPlatform))

	assert.True(t, social.HasFeature(FeatureTemplatesBasic))
	assert.False(t, social.HasFeature(FeatureAnalyticsAdvanced))
	assert.False(t, social.HasFeature(FeatureSupportPriority))

	for _, f := range []string{FeatureTemplatesPremium, FeatureAnalyticsAdvanced, FeatureSupportPriority, FeatureUnlimitedCredits} {
		assert.True(t, pro.HasFeature(f), f)
	}
	assert.False(t, pro.HasFeature("time_travel"))
}
