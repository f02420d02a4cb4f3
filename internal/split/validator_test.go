package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSplitsFullyAllocated(t *testing.T) {
	splits := []PaymentSplit{
		{OriginationPercent: Float(60), SitePercent: Float(50), DealPercent: Float(100)},
		{OriginationPercent: Float(40), SitePercent: Float(50), DealPercent: Float(0)},
	}

	got := ValidateSplits(CalculateSplits(splits, Pools{}, scenarioPools(), 0))
	assert.Equal(t, ValidationTotals{Origination: 100, Site: 100, Deal: 100, IsValid: true}, got)
	assert.Empty(t, got.Deviations())
	assert.Empty(t, got.Warnings(len(splits)))
}

func TestValidateSplitsUnderAllocated(t *testing.T) {
	splits := []PaymentSplit{
		{OriginationPercent: Float(60), SitePercent: Float(50), DealPercent: Float(100)},
		{OriginationPercent: Float(30), SitePercent: Float(50), DealPercent: Float(0)},
	}

	got := ValidateSplits(splits)
	assert.Equal(t, 90.0, got.Origination)
	assert.False(t, got.IsValid)

	deviations := got.Deviations()
	require.Len(t, deviations, 1)
	assert.Equal(t, CategoryOrigination, deviations[0].Category)
	assert.InDelta(t, -10, deviations[0].Delta, delta)

	assert.Equal(t, []string{"Check totals: origination is 90% (-10%)"}, got.Warnings(len(splits)))
}

func TestValidateSplitsEmpty(t *testing.T) {
	got := ValidateSplits([]PaymentSplit{})
	assert.Equal(t, ValidationTotals{Origination: 0, Site: 0, Deal: 0, IsValid: false}, got)
	assert.Len(t, got.Deviations(), 3)
	assert.Equal(t, []string{"Check totals: no brokers are assigned to this payment"}, got.Warnings(0))

	assert.Equal(t, got, ValidateSplits(nil))
}

func TestValidateSplitsTolerance(t *testing.T) {
	thirds := []PaymentSplit{
		{OriginationPercent: Float(33.3), SitePercent: Float(0.1), DealPercent: Float(100)},
		{OriginationPercent: Float(33.3), SitePercent: Float(0.2), DealPercent: Float(0)},
		{OriginationPercent: Float(33.4), SitePercent: Float(99.7), DealPercent: nil},
	}
	assert.True(t, ValidateSplits(thirds).IsValid)
}

func TestValidateSplitsPerturbationFlipsValidity(t *testing.T) {
	base := func() []PaymentSplit {
		return []PaymentSplit{
			{OriginationPercent: Float(60), SitePercent: Float(50), DealPercent: Float(100)},
			{OriginationPercent: Float(40), SitePercent: Float(50), DealPercent: Float(0)},
		}
	}
	require.True(t, ValidateSplits(base()).IsValid)

	const eps = 1e-4
	for _, c := range Categories {
		for _, sign := range []float64{1, -1} {
			splits := base()
			switch c {
			case CategoryOrigination:
				*splits[1].OriginationPercent += sign * eps
			case CategorySite:
				*splits[1].SitePercent += sign * eps
			case CategoryDeal:
				*splits[1].DealPercent += sign * eps
			}

			got := ValidateSplits(splits)
			assert.False(t, got.IsValid, "category %s sign %v", c, sign)
			deviations := got.Deviations()
			require.Len(t, deviations, 1)
			assert.Equal(t, c, deviations[0].Category)
		}
	}
}

func TestValidateSplitsNilEqualsZero(t *testing.T) {
	withNil := ValidateSplits([]PaymentSplit{{OriginationPercent: nil, SitePercent: Float(100), DealPercent: Float(100)}})
	withZero := ValidateSplits([]PaymentSplit{{OriginationPercent: Float(0), SitePercent: Float(100), DealPercent: Float(100)}})
	assert.Equal(t, withZero, withNil)
	assert.Zero(t, withNil.Origination)
}

func TestValidateSplitsOverAllocatedWarning(t *testing.T) {
	got := ValidateSplits([]PaymentSplit{{OriginationPercent: Float(120.5), SitePercent: Float(100), DealPercent: Float(100)}})
	assert.Equal(t, []string{"Check totals: origination is 120.5% (+20.5%)"}, got.Warnings(1))
}
