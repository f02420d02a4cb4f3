package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-9

func scenarioPools() Pools {
	return Pools{
		OriginationUSD: Float(10000),
		SiteUSD:        Float(5000),
		DealUSD:        Float(8000),
	}
}

func TestCalculateSplitsTwoBrokers(t *testing.T) {
	splits := []PaymentSplit{
		{ID: "a", PaymentID: "p1", BrokerID: "broker-a", OriginationPercent: Float(60), SitePercent: Float(50), DealPercent: Float(100)},
		{ID: "b", PaymentID: "p1", BrokerID: "broker-b", OriginationPercent: Float(40), SitePercent: Float(50), DealPercent: Float(0)},
	}

	got := CalculateSplits(splits, Pools{}, scenarioPools(), 0)
	require.Len(t, got, 2)

	assert.InDelta(t, 6000, got[0].OriginationUSD, delta)
	assert.InDelta(t, 2500, got[0].SiteUSD, delta)
	assert.InDelta(t, 8000, got[0].DealUSD, delta)
	assert.InDelta(t, 16500, got[0].BrokerTotal, delta)

	assert.InDelta(t, 4000, got[1].OriginationUSD, delta)
	assert.InDelta(t, 2500, got[1].SiteUSD, delta)
	assert.InDelta(t, 0, got[1].DealUSD, delta)
	assert.InDelta(t, 6500, got[1].BrokerTotal, delta)

	assert.Equal(t, "broker-a", got[0].BrokerID)
	assert.Equal(t, "p1", got[1].PaymentID)
}

func TestCalculateSplitsBrokerTotalIsSumOfCategories(t *testing.T) {
	tests := []struct {
		name                    string
		origination, site, deal *float64
	}{
		{"whole percents", Float(25), Float(50), Float(75)},
		{"fractional percents", Float(33.333), Float(12.5), Float(0.1)},
		{"negative percent", Float(-10), Float(110), Float(5)},
		{"over one hundred", Float(250), Float(300), Float(101.01)},
		{"all nil", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := []PaymentSplit{{OriginationPercent: tt.origination, SitePercent: tt.site, DealPercent: tt.deal}}
			got := CalculateSplits(in, Pools{}, Pools{OriginationUSD: Float(12345.67), SiteUSD: Float(891.01)}, 777.77)[0]
			assert.Equal(t, got.OriginationUSD+got.SiteUSD+got.DealUSD, got.BrokerTotal)
		})
	}
}

func TestCalculateSplitsNilPercentIsZero(t *testing.T) {
	withNil := CalculateSplits([]PaymentSplit{{SitePercent: Float(50)}}, Pools{}, scenarioPools(), 0)[0]
	withZero := CalculateSplits([]PaymentSplit{{OriginationPercent: Float(0), SitePercent: Float(50), DealPercent: Float(0)}}, Pools{}, scenarioPools(), 0)[0]

	assert.Zero(t, withNil.OriginationUSD)
	assert.Zero(t, withNil.DealUSD)
	assert.Equal(t, withZero.BrokerTotal, withNil.BrokerTotal)
	assert.Nil(t, withNil.OriginationPercent)
}

func TestCalculateSplitsPoolFallback(t *testing.T) {
	splits := []PaymentSplit{{OriginationPercent: Float(50), SitePercent: Float(50), DealPercent: Float(50)}}

	tests := []struct {
		name          string
		dealAmounts   Pools
		deal          Pools
		paymentAmount float64
		want          [3]float64
	}{
		{
			name:          "no pools uses payment amount",
			paymentAmount: 3000,
			want:          [3]float64{1500, 1500, 1500},
		},
		{
			name:          "deal pools win over payment amount",
			deal:          scenarioPools(),
			paymentAmount: 3000,
			want:          [3]float64{5000, 2500, 4000},
		},
		{
			name:          "deal amounts override deal pools",
			dealAmounts:   Pools{SiteUSD: Float(1000)},
			deal:          scenarioPools(),
			paymentAmount: 3000,
			want:          [3]float64{5000, 500, 4000},
		},
		{
			name:          "mixed availability resolves per category",
			deal:          Pools{OriginationUSD: Float(10000)},
			paymentAmount: 3000,
			want:          [3]float64{5000, 1500, 1500},
		},
		{
			name:          "zero pool is a real pool",
			deal:          Pools{DealUSD: Float(0)},
			paymentAmount: 3000,
			want:          [3]float64{1500, 1500, 0},
		},
		{
			name: "missing payment amount degrades to zero",
			want: [3]float64{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateSplits(splits, tt.dealAmounts, tt.deal, tt.paymentAmount)[0]
			assert.InDelta(t, tt.want[0], got.OriginationUSD, delta)
			assert.InDelta(t, tt.want[1], got.SiteUSD, delta)
			assert.InDelta(t, tt.want[2], got.DealUSD, delta)
		})
	}
}

func TestCalculateSplitsDoesNotMutateInput(t *testing.T) {
	in := []PaymentSplit{{ID: "a", OriginationPercent: Float(60), OriginationUSD: -1, BrokerTotal: -1}}

	got := CalculateSplits(in, Pools{}, scenarioPools(), 0)
	*got[0].OriginationPercent = 99

	assert.Equal(t, -1.0, in[0].OriginationUSD)
	assert.Equal(t, -1.0, in[0].BrokerTotal)
	assert.Equal(t, 60.0, *in[0].OriginationPercent)
}

func TestCalculateSplitsIdempotent(t *testing.T) {
	in := []PaymentSplit{
		{ID: "a", OriginationPercent: Float(33.3), SitePercent: Float(12.5), DealPercent: Float(70)},
		{ID: "b", OriginationPercent: Float(66.7), SitePercent: Float(87.5), DealPercent: Float(30)},
	}

	first := CalculateSplits(in, Pools{}, scenarioPools(), 1234.5)
	second := CalculateSplits(in, Pools{}, scenarioPools(), 1234.5)
	assert.Equal(t, first, second)

	again := CalculateSplits(first, Pools{}, scenarioPools(), 1234.5)
	assert.Equal(t, first, again)
}

func TestCalculateSplitsEmpty(t *testing.T) {
	got := CalculateSplits(nil, Pools{}, scenarioPools(), 100)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolvePools(t *testing.T) {
	got := ResolvePools(Pools{DealUSD: Float(1)}, Pools{OriginationUSD: Float(2)}, 3)
	assert.Equal(t, 2.0, *got.OriginationUSD)
	assert.Equal(t, 3.0, *got.SiteUSD)
	assert.Equal(t, 1.0, *got.DealUSD)
}

func TestPaymentAGCI(t *testing.T) {
	tests := []struct {
		name             string
		amount           float64
		referral, house  *float64
		numberOfPayments int
		want             float64
	}{
		{"split evenly across payments", 10000, Float(3000), Float(1500), 3, 8500},
		{"single payment", 10000, Float(3000), Float(1500), 1, 5500},
		{"nil fees", 10000, nil, nil, 4, 10000},
		{"zero payments treated as one", 10000, Float(3000), Float(1500), 0, 5500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PaymentAGCI(tt.amount, tt.referral, tt.house, tt.numberOfPayments), delta)
		})
	}
}
