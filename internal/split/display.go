package split

import "github.com/shopspring/decimal"

const (
	currencyPlaces = 2
	percentPlaces  = 2
)

// RoundCurrency rounds a dollar amount to cents for display. Rounded amounts
// may disagree with their pool by a cent; the unrounded values do not.
func RoundCurrency(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(currencyPlaces)
}

// RoundPercent rounds a percentage for display.
func RoundPercent(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(percentPlaces)
}

// SplitView is a display row for one broker's split.
type SplitView struct {
	SplitID            string          `json:"split_id"`
	BrokerID           string          `json:"broker_id"`
	BrokerName         string          `json:"broker_name"`
	OriginationPercent *float64        `json:"origination_percent"`
	SitePercent        *float64        `json:"site_percent"`
	DealPercent        *float64        `json:"deal_percent"`
	OriginationUSD     decimal.Decimal `json:"origination_usd"`
	SiteUSD            decimal.Decimal `json:"site_usd"`
	DealUSD            decimal.Decimal `json:"deal_usd"`
	BrokerTotal        decimal.Decimal `json:"broker_total"`
}

// NewSplitView rounds a calculated split for display.
func NewSplitView(s PaymentSplit, brokerName string) SplitView {
	return SplitView{
		SplitID:            s.ID,
		BrokerID:           s.BrokerID,
		BrokerName:         brokerName,
		OriginationPercent: s.OriginationPercent,
		SitePercent:        s.SitePercent,
		DealPercent:        s.DealPercent,
		OriginationUSD:     RoundCurrency(s.OriginationUSD),
		SiteUSD:            RoundCurrency(s.SiteUSD),
		DealUSD:            RoundCurrency(s.DealUSD),
		BrokerTotal:        RoundCurrency(s.BrokerTotal),
	}
}

// AmountTotals are the dollar amounts of a payment summed across brokers.
type AmountTotals struct {
	OriginationUSD decimal.Decimal `json:"origination_usd"`
	SiteUSD        decimal.Decimal `json:"site_usd"`
	DealUSD        decimal.Decimal `json:"deal_usd"`
	Total          decimal.Decimal `json:"total"`
}

// Summary is everything a payment view renders for its splits.
type Summary struct {
	Splits     []SplitView      `json:"splits"`
	Totals     AmountTotals     `json:"totals"`
	Validation ValidationTotals `json:"validation"`
	Deviations []Deviation      `json:"deviations,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Summarize validates calculated splits and builds their display rows.
// Totals are summed before rounding. brokerNames may be nil.
func Summarize(calculated []PaymentSplit, brokerNames map[string]string) Summary {
	var origination, site, deal, total float64
	views := make([]SplitView, 0, len(calculated))
	for _, s := range calculated {
		views = append(views, NewSplitView(s, brokerNames[s.BrokerID]))
		origination += s.OriginationUSD
		site += s.SiteUSD
		deal += s.DealUSD
		total += s.BrokerTotal
	}

	validation := ValidateSplits(calculated)
	return Summary{
		Splits: views,
		Totals: AmountTotals{
			OriginationUSD: RoundCurrency(origination),
			SiteUSD:        RoundCurrency(site),
			DealUSD:        RoundCurrency(deal),
			Total:          RoundCurrency(total),
		},
		Validation: validation,
		Deviations: validation.Deviations(),
		Warnings:   validation.Warnings(len(calculated)),
	}
}
