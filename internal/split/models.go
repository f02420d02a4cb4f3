// Package split derives broker commission amounts from percentage splits and
// checks that each payment's allocation is complete.
//
// Everything here is a pure function over values: inputs are never mutated and
// results are freshly allocated, so callers may share them across goroutines.
package split

// Category is one of the three commission buckets a broker can be credited in.
type Category string

const (
	CategoryOrigination Category = "origination"
	CategorySite        Category = "site"
	CategoryDeal        Category = "deal"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryOrigination, CategorySite, CategoryDeal}

// PaymentSplit is one broker's share of a single payment.
// The percent fields are inputs; the USD fields and BrokerTotal are derived
// by CalculateSplits and must not be edited by hand.
type PaymentSplit struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	BrokerID  string `json:"broker_id"`

	OriginationPercent *float64 `json:"origination_percent"`
	SitePercent        *float64 `json:"site_percent"`
	DealPercent        *float64 `json:"deal_percent"`

	OriginationUSD float64 `json:"origination_usd"`
	SiteUSD        float64 `json:"site_usd"`
	DealUSD        float64 `json:"deal_usd"`
	BrokerTotal    float64 `json:"broker_total"`
}

// Percent returns the stored percentage for c, treating nil as zero.
func (s PaymentSplit) Percent(c Category) float64 {
	switch c {
	case CategoryOrigination:
		return Value(s.OriginationPercent)
	case CategorySite:
		return Value(s.SitePercent)
	case CategoryDeal:
		return Value(s.DealPercent)
	}
	return 0
}

// Amount returns the derived dollar amount for c.
func (s PaymentSplit) Amount(c Category) float64 {
	switch c {
	case CategoryOrigination:
		return s.OriginationUSD
	case CategorySite:
		return s.SiteUSD
	case CategoryDeal:
		return s.DealUSD
	}
	return 0
}

// Pools holds the dollar pool per category for a deal. A nil field means the
// deal does not track that category separately.
type Pools struct {
	OriginationUSD *float64 `json:"origination_usd"`
	SiteUSD        *float64 `json:"site_usd"`
	DealUSD        *float64 `json:"deal_usd"`
}

// Get returns the pool for c, or nil when unset.
func (p Pools) Get(c Category) *float64 {
	switch c {
	case CategoryOrigination:
		return p.OriginationUSD
	case CategorySite:
		return p.SiteUSD
	case CategoryDeal:
		return p.DealUSD
	}
	return nil
}

// ValidationTotals is the per-category percentage sum across every split of
// one payment.
type ValidationTotals struct {
	Origination float64 `json:"origination"`
	Site        float64 `json:"site"`
	Deal        float64 `json:"deal"`
	IsValid     bool    `json:"is_valid"`
}

// Sum returns the summed percentage for c.
func (v ValidationTotals) Sum(c Category) float64 {
	switch c {
	case CategoryOrigination:
		return v.Origination
	case CategorySite:
		return v.Site
	case CategoryDeal:
		return v.Deal
	}
	return 0
}

// Value dereferences f, returning 0 for nil.
func Value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}
