package split

// CalculateSplits returns a copy of splits with the dollar amounts and broker
// totals filled in.
//
// Each category is priced against its own pool, resolved in order from
// dealAmounts, then deal, then paymentAmount. A nil percentage counts as zero.
// Amounts are left unrounded; use RoundCurrency when displaying them.
func CalculateSplits(splits []PaymentSplit, dealAmounts, deal Pools, paymentAmount float64) []PaymentSplit {
	origination := resolvePool(CategoryOrigination, dealAmounts, deal, paymentAmount)
	site := resolvePool(CategorySite, dealAmounts, deal, paymentAmount)
	dealPool := resolvePool(CategoryDeal, dealAmounts, deal, paymentAmount)

	out := make([]PaymentSplit, len(splits))
	for i, s := range splits {
		calculated := s
		calculated.OriginationPercent = clonePercent(s.OriginationPercent)
		calculated.SitePercent = clonePercent(s.SitePercent)
		calculated.DealPercent = clonePercent(s.DealPercent)

		calculated.OriginationUSD = Value(s.OriginationPercent) / 100 * origination
		calculated.SiteUSD = Value(s.SitePercent) / 100 * site
		calculated.DealUSD = Value(s.DealPercent) / 100 * dealPool
		calculated.BrokerTotal = calculated.OriginationUSD + calculated.SiteUSD + calculated.DealUSD

		out[i] = calculated
	}
	return out
}

// ResolvePools reports the pool each category is priced against, after the
// same fallback CalculateSplits applies.
func ResolvePools(dealAmounts, deal Pools, paymentAmount float64) Pools {
	return Pools{
		OriginationUSD: Float(resolvePool(CategoryOrigination, dealAmounts, deal, paymentAmount)),
		SiteUSD:        Float(resolvePool(CategorySite, dealAmounts, deal, paymentAmount)),
		DealUSD:        Float(resolvePool(CategoryDeal, dealAmounts, deal, paymentAmount)),
	}
}

func resolvePool(c Category, dealAmounts, deal Pools, paymentAmount float64) float64 {
	if p := dealAmounts.Get(c); p != nil {
		return *p
	}
	if p := deal.Get(c); p != nil {
		return *p
	}
	return paymentAmount
}

// clonePercent keeps output splits from aliasing the caller's percent pointers.
func clonePercent(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
