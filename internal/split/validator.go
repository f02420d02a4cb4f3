package split

import (
	"fmt"
	"math"
)

// Tolerance absorbs float summation error when comparing a category sum to 100.
const Tolerance = 1e-6

const fullAllocation = 100.0

// ValidateSplits sums each category's percentages across splits and reports
// whether every category is fully allocated. An empty set is never valid.
func ValidateSplits(splits []PaymentSplit) ValidationTotals {
	var totals ValidationTotals
	for _, s := range splits {
		totals.Origination += Value(s.OriginationPercent)
		totals.Site += Value(s.SitePercent)
		totals.Deal += Value(s.DealPercent)
	}

	totals.IsValid = len(splits) > 0 &&
		isFullyAllocated(totals.Origination) &&
		isFullyAllocated(totals.Site) &&
		isFullyAllocated(totals.Deal)

	return totals
}

func isFullyAllocated(sum float64) bool {
	return math.Abs(sum-fullAllocation) <= Tolerance
}

// Deviation describes a category whose percentages do not add up to 100.
type Deviation struct {
	Category Category `json:"category"`
	Sum      float64  `json:"sum"`
	// Delta is Sum minus 100; negative means under-allocated.
	Delta float64 `json:"delta"`
}

// Deviations lists the categories that are off, in display order.
func (v ValidationTotals) Deviations() []Deviation {
	var out []Deviation
	for _, c := range Categories {
		sum := v.Sum(c)
		if isFullyAllocated(sum) {
			continue
		}
		out = append(out, Deviation{Category: c, Sum: sum, Delta: sum - fullAllocation})
	}
	return out
}

// Warnings renders one "Check totals" line per deviating category. A payment
// with no splits at all yields a single warning.
func (v ValidationTotals) Warnings(splitCount int) []string {
	if splitCount == 0 {
		return []string{"Check totals: no brokers are assigned to this payment"}
	}

	var warnings []string
	for _, d := range v.Deviations() {
		warnings = append(warnings, fmt.Sprintf("Check totals: %s is %s%% (%s%%)",
			d.Category, formatPercent(d.Sum), formatDelta(d.Delta)))
	}
	return warnings
}

func formatPercent(p float64) string {
	return RoundPercent(p).String()
}

func formatDelta(d float64) string {
	rounded := RoundPercent(d)
	if rounded.IsPositive() {
		return "+" + rounded.String()
	}
	return rounded.String()
}
