package trace

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Percentage returns value/total*100 rounded to 2 decimals, or 0 when total
// is zero.
func Percentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return round2(decimal.NewFromFloat(value).Div(decimal.NewFromFloat(total)).Mul(hundred))
}

// WeightedPercentage is the quantity-weighted mean of per-batch coverage:
// 100 * Σ q_i*(pct_i/100) / Σ q_i. Entries without the claim pass pct 0.
// The result is clamped to [0, 100] and is 0 for a zero total.
func WeightedPercentage(quantities []decimal.Decimal, pcts []float64) float64 {
	total, covered := decimal.Zero, decimal.Zero
	for i, q := range quantities {
		total = total.Add(q)
		covered = covered.Add(q.Mul(decimal.NewFromFloat(pcts[i])).Div(hundred))
	}
	if total.IsZero() {
		return 0
	}
	pct := round2(covered.Div(total).Mul(hundred))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
