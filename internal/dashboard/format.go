package dashboard

import "github.com/shopspring/decimal"

// Round2 rounds to two decimals, half away from zero, working from the
// shortest decimal form of f so 1.005 becomes 1.01.
func Round2(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}

// Format2 renders f with exactly two decimals under the Round2 rule.
func Format2(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(2)
}
