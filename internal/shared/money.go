package shared

import "github.com/shopspring/decimal"

// CashTolerance is the largest reconciliation or payment-sum difference
// treated as zero: one cent.
var CashTolerance = decimal.New(1, -2)

// WithinTolerance reports whether |a − b| ≤ tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(tolerance) <= 0
}

// RoundMoney normalises a monetary amount to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
