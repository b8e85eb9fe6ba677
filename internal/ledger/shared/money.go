package shared

import "github.com/shopspring/decimal"

// Tolerance is the rounding slack allowed between entry debit and credit totals.
var Tolerance = decimal.New(1, -2) // 0.01

// Balanced reports whether debit and credit totals agree within Tolerance.
func Balanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThanOrEqual(Tolerance)
}

// Percent computes base*rate/100 rounded to two decimal places.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
}
