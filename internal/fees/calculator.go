// Package fees computes trade fees from platform-configured schedules.
package fees

import (
	"github.com/shopspring/decimal"

	"lv-securities/internal/model"
)

var oneHundred = decimal.NewFromInt(100)

// Calculate returns clamp(base*percent/100 + flat, min, max) rounded to
// the USD minor unit. It never returns a negative amount as long as the
// schedule's minimum is non-negative.
func Calculate(base decimal.Decimal, s model.FeeSchedule) decimal.Decimal {
	fee := base.Mul(s.Percent).Div(oneHundred).Add(s.Flat)
	if fee.LessThan(s.Min) {
		fee = s.Min
	}
	if s.Max.IsPositive() && fee.GreaterThan(s.Max) {
		fee = s.Max
	}
	return fee.Round(2)
}
