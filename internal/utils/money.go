// internal/utils/money.go
package utils

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToCents converts an amount to the smallest currency unit for payment APIs.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}

// Percent returns d * pct / 100, rounded to cents.
func Percent(d, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(d.Mul(pct).Div(hundred))
}
