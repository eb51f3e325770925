package alerting

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Discount returns how far price sits below cmv, in percent rounded to two places. It is negative
// when price is above cmv and nil when cmv is not positive.
func Discount(price, cmv decimal.Decimal) *decimal.Decimal {
	if cmv.Sign() <= 0 {
		return nil
	}
	d := cmv.Sub(price).Div(cmv).Mul(hundred).Round(2)
	return &d
}

// IsDeal reports whether a positive price undercuts cmv by strictly more than thresholdPct.
// A non-positive threshold disables detection.
func IsDeal(price, cmv, thresholdPct decimal.Decimal) (decimal.Decimal, bool) {
	if thresholdPct.Sign() <= 0 || price.Sign() <= 0 {
		return decimal.Zero, false
	}
	d := Discount(price, cmv)
	if d == nil {
		return decimal.Zero, false
	}
	return *d, d.GreaterThan(thresholdPct)
}
