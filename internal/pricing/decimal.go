package pricing

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits kept for stored amounts.
const Scale int32 = 18

var hundred = decimal.NewFromInt(100)

// Unit is the smallest representable amount.
var Unit = decimal.New(1, -Scale)

// divUp divides and rounds toward positive infinity at Scale.
func divUp(a, b decimal.Decimal) decimal.Decimal {
	q, r := a.QuoRem(b, Scale)
	if r.Sign() > 0 {
		q = q.Add(Unit)
	}
	return q
}

// pctOf returns amount*pct/100 rounded up, so fees never round in the user's favor.
func pctOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Shift(-2).RoundCeil(Scale)
}

func validFeePct(pct decimal.Decimal) bool {
	return pct.Sign() >= 0 && pct.LessThan(hundred)
}

// Representable reports whether amount fits in Scale fractional digits.
func Representable(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(Scale))
}

// SpotPrice is currency reserve over token reserve, zero for an empty side.
func SpotPrice(reserveCurrency, reserveTokens decimal.Decimal) decimal.Decimal {
	if reserveCurrency.Sign() == 0 || reserveTokens.Sign() == 0 {
		return decimal.Zero
	}
	return reserveCurrency.DivRound(reserveTokens, Scale)
}
