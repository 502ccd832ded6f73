package pricing

import "github.com/shopspring/decimal"

// CheckSlippage compares a quoted output with the output available now.
// Only a worse-than-expected output counts as slippage; a better one yields
// a negative value and always passes. A zero expectation always passes.
func CheckSlippage(expected, actual, maxSlippagePct decimal.Decimal) (bool, decimal.Decimal) {
	if expected.Sign() == 0 {
		return true, decimal.Zero
	}
	slippage := expected.Sub(actual).Mul(hundred).DivRound(expected, Scale)
	return slippage.LessThanOrEqual(maxSlippagePct), slippage
}
