package pricing

import "github.com/shopspring/decimal"

// TokensBought is how many tokens have left the pool since it was seeded.
func TokensBought(initialSupply, currentSupply decimal.Decimal) decimal.Decimal {
	bought := initialSupply.Sub(currentSupply)
	if bought.Sign() < 0 {
		return decimal.Zero
	}
	return bought
}

// DynamicFeePct decays linearly from maxFeePct to baseFeePct as tokensBought
// goes from zero to decayThreshold, and stays at baseFeePct afterwards.
// decayThreshold must be positive; Config.Validate guarantees that.
func DynamicFeePct(tokensBought, baseFeePct, maxFeePct, decayThreshold decimal.Decimal) decimal.Decimal {
	if tokensBought.Sign() < 0 {
		tokensBought = decimal.Zero
	}
	if tokensBought.GreaterThanOrEqual(decayThreshold) {
		return baseFeePct
	}
	progress := tokensBought.DivRound(decayThreshold, Scale)
	fee := maxFeePct.Sub(maxFeePct.Sub(baseFeePct).Mul(progress))
	return fee.RoundCeil(Scale)
}
