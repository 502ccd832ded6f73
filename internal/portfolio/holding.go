// Package portfolio keeps per-creator positions and derives their valuation.
package portfolio

import (
	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
	"creatorExchange/internal/pricing"
)

// ApplyBuy adds tokens bought at price for spent currency to h. A zero h
// (no existing position) opens a new one.
func ApplyBuy(h model.Holding, tokens, price, spent decimal.Decimal) model.Holding {
	total := h.TokenAmount.Add(tokens)
	if total.Sign() <= 0 {
		return h
	}

	weighted := h.TokenAmount.Mul(h.AvgBuyPrice).Add(tokens.Mul(price))
	h.AvgBuyPrice = weighted.DivRound(total, pricing.Scale)
	h.TokenAmount = total
	h.TotalCostBasis = h.TotalCostBasis.Add(spent)
	return h
}

// SellResult describes a position after part or all of it was sold.
type SellResult struct {
	Holding model.Holding
	// Closed is set when nothing is left and the holding must be removed.
	Closed bool
	// ReleasedCost is tokens*avg_buy_price, the invested amount leaving the position.
	ReleasedCost decimal.Decimal
}

// ApplySell removes tokens from h. The average buy price is unchanged and
// the cost basis shrinks in proportion to the tokens that remain.
func ApplySell(h model.Holding, tokens decimal.Decimal) SellResult {
	released := tokens.Mul(h.AvgBuyPrice).Round(pricing.Scale)
	remaining := h.TokenAmount.Sub(tokens)
	if remaining.Sign() <= 0 {
		h.TokenAmount = decimal.Zero
		h.TotalCostBasis = decimal.Zero
		return SellResult{Holding: h, Closed: true, ReleasedCost: released}
	}

	h.TotalCostBasis = h.TotalCostBasis.Mul(remaining).DivRound(h.TokenAmount, pricing.Scale)
	h.TokenAmount = remaining
	return SellResult{Holding: h, ReleasedCost: released}
}
