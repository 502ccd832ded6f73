package portfolio

import (
	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
	"creatorExchange/internal/pricing"
)

var hundred = decimal.NewFromInt(100)

// Valuation is a holding marked to its pool's current price.
type Valuation struct {
	CreatorID     string          `json:"creator_id"`
	TokenSymbol   string          `json:"token_symbol"`
	TokenAmount   decimal.Decimal `json:"token_amount"`
	AvgBuyPrice   decimal.Decimal `json:"avg_buy_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPct        decimal.Decimal `json:"pnl_pct"`
	AllocationPct decimal.Decimal `json:"allocation_pct"`
}

// Value marks h to pool's current price.
func Value(h model.Holding, pool model.Pool) Valuation {
	value := h.TokenAmount.Mul(pool.CurrentPrice).Round(pricing.Scale)
	pnl := value.Sub(h.TotalCostBasis)
	return Valuation{
		CreatorID:    h.CreatorID,
		TokenSymbol:  pool.TokenSymbol,
		TokenAmount:  h.TokenAmount,
		AvgBuyPrice:  h.AvgBuyPrice,
		CurrentPrice: pool.CurrentPrice,
		CurrentValue: value,
		CostBasis:    h.TotalCostBasis,
		PnL:          pnl,
		PnLPct:       percentOf(pnl, h.TotalCostBasis),
	}
}

// Allocate sets each valuation's share of the summed current value.
func Allocate(vals []Valuation) {
	total := decimal.Zero
	for _, v := range vals {
		total = total.Add(v.CurrentValue)
	}
	for i := range vals {
		vals[i].AllocationPct = percentOf(vals[i].CurrentValue, total)
	}
}

// Summary is a user's whole position set plus their currency balance.
type Summary struct {
	UserID         string          `json:"user_id"`
	Holdings       []Valuation     `json:"holdings"`
	TotalValue     decimal.Decimal `json:"total_value"`
	TotalCostBasis decimal.Decimal `json:"total_invested"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	ROIPct         decimal.Decimal `json:"roi_pct"`
	NmbrBalance    decimal.Decimal `json:"nmbr_balance"`
}

// Summarize totals vals for account. vals get their allocation filled in.
func Summarize(account model.Account, vals []Valuation) Summary {
	Allocate(vals)

	value, cost := decimal.Zero, decimal.Zero
	for _, v := range vals {
		value = value.Add(v.CurrentValue)
		cost = cost.Add(v.CostBasis)
	}
	pnl := value.Sub(cost)

	if vals == nil {
		vals = []Valuation{}
	}
	return Summary{
		UserID:         account.UserID,
		Holdings:       vals,
		TotalValue:     value,
		TotalCostBasis: cost,
		TotalPnL:       pnl,
		ROIPct:         percentOf(pnl, cost),
		NmbrBalance:    account.NmbrBalance,
	}
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.Sign() <= 0 {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(whole, pricing.Scale)
}
