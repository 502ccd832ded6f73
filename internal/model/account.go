package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's platform currency balance.
type Account struct {
	UserID        string          `json:"user_id"`
	NmbrBalance   decimal.Decimal `json:"nmbr_balance"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Holding is a user's position in one creator token.
type Holding struct {
	UserID         string          `json:"user_id"`
	CreatorID      string          `json:"creator_id"`
	TokenAmount    decimal.Decimal `json:"token_amount"`
	AvgBuyPrice    decimal.Decimal `json:"avg_buy_price"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
