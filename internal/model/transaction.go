package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the immutable record of one executed trade.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"user_id"`
	PoolID         string          `json:"pool_id"`
	CreatorID      string          `json:"creator_id"`
	Type           Direction       `json:"type"`
	TokenAmount    decimal.Decimal `json:"token_amount"`
	NmbrAmount     decimal.Decimal `json:"nmbr_amount"`
	PricePerToken  decimal.Decimal `json:"price_per_token"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
	FeePct         decimal.Decimal `json:"fee_pct"`
	SlippagePct    decimal.Decimal `json:"slippage_pct"`
	PriceImpactPct decimal.Decimal `json:"price_impact_pct"`
	CreatedAt      time.Time       `json:"created_at"`
}

// HistoryQuery selects a page of a user's transactions, newest first.
type HistoryQuery struct {
	UserID    string
	CreatorID string
	Limit     int
	Offset    int
}
