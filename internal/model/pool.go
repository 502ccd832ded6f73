package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool is the constant-product market for one creator token.
type Pool struct {
	ID            string          `json:"id"`
	CreatorID     string          `json:"creator_id"`
	TokenSymbol   string          `json:"token_symbol"`
	NmbrReserve   decimal.Decimal `json:"nmbr_reserve"`
	TokenSupply   decimal.Decimal `json:"token_supply"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketCap     decimal.Decimal `json:"market_cap"`
	Volume24h     decimal.Decimal `json:"volume_24h"`
	VolumeAllTime decimal.Decimal `json:"volume_all_time"`
	HolderCount   int64           `json:"holder_count"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Empty reports whether either side of the curve is depleted.
func (p Pool) Empty() bool {
	return p.NmbrReserve.Sign() <= 0 || p.TokenSupply.Sign() <= 0
}

// PricePoint is one entry of a pool's price history.
type PricePoint struct {
	PoolID     string          `json:"pool_id"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	RecordedAt time.Time       `json:"recorded_at"`
}
