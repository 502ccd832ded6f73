package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"creatorExchange/internal/model"
	"creatorExchange/internal/pricing"
	"creatorExchange/internal/storage"
)

// ErrPoolExists is returned when listing a creator that already has a pool.
var ErrPoolExists = errors.New("pool already exists")

// ListPool opens a pool for creatorID priced at initialPrice. The reserve is
// initialPrice times the initial token supply so the spot price starts there.
func (c *Coordinator) ListPool(ctx context.Context, creatorID, symbol string, initialPrice decimal.Decimal) (model.Pool, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return model.Pool{}, fmt.Errorf("list pool: creator id required")
	}
	if initialPrice.Sign() <= 0 {
		return model.Pool{}, fmt.Errorf("list pool %s: initial price must be positive", creatorID)
	}
	if symbol == "" {
		symbol = strings.ToUpper(creatorID)
	}

	supply := c.engine.Config().InitialTokenSupply
	reserve := initialPrice.Mul(supply).Truncate(pricing.Scale)
	price := pricing.SpotPrice(reserve, supply)
	now := c.now()
	pool := model.Pool{
		ID:           uuid.NewString(),
		CreatorID:    creatorID,
		TokenSymbol:  symbol,
		NmbrReserve:  reserve,
		TokenSupply:  supply,
		CurrentPrice: price,
		MarketCap:    price.Mul(c.cfg.TotalTokenSupply).Truncate(pricing.Scale),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.store.CreatePool(ctx, pool); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return model.Pool{}, fmt.Errorf("list pool %s: %w", creatorID, ErrPoolExists)
		}
		return model.Pool{}, fmt.Errorf("list pool %s: %w", creatorID, err)
	}

	c.logger.Info("pool listed",
		zap.String("creator", creatorID),
		zap.String("symbol", symbol),
		zap.String("reserve", reserve.String()),
		zap.String("price", price.String()),
	)
	return pool, nil
}

// Fund credits amount of platform currency to userID.
func (c *Coordinator) Fund(ctx context.Context, userID string, amount decimal.Decimal) (model.Account, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Account{}, fmt.Errorf("fund: user id required")
	}
	if amount.Sign() <= 0 {
		return model.Account{}, fmt.Errorf("fund %s: amount must be positive", userID)
	}
	acct, err := c.store.Credit(ctx, userID, amount)
	if err != nil {
		return model.Account{}, fmt.Errorf("fund %s: %w", userID, err)
	}
	c.logger.Info("account funded",
		zap.String("user", userID),
		zap.String("amount", amount.String()),
		zap.String("balance", acct.NmbrBalance.String()),
	)
	return acct, nil
}
