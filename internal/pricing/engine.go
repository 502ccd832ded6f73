// Package pricing implements the constant-product bonding curve, the
// early-entry fee model and the slippage guard. Nothing here does I/O.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
)

var (
	ErrInvalidConfig = errors.New("invalid pricing config")
	ErrEmptyPool     = errors.New("pool has no liquidity")
	ErrZeroOutput    = errors.New("trade output rounds to zero")
	ErrInvariant     = errors.New("pricing invariant violated")
)

// Config is the immutable fee configuration of an Engine.
type Config struct {
	BaseFeePct         decimal.Decimal
	MaxFeePct          decimal.Decimal
	FeeDecayThreshold  decimal.Decimal
	InitialTokenSupply decimal.Decimal
}

// Validate rejects configurations the fee model cannot run with.
func (c Config) Validate() error {
	if !validFeePct(c.BaseFeePct) {
		return fmt.Errorf("%w: base fee %s outside [0,100)", ErrInvalidConfig, c.BaseFeePct)
	}
	if !validFeePct(c.MaxFeePct) {
		return fmt.Errorf("%w: max fee %s outside [0,100)", ErrInvalidConfig, c.MaxFeePct)
	}
	if c.MaxFeePct.LessThan(c.BaseFeePct) {
		return fmt.Errorf("%w: max fee %s below base fee %s", ErrInvalidConfig, c.MaxFeePct, c.BaseFeePct)
	}
	if c.FeeDecayThreshold.Sign() <= 0 {
		return fmt.Errorf("%w: fee decay threshold must be positive", ErrInvalidConfig)
	}
	if c.InitialTokenSupply.Sign() <= 0 {
		return fmt.Errorf("%w: initial token supply must be positive", ErrInvalidConfig)
	}
	return nil
}

// Engine prices trades against a pool using a fixed Config.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine bound to it.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// FeePct returns the fee percentage for a trade in the given direction
// against a pool that currently holds tokenSupply tokens.
func (e *Engine) FeePct(direction model.Direction, tokenSupply decimal.Decimal) decimal.Decimal {
	if direction != model.DirectionBuy {
		return e.cfg.BaseFeePct
	}
	return DynamicFeePct(
		TokensBought(e.cfg.InitialTokenSupply, tokenSupply),
		e.cfg.BaseFeePct,
		e.cfg.MaxFeePct,
		e.cfg.FeeDecayThreshold,
	)
}

// Quote prices a trade of amount against the given reserves, choosing the
// fee from the engine's fee model.
func (e *Engine) Quote(direction model.Direction, amount, reserveCurrency, reserveTokens decimal.Decimal) (TradeResult, error) {
	return Quote(direction, amount, reserveCurrency, reserveTokens, e.FeePct(direction, reserveTokens))
}
