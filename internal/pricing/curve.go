package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
)

// TradeResult is the priced outcome of a trade and the pool state it leaves.
type TradeResult struct {
	Direction          model.Direction
	InputAmount        decimal.Decimal
	OutputAmount       decimal.Decimal
	FeeAmount          decimal.Decimal
	FeePct             decimal.Decimal
	PricePerToken      decimal.Decimal
	PriceImpactPct     decimal.Decimal
	OldPrice           decimal.Decimal
	NewReserveCurrency decimal.Decimal
	NewReserveTokens   decimal.Decimal
	NewPrice           decimal.Decimal
}

// GrossCurrency is the currency that moved across the curve before fees:
// the full amount spent on a buy, the output plus fee on a sell.
func (r TradeResult) GrossCurrency() decimal.Decimal {
	if r.Direction == model.DirectionBuy {
		return r.InputAmount
	}
	return r.OutputAmount.Add(r.FeeAmount)
}

// Quote prices a trade against a constant-product pool.
//
// A buy spends amount currency; the fee is taken from the input before it
// enters the curve. A sell spends amount tokens; the curve output is taken
// gross and the fee is deducted from it. Every rounding step leaves the
// remainder in the pool, so reserve_currency*reserve_tokens never decreases.
func Quote(direction model.Direction, amount, reserveCurrency, reserveTokens, feePct decimal.Decimal) (TradeResult, error) {
	if reserveCurrency.Sign() <= 0 || reserveTokens.Sign() <= 0 {
		return TradeResult{}, ErrEmptyPool
	}
	if amount.Sign() <= 0 {
		return TradeResult{}, fmt.Errorf("%w: amount %s is not positive", ErrInvariant, amount)
	}
	if !validFeePct(feePct) {
		return TradeResult{}, fmt.Errorf("%w: fee %s outside [0,100)", ErrInvariant, feePct)
	}

	switch direction {
	case model.DirectionBuy:
		return quoteBuy(amount, reserveCurrency, reserveTokens, feePct)
	case model.DirectionSell:
		return quoteSell(amount, reserveCurrency, reserveTokens, feePct)
	default:
		return TradeResult{}, fmt.Errorf("%w: unknown direction %q", ErrInvariant, direction)
	}
}

func quoteBuy(amount, x, y, feePct decimal.Decimal) (TradeResult, error) {
	feeAmount := pctOf(amount, feePct)
	afterFee := amount.Sub(feeAmount)

	k := x.Mul(y)
	newX := x.Add(afterFee)
	newY := divUp(k, newX)
	tokensOut := y.Sub(newY)

	if newY.Sign() <= 0 {
		return TradeResult{}, fmt.Errorf("%w: token reserve would be %s", ErrInvariant, newY)
	}
	if tokensOut.Sign() <= 0 {
		return TradeResult{}, ErrZeroOutput
	}

	oldPrice := SpotPrice(x, y)
	newPrice := SpotPrice(newX, newY)

	return TradeResult{
		Direction:          model.DirectionBuy,
		InputAmount:        amount,
		OutputAmount:       tokensOut,
		FeeAmount:          feeAmount,
		FeePct:             feePct,
		PricePerToken:      amount.DivRound(tokensOut, Scale),
		PriceImpactPct:     impactPct(newPrice.Sub(oldPrice), oldPrice),
		OldPrice:           oldPrice,
		NewReserveCurrency: newX,
		NewReserveTokens:   newY,
		NewPrice:           newPrice,
	}, nil
}

func quoteSell(amount, x, y, feePct decimal.Decimal) (TradeResult, error) {
	k := x.Mul(y)
	newY := y.Add(amount)
	newX := divUp(k, newY)
	gross := x.Sub(newX)

	if newX.Sign() < 0 {
		return TradeResult{}, fmt.Errorf("%w: currency reserve would be %s", ErrInvariant, newX)
	}

	feeAmount := pctOf(gross, feePct)
	currencyOut := gross.Sub(feeAmount)
	if currencyOut.Sign() <= 0 {
		return TradeResult{}, ErrZeroOutput
	}

	oldPrice := SpotPrice(x, y)
	newPrice := SpotPrice(newX, newY)

	return TradeResult{
		Direction:          model.DirectionSell,
		InputAmount:        amount,
		OutputAmount:       currencyOut,
		FeeAmount:          feeAmount,
		FeePct:             feePct,
		PricePerToken:      currencyOut.DivRound(amount, Scale),
		PriceImpactPct:     impactPct(oldPrice.Sub(newPrice), oldPrice),
		OldPrice:           oldPrice,
		NewReserveCurrency: newX,
		NewReserveTokens:   newY,
		NewPrice:           newPrice,
	}, nil
}

func impactPct(delta, oldPrice decimal.Decimal) decimal.Decimal {
	if oldPrice.Sign() <= 0 {
		return decimal.Zero
	}
	return delta.Mul(hundred).DivRound(oldPrice, Scale)
}
