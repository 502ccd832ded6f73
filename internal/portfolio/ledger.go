package portfolio

import (
	"context"
	"fmt"

	"creatorExchange/internal/storage"
)

// Reader is the read side of the store the ledger projects from.
type Reader interface {
	Portfolio(ctx context.Context, userID string) (storage.PortfolioView, error)
}

// Ledger computes valuations on demand from authoritative pool prices.
type Ledger struct {
	reader Reader
}

func NewLedger(reader Reader) *Ledger {
	return &Ledger{reader: reader}
}

// Holdings values every position userID holds.
func (l *Ledger) Holdings(ctx context.Context, userID string) ([]Valuation, error) {
	view, err := l.reader.Portfolio(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	return valuePositions(view.Positions), nil
}

// Summary values all holdings and totals them with the account balance. Both
// come from a single store read, so a concurrent trade is counted in full or
// not at all.
func (l *Ledger) Summary(ctx context.Context, userID string) (Summary, error) {
	view, err := l.reader.Portfolio(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("load portfolio: %w", err)
	}
	account := view.Account
	if account.UserID == "" {
		account.UserID = userID
	}
	return Summarize(account, valuePositions(view.Positions)), nil
}

func valuePositions(positions []storage.Position) []Valuation {
	vals := make([]Valuation, 0, len(positions))
	for _, p := range positions {
		if p.Holding.TokenAmount.Sign() <= 0 {
			continue
		}
		vals = append(vals, Value(p.Holding, p.Pool))
	}
	return vals
}
