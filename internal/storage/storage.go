// Package storage defines the persistence contract the exchange settles against.
package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
)

var (
	// ErrNotFound is returned when a pool, account or holding does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a commit raced another writer and may be retried.
	ErrConflict = errors.New("write conflict")
	// ErrExists is returned when creating a pool for a creator that already has one.
	ErrExists = errors.New("already exists")
)

// Snapshot is the state read under a pool's exclusive lock.
type Snapshot struct {
	Pool    model.Pool
	Account model.Account
	// Holding is the zero value with HasHolding unset when the user holds none.
	Holding    model.Holding
	HasHolding bool
}

// Settlement is the write set of one trade. It is committed all at once or not at all.
type Settlement struct {
	// Pool.Version must be the snapshot version plus one.
	Pool    model.Pool
	Account model.Account
	Holding model.Holding
	// DeleteHolding removes the (user, creator) holding instead of upserting Holding.
	DeleteHolding bool
	Transaction   model.Transaction
	PricePoint    model.PricePoint
}

// SettleFunc computes a write set from a locked snapshot. A returned error
// aborts the settlement without any mutation and is passed back unchanged.
type SettleFunc func(Snapshot) (Settlement, error)

// Position is a holding with the pool it is valued against.
type Position struct {
	Holding model.Holding
	Pool    model.Pool
}

// PortfolioView is a user's account and positions read from a single state of
// the store. Account is the zero account for the user when none exists.
type PortfolioView struct {
	Account   model.Account
	Positions []Position
}

// Reader is the read side of a Store.
type Reader interface {
	Pool(ctx context.Context, creatorID string) (model.Pool, error)
	Account(ctx context.Context, userID string) (model.Account, error)
	Holding(ctx context.Context, userID, creatorID string) (model.Holding, error)
	Holdings(ctx context.Context, userID string) ([]model.Holding, error)
	// Portfolio reads the account, holdings and their pools in one consistent read.
	Portfolio(ctx context.Context, userID string) (PortfolioView, error)
	// Transactions returns one page, newest first, and the total matching count.
	Transactions(ctx context.Context, q model.HistoryQuery) ([]model.Transaction, int, error)
	// PriceHistory returns up to limit points for a pool, newest first.
	PriceHistory(ctx context.Context, poolID string, limit int) ([]model.PricePoint, error)
}

// Store persists pools, balances, holdings and the transaction log.
type Store interface {
	Reader

	// Settle serializes on creatorID's pool, passes the current state to fn and
	// commits the returned write set atomically.
	Settle(ctx context.Context, creatorID, userID string, fn SettleFunc) error

	CreatePool(ctx context.Context, pool model.Pool) error
	// Credit adds amount to a user's balance, creating the account if needed.
	Credit(ctx context.Context, userID string, amount decimal.Decimal) (model.Account, error)

	Close() error
}

// Journal receives committed transactions for export.
type Journal interface {
	Append(entries ...JournalEntry) error
}

// CheckVersion returns ErrConflict unless set is the direct successor of snap.
func CheckVersion(snap Snapshot, set Settlement) error {
	if set.Pool.Version != snap.Pool.Version+1 || set.Pool.ID != snap.Pool.ID {
		return ErrConflict
	}
	return nil
}
