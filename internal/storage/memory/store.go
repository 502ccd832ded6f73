// Package memory is an in-process Store. Trades serialize on a per-pool lock
// and then a per-user lock; the write set is published under one mutex so
// readers never observe part of a settlement.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
	"creatorExchange/internal/storage"
)

type holdingKey struct {
	userID    string
	creatorID string
}

// Store keeps all state in maps guarded by mu.
type Store struct {
	mu       sync.RWMutex
	pools    map[string]model.Pool
	accounts map[string]model.Account
	holdings map[holdingKey]model.Holding
	txs      []model.Transaction
	prices   map[string][]model.PricePoint

	poolLocks *keyedMutex
	userLocks *keyedMutex
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		pools:     make(map[string]model.Pool),
		accounts:  make(map[string]model.Account),
		holdings:  make(map[holdingKey]model.Holding),
		prices:    make(map[string][]model.PricePoint),
		poolLocks: newKeyedMutex(),
		userLocks: newKeyedMutex(),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) Pool(_ context.Context, creatorID string) (model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[creatorID]
	if !ok {
		return model.Pool{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) Account(_ context.Context, userID string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[userID]
	if !ok {
		return model.Account{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) Holding(_ context.Context, userID, creatorID string) (model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holdings[holdingKey{userID, creatorID}]
	if !ok {
		return model.Holding{}, storage.ErrNotFound
	}
	return h, nil
}

// Holdings returns userID's holdings ordered by creator.
func (s *Store) Holdings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Holding
	for k, h := range s.holdings {
		if k.userID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatorID < out[j].CreatorID })
	return out, nil
}

// Portfolio reads under one read lock, so a concurrent settlement is either
// fully visible or not at all.
func (s *Store) Portfolio(_ context.Context, userID string) (storage.PortfolioView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := storage.PortfolioView{Account: model.Account{UserID: userID}}
	if a, ok := s.accounts[userID]; ok {
		view.Account = a
	}
	for k, h := range s.holdings {
		if k.userID != userID {
			continue
		}
		pool, ok := s.pools[k.creatorID]
		if !ok {
			return storage.PortfolioView{}, fmt.Errorf("pool %s: %w", k.creatorID, storage.ErrNotFound)
		}
		view.Positions = append(view.Positions, storage.Position{Holding: h, Pool: pool})
	}
	sort.Slice(view.Positions, func(i, j int) bool {
		return view.Positions[i].Holding.CreatorID < view.Positions[j].Holding.CreatorID
	})
	return view, nil
}

func (s *Store) Transactions(_ context.Context, q model.HistoryQuery) ([]model.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.Transaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		tx := s.txs[i]
		if tx.UserID != q.UserID {
			continue
		}
		if q.CreatorID != "" && tx.CreatorID != q.CreatorID {
			continue
		}
		matched = append(matched, tx)
	}

	total := len(matched)
	if q.Offset >= total {
		return []model.Transaction{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	page := make([]model.Transaction, end-q.Offset)
	copy(page, matched[q.Offset:end])
	return page, total, nil
}

func (s *Store) PriceHistory(_ context.Context, poolID string, limit int) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points := s.prices[poolID]
	out := make([]model.PricePoint, 0, len(points))
	for i := len(points) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, points[i])
	}
	return out, nil
}

func (s *Store) CreatePool(_ context.Context, pool model.Pool) error {
	if pool.CreatorID == "" {
		return fmt.Errorf("create pool: creator id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.CreatorID]; ok {
		return fmt.Errorf("create pool %s: %w", pool.CreatorID, storage.ErrExists)
	}
	s.pools[pool.CreatorID] = pool
	return nil
}

func (s *Store) Credit(ctx context.Context, userID string, amount decimal.Decimal) (model.Account, error) {
	if amount.Sign() <= 0 {
		return model.Account{}, fmt.Errorf("credit %s: amount must be positive", userID)
	}
	unlock, err := s.userLocks.Lock(ctx, userID)
	if err != nil {
		return model.Account{}, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		a = model.Account{UserID: userID}
	}
	a.NmbrBalance = a.NmbrBalance.Add(amount)
	s.accounts[userID] = a
	return a, nil
}

// Settle holds the pool lock and then the user lock for the whole
// read-compute-commit sequence.
func (s *Store) Settle(ctx context.Context, creatorID, userID string, fn storage.SettleFunc) error {
	unlockPool, err := s.poolLocks.Lock(ctx, creatorID)
	if err != nil {
		return err
	}
	defer unlockPool()
	unlockUser, err := s.userLocks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlockUser()

	snap, err := s.snapshot(creatorID, userID)
	if err != nil {
		return err
	}

	set, err := fn(snap)
	if err != nil {
		return err
	}
	if err := storage.CheckVersion(snap, set); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pools[creatorID].Version != snap.Pool.Version {
		return storage.ErrConflict
	}
	s.pools[creatorID] = set.Pool
	s.accounts[userID] = set.Account
	key := holdingKey{userID, creatorID}
	if set.DeleteHolding {
		delete(s.holdings, key)
	} else {
		s.holdings[key] = set.Holding
	}
	s.txs = append(s.txs, set.Transaction)
	s.prices[set.Pool.ID] = append(s.prices[set.Pool.ID], set.PricePoint)
	return nil
}

func (s *Store) snapshot(creatorID, userID string) (storage.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[creatorID]
	if !ok {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	account, ok := s.accounts[userID]
	if !ok {
		account = model.Account{UserID: userID}
	}
	holding, has := s.holdings[holdingKey{userID, creatorID}]
	return storage.Snapshot{Pool: pool, Account: account, Holding: holding, HasHolding: has}, nil
}
