// Package storagetest is a conformance suite every storage.Store must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"creatorExchange/internal/model"
	"creatorExchange/internal/storage"
)

// Factory returns an empty store; the suite closes it.
type Factory func(t *testing.T) storage.Store

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"CreateAndReadPool", testCreateAndReadPool},
		{"Credit", testCredit},
		{"SettleCommitsWriteSet", testSettleCommitsWriteSet},
		{"SettleAbortLeavesNoTrace", testSettleAbort},
		{"SettleRejectsStaleVersion", testSettleStaleVersion},
		{"SettleDeletesHolding", testSettleDeletesHolding},
		{"SettleUnknownPool", testSettleUnknownPool},
		{"TransactionsPaging", testTransactionsPaging},
		{"ConcurrentSettleSerializes", testConcurrentSettle},
		{"TransactionsTotalMatchesPage", testTransactionsTotalMatchesPage},
		{"PortfolioView", testPortfolioView},
		{"PortfolioConsistentUnderSettle", testPortfolioConsistent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stamp is truncated so every backend round-trips it exactly.
func stamp() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func newPool(creatorID string) model.Pool {
	now := stamp()
	return model.Pool{
		ID:            uuid.NewString(),
		CreatorID:     creatorID,
		TokenSymbol:   "TKN",
		NmbrReserve:   d("90000"),
		TokenSupply:   d("9000000"),
		CurrentPrice:  d("0.01"),
		MarketCap:     d("100000"),
		Volume24h:     decimal.Zero,
		VolumeAllTime: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// buy moves spent currency into the pool and tokens to the user, without
// any curve math; the suite only checks persistence.
func buy(snap storage.Snapshot, spent, tokens decimal.Decimal) storage.Settlement {
	now := stamp()
	pool := snap.Pool
	pool.NmbrReserve = pool.NmbrReserve.Add(spent)
	pool.TokenSupply = pool.TokenSupply.Sub(tokens)
	pool.VolumeAllTime = pool.VolumeAllTime.Add(spent)
	pool.Version++
	pool.UpdatedAt = now
	if !snap.HasHolding {
		pool.HolderCount++
	}

	account := snap.Account
	account.NmbrBalance = account.NmbrBalance.Sub(spent)
	account.TotalInvested = account.TotalInvested.Add(spent)
	account.UpdatedAt = now

	holding := snap.Holding
	holding.UserID = snap.Account.UserID
	holding.CreatorID = pool.CreatorID
	holding.TokenAmount = holding.TokenAmount.Add(tokens)
	holding.AvgBuyPrice = d("0.01")
	holding.TotalCostBasis = holding.TotalCostBasis.Add(spent)
	holding.UpdatedAt = now

	return storage.Settlement{
		Pool:    pool,
		Account: account,
		Holding: holding,
		Transaction: model.Transaction{
			ID:             uuid.New(),
			UserID:         snap.Account.UserID,
			PoolID:         pool.ID,
			CreatorID:      pool.CreatorID,
			Type:           model.DirectionBuy,
			TokenAmount:    tokens,
			NmbrAmount:     spent,
			PricePerToken:  d("0.01"),
			FeeAmount:      decimal.Zero,
			FeePct:         decimal.Zero,
			SlippagePct:    decimal.Zero,
			PriceImpactPct: decimal.Zero,
			CreatedAt:      now,
		},
		PricePoint: model.PricePoint{PoolID: pool.ID, Price: d("0.01"), Volume: spent, RecordedAt: now},
	}
}

func settleBuy(ctx context.Context, s storage.Store, creatorID, userID string, spent, tokens decimal.Decimal) error {
	return s.Settle(ctx, creatorID, userID, func(snap storage.Snapshot) (storage.Settlement, error) {
		return buy(snap, spent, tokens), nil
	})
}

func testCreateAndReadPool(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	pool := newPool("alice")
	require.NoError(s.CreatePool(ctx, pool))

	got, err := s.Pool(ctx, "alice")
	require.NoError(err)
	require.Equal(pool.ID, got.ID)
	require.Equal("TKN", got.TokenSymbol)
	require.True(pool.NmbrReserve.Equal(got.NmbrReserve))
	require.True(pool.TokenSupply.Equal(got.TokenSupply))
	require.True(pool.CurrentPrice.Equal(got.CurrentPrice))
	require.Equal(int64(0), got.Version)
	require.True(pool.CreatedAt.Equal(got.CreatedAt))

	err = s.CreatePool(ctx, newPool("alice"))
	require.ErrorIs(err, storage.ErrExists)

	_, err = s.Pool(ctx, "nobody")
	require.ErrorIs(err, storage.ErrNotFound)
}

func testCredit(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	_, err := s.Account(ctx, "u1")
	require.ErrorIs(err, storage.ErrNotFound)

	_, err = s.Credit(ctx, "u1", d("100.5"))
	require.NoError(err)
	acct, err := s.Credit(ctx, "u1", d("0.25"))
	require.NoError(err)
	require.True(d("100.75").Equal(acct.NmbrBalance), acct.NmbrBalance.String())

	got, err := s.Account(ctx, "u1")
	require.NoError(err)
	require.True(d("100.75").Equal(got.NmbrBalance))

	_, err = s.Credit(ctx, "u1", d("-1"))
	require.Error(err)
}

func testSettleCommitsWriteSet(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	pool := newPool("alice")
	require.NoError(s.CreatePool(ctx, pool))
	_, err := s.Credit(ctx, "u1", d("5000"))
	require.NoError(err)

	var seen storage.Snapshot
	err = s.Settle(ctx, "alice", "u1", func(snap storage.Snapshot) (storage.Settlement, error) {
		seen = snap
		return buy(snap, d("1000"), d("88448.844884488448844884")), nil
	})
	require.NoError(err)
	require.False(seen.HasHolding)
	require.True(d("5000").Equal(seen.Account.NmbrBalance))

	got, err := s.Pool(ctx, "alice")
	require.NoError(err)
	require.Equal(int64(1), got.Version)
	require.Equal(int64(1), got.HolderCount)
	require.True(d("91000").Equal(got.NmbrReserve), got.NmbrReserve.String())
	require.True(d("8911551.155115511551155116").Equal(got.TokenSupply), got.TokenSupply.String())

	acct, err := s.Account(ctx, "u1")
	require.NoError(err)
	require.True(d("4000").Equal(acct.NmbrBalance))
	require.True(d("1000").Equal(acct.TotalInvested))

	h, err := s.Holding(ctx, "u1", "alice")
	require.NoError(err)
	require.True(d("88448.844884488448844884").Equal(h.TokenAmount), h.TokenAmount.String())

	hs, err := s.Holdings(ctx, "u1")
	require.NoError(err)
	require.Len(hs, 1)

	txs, total, err := s.Transactions(ctx, model.HistoryQuery{UserID: "u1", Limit: 10})
	require.NoError(err)
	require.Equal(1, total)
	require.Len(txs, 1)
	require.Equal(model.DirectionBuy, txs[0].Type)
	require.True(d("1000").Equal(txs[0].NmbrAmount))

	points, err := s.PriceHistory(ctx, pool.ID, 10)
	require.NoError(err)
	require.Len(points, 1)
	require.True(d("1000").Equal(points[0].Volume))
}

func testSettleAbort(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	require.NoError(s.CreatePool(ctx, newPool("alice")))
	_, err := s.Credit(ctx, "u1", d("10"))
	require.NoError(err)

	boom := errors.New("rejected")
	err = s.Settle(ctx, "alice", "u1", func(storage.Snapshot) (storage.Settlement, error) {
		return storage.Settlement{}, fmt.Errorf("guard: %w", boom)
	})
	require.ErrorIs(err, boom)

	assertUntouched(t, s, "alice", "u1", d("10"))
}

func testSettleStaleVersion(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	require.NoError(s.CreatePool(ctx, newPool("alice")))
	_, err := s.Credit(ctx, "u1", d("10"))
	require.NoError(err)

	err = s.Settle(ctx, "alice", "u1", func(snap storage.Snapshot) (storage.Settlement, error) {
		set := buy(snap, d("1"), d("1"))
		set.Pool.Version = snap.Pool.Version + 2
		return set, nil
	})
	require.ErrorIs(err, storage.ErrConflict)

	assertUntouched(t, s, "alice", "u1", d("10"))
}

func assertUntouched(t *testing.T, s storage.Store, creatorID, userID string, balance decimal.Decimal) {
	t.Helper()
	require := require.New(t)
	ctx := context.Background()

	pool, err := s.Pool(ctx, creatorID)
	require.NoError(err)
	require.Equal(int64(0), pool.Version)
	require.True(d("90000").Equal(pool.NmbrReserve))
	require.Equal(int64(0), pool.HolderCount)

	acct, err := s.Account(ctx, userID)
	require.NoError(err)
	require.True(balance.Equal(acct.NmbrBalance))

	_, err = s.Holding(ctx, userID, creatorID)
	require.ErrorIs(err, storage.ErrNotFound)

	_, total, err := s.Transactions(ctx, model.HistoryQuery{UserID: userID})
	require.NoError(err)
	require.Zero(total)

	points, err := s.PriceHistory(ctx, pool.ID, 0)
	require.NoError(err)
	require.Empty(points)
}

func testSettleDeletesHolding(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	require.NoError(s.CreatePool(ctx, newPool("alice")))
	_, err := s.Credit(ctx, "u1", d("10"))
	require.NoError(err)
	require.NoError(settleBuy(ctx, s, "alice", "u1", d("5"), d("500")))

	err = s.Settle(ctx, "alice", "u1", func(snap storage.Snapshot) (storage.Settlement, error) {
		require.True(snap.HasHolding)
		set := buy(snap, d("0"), d("0"))
		set.Pool.HolderCount = snap.Pool.HolderCount - 1
		set.DeleteHolding = true
		set.Transaction.Type = model.DirectionSell
		return set, nil
	})
	require.NoError(err)

	_, err = s.Holding(ctx, "u1", "alice")
	require.ErrorIs(err, storage.ErrNotFound)
	hs, err := s.Holdings(ctx, "u1")
	require.NoError(err)
	require.Empty(hs)

	pool, err := s.Pool(ctx, "alice")
	require.NoError(err)
	require.Equal(int64(0), pool.HolderCount)
	require.Equal(int64(2), pool.Version)
}

func testSettleUnknownPool(t *testing.T, s storage.Store) {
	called := false
	err := s.Settle(context.Background(), "ghost", "u1", func(storage.Snapshot) (storage.Settlement, error) {
		called = true
		return storage.Settlement{}, nil
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.False(t, called)
}

func testTransactionsPaging(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	require.NoError(s.CreatePool(ctx, newPool("alice")))
	require.NoError(s.CreatePool(ctx, newPool("bob")))
	_, err := s.Credit(ctx, "u1", d("100"))
	require.NoError(err)

	for i := 1; i <= 5; i++ {
		creator := "alice"
		if i%2 == 0 {
			creator = "bob"
		}
		require.NoError(settleBuy(ctx, s, creator, "u1", decimal.NewFromInt(int64(i)), d("1")))
		time.Sleep(2 * time.Millisecond)
	}

	page, total, err := s.Transactions(ctx, model.HistoryQuery{UserID: "u1", Limit: 2})
	require.NoError(err)
	require.Equal(5, total)
	require.Len(page, 2)
	require.True(d("5").Equal(page[0].NmbrAmount), "newest first")
	require.True(d("4").Equal(page[1].NmbrAmount))

	page, _, err = s.Transactions(ctx, model.HistoryQuery{UserID: "u1", Limit: 2, Offset: 4})
	require.NoError(err)
	require.Len(page, 1)
	require.True(d("1").Equal(page[0].NmbrAmount))

	page, total, err = s.Transactions(ctx, model.HistoryQuery{UserID: "u1", CreatorID: "bob", Limit: 10})
	require.NoError(err)
	require.Equal(2, total)
	require.Len(page, 2)
	for _, tx := range page {
		require.Equal("bob", tx.CreatorID)
	}

	page, total, err = s.Transactions(ctx, model.HistoryQuery{UserID: "u1", Limit: 10, Offset: 50})
	require.NoError(err)
	require.Equal(5, total)
	require.Empty(page)

	_, total, err = s.Transactions(ctx, model.HistoryQuery{UserID: "someone-else", Limit: 10})
	require.NoError(err)
	require.Zero(total)
}

func testConcurrentSettle(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	require.NoError(s.CreatePool(ctx, newPool("alice")))
	const workers = 8
	for i := 0; i < workers; i++ {
		_, err := s.Credit(ctx, fmt.Sprintf("u%d", i), d("100"))
		require.NoError(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for {
				err := settleBuy(ctx, s, "alice", user, d("1"), d("10"))
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				errs <- err
				return
			}
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}

	pool, err := s.Pool(ctx, "alice")
	require.NoError(err)
	require.Equal(int64(workers), pool.Version)
	require.Equal(int64(workers), pool.HolderCount)
	require.True(d("90008").Equal(pool.NmbrReserve), pool.NmbrReserve.String())
	require.True(d("8999920").Equal(pool.TokenSupply), pool.TokenSupply.String())
}

func testPortfolioView(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	view, err := s.Portfolio(ctx, "nobody")
	require.NoError(err)
	require.Equal("nobody", view.Account.UserID)
	require.True(view.Account.NmbrBalance.IsZero())
	require.Empty(view.Positions)

	require.NoError(s.CreatePool(ctx, newPool("bob")))
	require.NoError(s.CreatePool(ctx, newPool("alice")))
	_, err = s.Credit(ctx, "u1", d("100"))
	require.NoError(err)
	require.NoError(settleBuy(ctx, s, "bob", "u1", d("3"), d("300")))
	require.NoError(settleBuy(ctx, s, "alice", "u1", d("2"), d("200")))

	view, err = s.Portfolio(ctx, "u1")
	require.NoError(err)
	require.True(d("95").Equal(view.Account.NmbrBalance), view.Account.NmbrBalance.String())
	require.Len(view.Positions, 2)
	require.Equal("alice", view.Positions[0].Holding.CreatorID, "ordered by creator")
	require.Equal("alice", view.Positions[0].Pool.CreatorID)
	require.Equal(int64(1), view.Positions[0].Pool.Version)
	require.True(d("200").Equal(view.Positions[0].Holding.TokenAmount))
	require.Equal("bob", view.Positions[1].Pool.CreatorID)
	require.True(d("90003").Equal(view.Positions[1].Pool.NmbrReserve))
}

// testPortfolioConsistent reads portfolios while buys commit. Every buy moves
// spent from the balance into cost basis and adds ten tokens per unit spent,
// so any view mixing pre- and post-trade rows breaks the sums.
func testPortfolioConsistent(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	require.NoError(s.CreatePool(ctx, newPool("alice")))
	_, err := s.Credit(ctx, "u1", d("100"))
	require.NoError(err)

	const trades = 25
	done := make(chan error, 1)
	go func() {
		for i := 0; i < trades; i++ {
			for {
				err := settleBuy(ctx, s, "alice", "u1", d("1"), d("10"))
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				if err != nil {
					done <- err
					return
				}
				break
			}
		}
		done <- nil
	}()

	check := func(view storage.PortfolioView) {
		spent := d("100").Sub(view.Account.NmbrBalance)
		cost, tokens := decimal.Zero, decimal.Zero
		var version int64
		for _, p := range view.Positions {
			cost = cost.Add(p.Holding.TotalCostBasis)
			tokens = tokens.Add(p.Holding.TokenAmount)
			version = p.Pool.Version
		}
		require.True(spent.Equal(cost), "balance spent %s, cost basis %s", spent, cost)
		require.True(spent.Mul(d("10")).Equal(tokens), "spent %s, tokens %s", spent, tokens)
		require.True(decimal.NewFromInt(version).Equal(spent), "pool version %d, spent %s", version, spent)
	}

	for finished := false; !finished; {
		select {
		case err := <-done:
			require.NoError(err)
			finished = true
		default:
		}
		view, err := s.Portfolio(ctx, "u1")
		require.NoError(err)
		check(view)
	}

	view, err := s.Portfolio(ctx, "u1")
	require.NoError(err)
	require.True(d("75").Equal(view.Account.NmbrBalance), view.Account.NmbrBalance.String())
	check(view)
}

func testTransactionsTotalMatchesPage(t *testing.T, s storage.Store) {
	require := require.New(t)
	ctx := context.Background()

	require.NoError(s.CreatePool(ctx, newPool("alice")))
	_, err := s.Credit(ctx, "u1", d("100"))
	require.NoError(err)

	const trades = 25
	done := make(chan error, 1)
	go func() {
		for i := 0; i < trades; i++ {
			if err := settleBuy(ctx, s, "alice", "u1", d("1"), d("1")); err != nil && !errors.Is(err, storage.ErrConflict) {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for finished := false; !finished; {
		select {
		case err := <-done:
			require.NoError(err)
			finished = true
		default:
		}
		page, total, err := s.Transactions(ctx, model.HistoryQuery{UserID: "u1"})
		require.NoError(err)
		require.Len(page, total)
	}
}
