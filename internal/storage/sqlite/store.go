// Package sqlite is a storage.Store on modernc.org/sqlite. One open
// connection makes SQLite the single writer, so settlements serialize on it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver

	"creatorExchange/internal/model"
	"creatorExchange/internal/storage"
)

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (and creates if needed) the database at path and applies the schema.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const poolColumns = `id, creator_id, token_symbol, nmbr_reserve, token_supply, current_price, market_cap,
	volume_24h, volume_all_time, holder_count, version, created_at, updated_at`

func scanPool(row rowScanner) (model.Pool, error) {
	var p model.Pool
	var created, updated int64
	err := row.Scan(&p.ID, &p.CreatorID, &p.TokenSymbol, &p.NmbrReserve, &p.TokenSupply, &p.CurrentPrice,
		&p.MarketCap, &p.Volume24h, &p.VolumeAllTime, &p.HolderCount, &p.Version, &created, &updated)
	if err != nil {
		return model.Pool{}, notFound(err)
	}
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return p, nil
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	var updated int64
	if err := row.Scan(&a.UserID, &a.NmbrBalance, &a.TotalInvested, &updated); err != nil {
		return model.Account{}, notFound(err)
	}
	a.UpdatedAt = fromNanos(updated)
	return a, nil
}

func scanHolding(row rowScanner) (model.Holding, error) {
	var h model.Holding
	var updated int64
	if err := row.Scan(&h.UserID, &h.CreatorID, &h.TokenAmount, &h.AvgBuyPrice, &h.TotalCostBasis, &updated); err != nil {
		return model.Holding{}, notFound(err)
	}
	h.UpdatedAt = fromNanos(updated)
	return h, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func getPool(ctx context.Context, q queryer, creatorID string) (model.Pool, error) {
	return scanPool(q.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM pools WHERE creator_id = ?`, creatorID))
}

func getAccount(ctx context.Context, q queryer, userID string) (model.Account, error) {
	return scanAccount(q.QueryRowContext(ctx,
		`SELECT user_id, nmbr_balance, total_invested, updated_at FROM accounts WHERE user_id = ?`, userID))
}

func getHolding(ctx context.Context, q queryer, userID, creatorID string) (model.Holding, error) {
	return scanHolding(q.QueryRowContext(ctx, `
		SELECT user_id, creator_id, token_amount, avg_buy_price, total_cost_basis, updated_at
		FROM holdings WHERE user_id = ? AND creator_id = ?`, userID, creatorID))
}

func (s *Store) Pool(ctx context.Context, creatorID string) (model.Pool, error) {
	return getPool(ctx, s.db, creatorID)
}

func (s *Store) Account(ctx context.Context, userID string) (model.Account, error) {
	return getAccount(ctx, s.db, userID)
}

func (s *Store) Holding(ctx context.Context, userID, creatorID string) (model.Holding, error) {
	return getHolding(ctx, s.db, userID, creatorID)
}

func (s *Store) Holdings(ctx context.Context, userID string) ([]model.Holding, error) {
	return listHoldings(ctx, s.db, userID)
}

func listHoldings(ctx context.Context, q queryer, userID string) ([]model.Holding, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, creator_id, token_amount, avg_buy_price, total_cost_basis, updated_at
		FROM holdings WHERE user_id = ? ORDER BY creator_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// readTx runs fn in a read-only transaction. The store has one connection,
// so no settlement commits between fn's statements.
func (s *Store) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Portfolio(ctx context.Context, userID string) (storage.PortfolioView, error) {
	view := storage.PortfolioView{Account: model.Account{UserID: userID}}
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		a, err := getAccount(ctx, tx, userID)
		switch {
		case err == nil:
			view.Account = a
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("load account: %w", err)
		}

		holdings, err := listHoldings(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, h := range holdings {
			pool, err := getPool(ctx, tx, h.CreatorID)
			if err != nil {
				return fmt.Errorf("pool %s: %w", h.CreatorID, err)
			}
			view.Positions = append(view.Positions, storage.Position{Holding: h, Pool: pool})
		}
		return nil
	})
	if err != nil {
		return storage.PortfolioView{}, err
	}
	return view, nil
}

// Transactions counts and pages inside one read transaction so total matches the page.
func (s *Store) Transactions(ctx context.Context, q model.HistoryQuery) ([]model.Transaction, int, error) {
	where := []string{"user_id = ?"}
	args := []any{q.UserID}
	if q.CreatorID != "" {
		where = append(where, "creator_id = ?")
		args = append(args, q.CreatorID)
	}
	cond := strings.Join(where, " AND ")

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	var total int
	out := []model.Transaction{}
	err := s.readTx(ctx, func(dbtx *sql.Tx) error {
		if err := dbtx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE `+cond, args...).Scan(&total); err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}

		rows, err := dbtx.QueryContext(ctx, `
			SELECT id, user_id, pool_id, creator_id, type, token_amount, nmbr_amount, price_per_token,
				fee_amount, fee_pct, slippage_pct, price_impact_pct, created_at
			FROM transactions WHERE `+cond+`
			ORDER BY seq DESC LIMIT ? OFFSET ?`, append(args, limit, q.Offset)...)
		if err != nil {
			return fmt.Errorf("query transactions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var tx model.Transaction
			var id, typ string
			var created int64
			if err := rows.Scan(&id, &tx.UserID, &tx.PoolID, &tx.CreatorID, &typ, &tx.TokenAmount, &tx.NmbrAmount,
				&tx.PricePerToken, &tx.FeeAmount, &tx.FeePct, &tx.SlippagePct, &tx.PriceImpactPct, &created); err != nil {
				return fmt.Errorf("scan transaction: %w", err)
			}
			if err := tx.ID.UnmarshalText([]byte(id)); err != nil {
				return fmt.Errorf("parse transaction id %q: %w", id, err)
			}
			tx.Type = model.Direction(typ)
			tx.CreatedAt = fromNanos(created)
			out = append(out, tx)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) PriceHistory(ctx context.Context, poolID string, limit int) ([]model.PricePoint, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool_id, price, volume, recorded_at FROM price_history
		WHERE pool_id = ? ORDER BY seq DESC LIMIT ?`, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	out := []model.PricePoint{}
	for rows.Next() {
		var p model.PricePoint
		var recorded int64
		if err := rows.Scan(&p.PoolID, &p.Price, &p.Volume, &recorded); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		p.RecordedAt = fromNanos(recorded)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePool(ctx context.Context, p model.Pool) error {
	if p.CreatorID == "" {
		return fmt.Errorf("create pool: creator id required")
	}
	if _, err := getPool(ctx, s.db, p.CreatorID); err == nil {
		return fmt.Errorf("create pool %s: %w", p.CreatorID, storage.ErrExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO pools (`+poolColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.CreatorID, p.TokenSymbol, p.NmbrReserve, p.TokenSupply, p.CurrentPrice, p.MarketCap,
		p.Volume24h, p.VolumeAllTime, p.HolderCount, p.Version, toNanos(p.CreatedAt), toNanos(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

func (s *Store) Credit(ctx context.Context, userID string, amount decimal.Decimal) (model.Account, error) {
	if amount.Sign() <= 0 {
		return model.Account{}, fmt.Errorf("credit %s: amount must be positive", userID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := getAccount(ctx, tx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a = model.Account{UserID: userID}
	case err != nil:
		return model.Account{}, err
	}
	a.NmbrBalance = a.NmbrBalance.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	if err := upsertAccount(ctx, tx, a); err != nil {
		return model.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Account{}, fmt.Errorf("commit credit: %w", err)
	}
	return a, nil
}

func upsertAccount(ctx context.Context, tx *sql.Tx, a model.Account) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, nmbr_balance, total_invested, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			nmbr_balance = excluded.nmbr_balance,
			total_invested = excluded.total_invested,
			updated_at = excluded.updated_at`,
		a.UserID, a.NmbrBalance, a.TotalInvested, toNanos(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// Settle runs the read-compute-write sequence inside one transaction on the
// single connection, and guards the pool update with its version.
func (s *Store) Settle(ctx context.Context, creatorID, userID string, fn storage.SettleFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	snap := storage.Snapshot{}
	if snap.Pool, err = getPool(ctx, tx, creatorID); err != nil {
		return err
	}
	snap.Account, err = getAccount(ctx, tx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		snap.Account = model.Account{UserID: userID}
	case err != nil:
		return err
	}
	snap.Holding, err = getHolding(ctx, tx, userID, creatorID)
	switch {
	case err == nil:
		snap.HasHolding = true
	case errors.Is(err, storage.ErrNotFound):
	default:
		return err
	}

	set, err := fn(snap)
	if err != nil {
		return err
	}
	if err := storage.CheckVersion(snap, set); err != nil {
		return err
	}

	p := set.Pool
	res, err := tx.ExecContext(ctx, `
		UPDATE pools SET nmbr_reserve = ?, token_supply = ?, current_price = ?, market_cap = ?,
			volume_24h = ?, volume_all_time = ?, holder_count = ?, version = ?, updated_at = ?
		WHERE creator_id = ? AND version = ?`,
		p.NmbrReserve, p.TokenSupply, p.CurrentPrice, p.MarketCap, p.Volume24h, p.VolumeAllTime,
		p.HolderCount, p.Version, toNanos(p.UpdatedAt), creatorID, snap.Pool.Version)
	if err != nil {
		return fmt.Errorf("update pool: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update pool: %w", err)
	} else if n != 1 {
		return storage.ErrConflict
	}

	if err := upsertAccount(ctx, tx, set.Account); err != nil {
		return err
	}

	if set.DeleteHolding {
		if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE user_id = ? AND creator_id = ?`, userID, creatorID); err != nil {
			return fmt.Errorf("delete holding: %w", err)
		}
	} else {
		h := set.Holding
		_, err := tx.ExecContext(ctx, `
			INSERT INTO holdings (user_id, creator_id, token_amount, avg_buy_price, total_cost_basis, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, creator_id) DO UPDATE SET
				token_amount = excluded.token_amount,
				avg_buy_price = excluded.avg_buy_price,
				total_cost_basis = excluded.total_cost_basis,
				updated_at = excluded.updated_at`,
			userID, creatorID, h.TokenAmount, h.AvgBuyPrice, h.TotalCostBasis, toNanos(h.UpdatedAt))
		if err != nil {
			return fmt.Errorf("upsert holding: %w", err)
		}
	}

	t := set.Transaction
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, pool_id, creator_id, type, token_amount, nmbr_amount, price_per_token,
			fee_amount, fee_pct, slippage_pct, price_impact_pct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.UserID, t.PoolID, t.CreatorID, string(t.Type), t.TokenAmount, t.NmbrAmount, t.PricePerToken,
		t.FeeAmount, t.FeePct, t.SlippagePct, t.PriceImpactPct, toNanos(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	pp := set.PricePoint
	_, err = tx.ExecContext(ctx, `INSERT INTO price_history (pool_id, price, volume, recorded_at) VALUES (?, ?, ?, ?)`,
		pp.PoolID, pp.Price, pp.Volume, toNanos(pp.RecordedAt))
	if err != nil {
		return fmt.Errorf("insert price point: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}
