package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
	"creatorExchange/internal/storage"
)

// Store provides Postgres persistence for pools, balances and trades.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// readTx runs fn in a read-only REPEATABLE READ transaction, so every
// statement in fn sees the same snapshot.
func (s *Store) readTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const poolSelect = `
	SELECT id, creator_id, token_symbol, nmbr_reserve::text, token_supply::text, current_price::text,
		market_cap::text, volume_24h::text, volume_all_time::text, holder_count, version, created_at, updated_at
	FROM pools WHERE creator_id = $1`

func getPool(ctx context.Context, q querier, creatorID string, forUpdate bool) (model.Pool, error) {
	query := poolSelect
	if forUpdate {
		query += " FOR UPDATE"
	}
	var p model.Pool
	var raw [6]string
	err := q.QueryRow(ctx, query, creatorID).Scan(&p.ID, &p.CreatorID, &p.TokenSymbol,
		&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &p.HolderCount, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Pool{}, notFound(err)
	}
	if err := parseDecimals(raw[:], &p.NmbrReserve, &p.TokenSupply, &p.CurrentPrice,
		&p.MarketCap, &p.Volume24h, &p.VolumeAllTime); err != nil {
		return model.Pool{}, fmt.Errorf("pool %s: %w", creatorID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func getAccount(ctx context.Context, q querier, userID string, forUpdate bool) (model.Account, error) {
	query := `SELECT user_id, nmbr_balance::text, total_invested::text, updated_at FROM accounts WHERE user_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var a model.Account
	var raw [2]string
	if err := q.QueryRow(ctx, query, userID).Scan(&a.UserID, &raw[0], &raw[1], &a.UpdatedAt); err != nil {
		return model.Account{}, notFound(err)
	}
	if err := parseDecimals(raw[:], &a.NmbrBalance, &a.TotalInvested); err != nil {
		return model.Account{}, fmt.Errorf("account %s: %w", userID, err)
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

const holdingColumns = `user_id, creator_id, token_amount::text, avg_buy_price::text, total_cost_basis::text, updated_at`

func scanHolding(row pgx.Row) (model.Holding, error) {
	var h model.Holding
	var raw [3]string
	if err := row.Scan(&h.UserID, &h.CreatorID, &raw[0], &raw[1], &raw[2], &h.UpdatedAt); err != nil {
		return model.Holding{}, notFound(err)
	}
	if err := parseDecimals(raw[:], &h.TokenAmount, &h.AvgBuyPrice, &h.TotalCostBasis); err != nil {
		return model.Holding{}, fmt.Errorf("holding %s/%s: %w", h.UserID, h.CreatorID, err)
	}
	h.UpdatedAt = h.UpdatedAt.UTC()
	return h, nil
}

func getHolding(ctx context.Context, q querier, userID, creatorID string, forUpdate bool) (model.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE user_id = $1 AND creator_id = $2`
	if forUpdate {
		query += " FOR UPDATE"
	}
	return scanHolding(q.QueryRow(ctx, query, userID, creatorID))
}

func (s *Store) Pool(ctx context.Context, creatorID string) (model.Pool, error) {
	return getPool(ctx, s.pool, creatorID, false)
}

func (s *Store) Account(ctx context.Context, userID string) (model.Account, error) {
	return getAccount(ctx, s.pool, userID, false)
}

func (s *Store) Holding(ctx context.Context, userID, creatorID string) (model.Holding, error) {
	return getHolding(ctx, s.pool, userID, creatorID, false)
}

func (s *Store) Holdings(ctx context.Context, userID string) ([]model.Holding, error) {
	return listHoldings(ctx, s.pool, userID)
}

func listHoldings(ctx context.Context, q querier, userID string) ([]model.Holding, error) {
	rows, err := q.Query(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 ORDER BY creator_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) Portfolio(ctx context.Context, userID string) (storage.PortfolioView, error) {
	view := storage.PortfolioView{Account: model.Account{UserID: userID}}
	err := s.readTx(ctx, func(tx pgx.Tx) error {
		a, err := getAccount(ctx, tx, userID, false)
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
			pool, err := getPool(ctx, tx, h.CreatorID, false)
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

// Transactions counts and pages in one snapshot so total matches the page.
func (s *Store) Transactions(ctx context.Context, q model.HistoryQuery) ([]model.Transaction, int, error) {
	where := []string{"user_id = $1"}
	args := []any{q.UserID}
	if q.CreatorID != "" {
		args = append(args, q.CreatorID)
		where = append(where, fmt.Sprintf("creator_id = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")
	countArgs := append([]any(nil), args...)

	query := `
		SELECT id::text, user_id, pool_id, creator_id, type, token_amount::text, nmbr_amount::text, price_per_token::text,
			fee_amount::text, fee_pct::text, slippage_pct::text, price_impact_pct::text, created_at
		FROM transactions WHERE ` + cond + ` ORDER BY seq DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, q.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var total int
	out := []model.Transaction{}
	err := s.readTx(ctx, func(dbtx pgx.Tx) error {
		if err := dbtx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE `+cond, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}

		rows, err := dbtx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query transactions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var tx model.Transaction
			var id, typ string
			var raw [7]string
			if err := rows.Scan(&id, &tx.UserID, &tx.PoolID, &tx.CreatorID, &typ,
				&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6], &tx.CreatedAt); err != nil {
				return fmt.Errorf("scan transaction: %w", err)
			}
			if tx.ID, err = uuid.Parse(id); err != nil {
				return fmt.Errorf("parse transaction id %q: %w", id, err)
			}
			if err := parseDecimals(raw[:], &tx.TokenAmount, &tx.NmbrAmount, &tx.PricePerToken,
				&tx.FeeAmount, &tx.FeePct, &tx.SlippagePct, &tx.PriceImpactPct); err != nil {
				return fmt.Errorf("transaction %s: %w", id, err)
			}
			tx.Type = model.Direction(typ)
			tx.CreatedAt = tx.CreatedAt.UTC()
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
	query := `SELECT pool_id, price::text, volume::text, recorded_at FROM price_history WHERE pool_id = $1 ORDER BY seq DESC`
	args := []any{poolID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	out := []model.PricePoint{}
	for rows.Next() {
		var p model.PricePoint
		var raw [2]string
		if err := rows.Scan(&p.PoolID, &raw[0], &raw[1], &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		if err := parseDecimals(raw[:], &p.Price, &p.Volume); err != nil {
			return nil, err
		}
		p.RecordedAt = p.RecordedAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePool(ctx context.Context, p model.Pool) error {
	if p.CreatorID == "" {
		return fmt.Errorf("create pool: creator id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			id, creator_id, token_symbol, nmbr_reserve, token_supply, current_price, market_cap,
			volume_24h, volume_all_time, holder_count, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		p.ID, p.CreatorID, p.TokenSymbol, p.NmbrReserve.String(), p.TokenSupply.String(), p.CurrentPrice.String(),
		p.MarketCap.String(), p.Volume24h.String(), p.VolumeAllTime.String(), p.HolderCount, p.Version,
		p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create pool %s: %w", p.CreatorID, storage.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

func (s *Store) Credit(ctx context.Context, userID string, amount decimal.Decimal) (model.Account, error) {
	if amount.Sign() <= 0 {
		return model.Account{}, fmt.Errorf("credit %s: amount must be positive", userID)
	}
	var a model.Account
	var raw [2]string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (user_id, nmbr_balance, total_invested, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (user_id) DO UPDATE
		SET nmbr_balance = accounts.nmbr_balance + EXCLUDED.nmbr_balance, updated_at = now()
		RETURNING user_id, nmbr_balance::text, total_invested::text, updated_at
	`, userID, amount.String()).Scan(&a.UserID, &raw[0], &raw[1], &a.UpdatedAt)
	if err != nil {
		return model.Account{}, fmt.Errorf("credit account: %w", err)
	}
	if err := parseDecimals(raw[:], &a.NmbrBalance, &a.TotalInvested); err != nil {
		return model.Account{}, err
	}
	return a, nil
}

// Settle locks the pool row, then the account and holding rows, and writes
// the whole settlement in the same transaction.
func (s *Store) Settle(ctx context.Context, creatorID, userID string, fn storage.SettleFunc) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return retryable(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	snap := storage.Snapshot{}
	if snap.Pool, err = getPool(ctx, tx, creatorID, true); err != nil {
		return retryable(err)
	}
	snap.Account, err = getAccount(ctx, tx, userID, true)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		snap.Account = model.Account{UserID: userID}
	case err != nil:
		return retryable(err)
	}
	snap.Holding, err = getHolding(ctx, tx, userID, creatorID, true)
	switch {
	case err == nil:
		snap.HasHolding = true
	case errors.Is(err, storage.ErrNotFound):
	default:
		return retryable(err)
	}

	set, err := fn(snap)
	if err != nil {
		return err
	}
	if err := storage.CheckVersion(snap, set); err != nil {
		return err
	}

	if err := writeSettlement(ctx, tx, snap, set); err != nil {
		return retryable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return retryable(fmt.Errorf("commit settlement: %w", err))
	}
	committed = true
	return nil
}

func writeSettlement(ctx context.Context, tx pgx.Tx, snap storage.Snapshot, set storage.Settlement) error {
	p := set.Pool
	tag, err := tx.Exec(ctx, `
		UPDATE pools
		SET nmbr_reserve = $1, token_supply = $2, current_price = $3, market_cap = $4, volume_24h = $5,
			volume_all_time = $6, holder_count = $7, version = $8, updated_at = $9
		WHERE creator_id = $10 AND version = $11
	`,
		p.NmbrReserve.String(), p.TokenSupply.String(), p.CurrentPrice.String(), p.MarketCap.String(),
		p.Volume24h.String(), p.VolumeAllTime.String(), p.HolderCount, p.Version, p.UpdatedAt,
		snap.Pool.CreatorID, snap.Pool.Version,
	)
	if err != nil {
		return fmt.Errorf("update pool: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return storage.ErrConflict
	}

	a := set.Account
	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (user_id, nmbr_balance, total_invested, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET nmbr_balance = EXCLUDED.nmbr_balance, total_invested = EXCLUDED.total_invested, updated_at = EXCLUDED.updated_at
	`, a.UserID, a.NmbrBalance.String(), a.TotalInvested.String(), a.UpdatedAt); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}

	if set.DeleteHolding {
		if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1 AND creator_id = $2`,
			snap.Account.UserID, snap.Pool.CreatorID); err != nil {
			return fmt.Errorf("delete holding: %w", err)
		}
	} else {
		h := set.Holding
		if _, err := tx.Exec(ctx, `
			INSERT INTO holdings (user_id, creator_id, token_amount, avg_buy_price, total_cost_basis, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, creator_id) DO UPDATE
			SET token_amount = EXCLUDED.token_amount,
				avg_buy_price = EXCLUDED.avg_buy_price,
				total_cost_basis = EXCLUDED.total_cost_basis,
				updated_at = EXCLUDED.updated_at
		`, snap.Account.UserID, snap.Pool.CreatorID, h.TokenAmount.String(), h.AvgBuyPrice.String(),
			h.TotalCostBasis.String(), h.UpdatedAt); err != nil {
			return fmt.Errorf("upsert holding: %w", err)
		}
	}

	t := set.Transaction
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			id, user_id, pool_id, creator_id, type, token_amount, nmbr_amount, price_per_token,
			fee_amount, fee_pct, slippage_pct, price_impact_pct, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		t.ID, t.UserID, t.PoolID, t.CreatorID, string(t.Type), t.TokenAmount.String(), t.NmbrAmount.String(),
		t.PricePerToken.String(), t.FeeAmount.String(), t.FeePct.String(), t.SlippagePct.String(),
		t.PriceImpactPct.String(), t.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	pp := set.PricePoint
	if _, err := tx.Exec(ctx, `
		INSERT INTO price_history (pool_id, price, volume, recorded_at) VALUES ($1, $2, $3, $4)
	`, pp.PoolID, pp.Price.String(), pp.Volume.String(), pp.RecordedAt); err != nil {
		return fmt.Errorf("insert price point: %w", err)
	}
	return nil
}

func parseDecimals(raw []string, dst ...*decimal.Decimal) error {
	for i, s := range raw {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse decimal %q: %w", s, err)
		}
		*dst[i] = v
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// retryable marks serialization failures and deadlocks as storage.ErrConflict.
func retryable(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.Message)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

