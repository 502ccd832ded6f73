package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	id TEXT PRIMARY KEY,
	creator_id TEXT NOT NULL UNIQUE,
	token_symbol TEXT NOT NULL,
	nmbr_reserve NUMERIC NOT NULL CHECK (nmbr_reserve > 0),
	token_supply NUMERIC NOT NULL CHECK (token_supply > 0),
	current_price NUMERIC NOT NULL,
	market_cap NUMERIC NOT NULL DEFAULT 0,
	volume_24h NUMERIC NOT NULL DEFAULT 0,
	volume_all_time NUMERIC NOT NULL DEFAULT 0,
	holder_count BIGINT NOT NULL DEFAULT 0 CHECK (holder_count >= 0),
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	user_id TEXT PRIMARY KEY,
	nmbr_balance NUMERIC NOT NULL CHECK (nmbr_balance >= 0),
	total_invested NUMERIC NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
	user_id TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	token_amount NUMERIC NOT NULL CHECK (token_amount > 0),
	avg_buy_price NUMERIC NOT NULL,
	total_cost_basis NUMERIC NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, creator_id)
);

CREATE TABLE IF NOT EXISTS transactions (
	seq BIGSERIAL PRIMARY KEY,
	id UUID NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	pool_id TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	type TEXT NOT NULL,
	token_amount NUMERIC NOT NULL,
	nmbr_amount NUMERIC NOT NULL,
	price_per_token NUMERIC NOT NULL,
	fee_amount NUMERIC NOT NULL,
	fee_pct NUMERIC NOT NULL,
	slippage_pct NUMERIC NOT NULL,
	price_impact_pct NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id, seq DESC);

CREATE TABLE IF NOT EXISTS price_history (
	seq BIGSERIAL PRIMARY KEY,
	pool_id TEXT NOT NULL,
	price NUMERIC NOT NULL,
	volume NUMERIC NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_pool ON price_history (pool_id, seq DESC);
`

// Migrate creates the exchange tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}
