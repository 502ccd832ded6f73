package sqlite

import "fmt"

// Decimals are stored as TEXT to keep every digit; timestamps as unix nanoseconds.
const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS pools (
    id TEXT PRIMARY KEY,
    creator_id TEXT NOT NULL UNIQUE,
    token_symbol TEXT NOT NULL,
    nmbr_reserve TEXT NOT NULL,
    token_supply TEXT NOT NULL,
    current_price TEXT NOT NULL,
    market_cap TEXT NOT NULL DEFAULT '0',
    volume_24h TEXT NOT NULL DEFAULT '0',
    volume_all_time TEXT NOT NULL DEFAULT '0',
    holder_count INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
    user_id TEXT PRIMARY KEY,
    nmbr_balance TEXT NOT NULL,
    total_invested TEXT NOT NULL DEFAULT '0',
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
    user_id TEXT NOT NULL,
    creator_id TEXT NOT NULL,
    token_amount TEXT NOT NULL,
    avg_buy_price TEXT NOT NULL,
    total_cost_basis TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, creator_id)
);

CREATE TABLE IF NOT EXISTS transactions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    pool_id TEXT NOT NULL,
    creator_id TEXT NOT NULL,
    type TEXT NOT NULL,
    token_amount TEXT NOT NULL,
    nmbr_amount TEXT NOT NULL,
    price_per_token TEXT NOT NULL,
    fee_amount TEXT NOT NULL,
    fee_pct TEXT NOT NULL,
    slippage_pct TEXT NOT NULL,
    price_impact_pct TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, seq DESC);

CREATE TABLE IF NOT EXISTS price_history (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    pool_id TEXT NOT NULL,
    price TEXT NOT NULL,
    volume TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_pool ON price_history(pool_id, seq DESC);
`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
