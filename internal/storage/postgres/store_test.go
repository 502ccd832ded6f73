package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"creatorExchange/internal/storage"
	"creatorExchange/internal/storage/storagetest"
)

// The conformance suite needs a scratch database; it truncates every table.
func TestStoreConformance(t *testing.T) {
	dsn := os.Getenv("EXCHANGE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("EXCHANGE_TEST_PG_DSN not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		s, err := NewStore(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		_, err = s.pool.Exec(ctx, `TRUNCATE pools, accounts, holdings, transactions, price_history`)
		require.NoError(t, err)
		return s
	})
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}
