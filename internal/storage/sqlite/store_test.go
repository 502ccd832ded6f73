package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"creatorExchange/internal/storage"
	"creatorExchange/internal/storage/storagetest"
)

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := New(":memory:")
		require.NoError(t, err)
		return s
	})
}

func TestStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "exchange.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening runs the schema again against existing tables.
	s, err = New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
