package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/DIDIndexor/internal/db"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/internal/migrations"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T) (*Manager, *sql.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "checkpoint.sqlite")
	require.NoError(t, migrations.RunMigrations(dbPath))

	sqlDB, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewManager(sqlDB, logger.NewNopLogger()), sqlDB
}

func TestManager_LoadBeforeEnsure(t *testing.T) {
	m, _ := setupTestManager(t)

	_, err := m.Load(t.Context())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestManager_Ensure(t *testing.T) {
	tests := []struct {
		name       string
		startBlock uint64
		expected   uint64
	}{
		{name: "start at genesis", startBlock: 0, expected: 0},
		{name: "start at one", startBlock: 1, expected: 0},
		{name: "start later", startBlock: 1000, expected: 999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := setupTestManager(t)

			cp, err := m.Ensure(t.Context(), tt.startBlock)
			require.NoError(t, err)
			require.Equal(t, tt.expected, cp.LastProcessedBlock)
			require.Equal(t, common.Hash{}, cp.LastProcessedBlockHash)
		})
	}
}

func TestManager_EnsureKeepsExisting(t *testing.T) {
	m, sqlDB := setupTestManager(t)

	_, err := m.Ensure(t.Context(), 10)
	require.NoError(t, err)

	hash := common.HexToHash("0xabc")
	require.NoError(t, db.WithTx(t.Context(), sqlDB, func(tx *sql.Tx) error {
		return m.SaveTx(tx, &Checkpoint{LastProcessedBlock: 50, LastProcessedBlockHash: hash})
	}))

	cp, err := m.Ensure(t.Context(), 10)
	require.NoError(t, err)
	require.Equal(t, uint64(50), cp.LastProcessedBlock)
	require.Equal(t, hash, cp.LastProcessedBlockHash)
	require.NotZero(t, cp.UpdatedAt)
}

func TestManager_SaveTxRollsBackWithTransaction(t *testing.T) {
	m, sqlDB := setupTestManager(t)

	_, err := m.Ensure(t.Context(), 10)
	require.NoError(t, err)

	failure := errors.New("batch failed")
	err = db.WithTx(context.Background(), sqlDB, func(tx *sql.Tx) error {
		if err := m.SaveTx(tx, &Checkpoint{LastProcessedBlock: 99}); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	cp, err := m.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, uint64(9), cp.LastProcessedBlock)
}
