package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func setupMaintenanceTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "maintenance.sqlite")

	dbConfig := config.DatabaseConfig{Path: dbPath, JournalMode: "WAL"}
	dbConfig.ApplyDefaults()

	db, err := NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS did_documents (id INTEGER PRIMARY KEY, document TEXT)`)
	require.NoError(t, err)

	return db, dbPath
}

func insertDocuments(t *testing.T, db *sql.DB, n int) {
	t.Helper()

	for range n {
		_, err := db.Exec("INSERT INTO did_documents (document) VALUES (?)", `{"@context":"https://www.w3.org/ns/did/v1"}`)
		require.NoError(t, err)
	}
}

func TestNewMaintenanceCoordinator(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	m := NewMaintenanceCoordinator(dbPath, db, nil, logger.NewNopLogger())
	require.IsType(t, NoOpMaintenance{}, m)
	require.NoError(t, m.Start(t.Context()))
	require.NoError(t, m.RunMaintenance(t.Context()))
	m.AcquireOperationLock()()
	require.NoError(t, m.Stop())

	m = NewMaintenanceCoordinator(dbPath, db, &config.MaintenanceConfig{WALCheckpointMode: "TRUNCATE"}, logger.NewNopLogger())
	require.IsType(t, &MaintenanceCoordinator{}, m)
}

func TestMaintenanceCoordinator_RunMaintenance(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)
	insertDocuments(t, db, 1000)

	walInfo, err := os.Stat(dbPath + "-wal")
	require.NoError(t, err)
	require.Positive(t, walInfo.Size())

	coordinator := newMaintenanceCoordinator(dbPath, db,
		config.MaintenanceConfig{WALCheckpointMode: "TRUNCATE"}, logger.NewNopLogger())

	require.NoError(t, coordinator.RunMaintenance(t.Context()))

	stats := coordinator.Stats()
	require.Equal(t, uint64(1), stats.Runs)
	require.False(t, stats.LastRun.IsZero())
	require.Empty(t, stats.LastError)
	require.Positive(t, stats.SizeBytes)

	walInfo, err = os.Stat(dbPath + "-wal")
	if err == nil {
		require.Zero(t, walInfo.Size(), "vacuum frames should be checkpointed out of the WAL")
	}
}

func TestMaintenanceCoordinator_CancelledContext(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db,
		config.MaintenanceConfig{WALCheckpointMode: "TRUNCATE"}, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, coordinator.RunMaintenance(ctx), context.Canceled)
}

func TestMaintenanceCoordinator_BlocksWriters(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db,
		config.MaintenanceConfig{WALCheckpointMode: "PASSIVE"}, logger.NewNopLogger())

	unlock := coordinator.AcquireOperationLock()

	maintenanceDone := make(chan error, 1)
	go func() {
		maintenanceDone <- coordinator.RunMaintenance(context.Background())
	}()

	select {
	case <-maintenanceDone:
		t.Fatal("maintenance ran while a writer held the operation lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	require.NoError(t, <-maintenanceDone)
}

func TestMaintenanceCoordinator_Background(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)
	insertDocuments(t, db, 100)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		Enabled:           true,
		CheckInterval:     common.NewDuration(50 * time.Millisecond),
		WALCheckpointMode: "PASSIVE",
	}, logger.NewNopLogger())

	require.NoError(t, coordinator.Start(t.Context()))
	require.Eventually(t, func() bool {
		return coordinator.Stats().Runs > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, coordinator.Stop())
}

func TestMaintenanceCoordinator_VacuumOnStartup(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		Enabled:           true,
		CheckInterval:     common.NewDuration(time.Hour),
		VacuumOnStartup:   true,
		WALCheckpointMode: "TRUNCATE",
	}, logger.NewNopLogger())

	require.NoError(t, coordinator.Start(t.Context()))
	defer func() { require.NoError(t, coordinator.Stop()) }()

	require.Equal(t, uint64(1), coordinator.Stats().Runs)
}

func TestMaintenanceCoordinator_Disabled(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		Enabled:           false,
		CheckInterval:     common.NewDuration(10 * time.Millisecond),
		WALCheckpointMode: "TRUNCATE",
	}, logger.NewNopLogger())

	require.NoError(t, coordinator.Start(t.Context()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, coordinator.Stop())

	require.Zero(t, coordinator.Stats().Runs)
}

func TestMaintenanceCoordinator_InvalidInterval(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db, config.MaintenanceConfig{
		Enabled: true,
	}, logger.NewNopLogger())

	require.ErrorContains(t, coordinator.Start(t.Context()), "interval must be positive")
}

func TestMaintenanceCoordinator_ConcurrentWriters(t *testing.T) {
	db, dbPath := setupMaintenanceTestDB(t)

	coordinator := newMaintenanceCoordinator(dbPath, db,
		config.MaintenanceConfig{WALCheckpointMode: "PASSIVE"}, logger.NewNopLogger())

	const writers, writes = 20, 5
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)

	for range writers {
		wg.Go(func() {
			for range writes {
				unlock := coordinator.AcquireOperationLock()
				_, err := db.Exec("INSERT INTO did_documents (document) VALUES (?)", "{}")
				unlock()

				if err == nil {
					succeeded.Add(1)
				}
				time.Sleep(time.Millisecond)
			}
		})
	}

	wg.Go(func() {
		for range 3 {
			require.NoError(t, coordinator.RunMaintenance(context.Background()))
		}
	})

	wg.Wait()

	require.Equal(t, int32(writers*writes), succeeded.Load())
	require.Equal(t, uint64(3), coordinator.Stats().Runs)
}
