package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/pkg/config"
)

// Maintenance runs periodic WAL checkpoints and VACUUM against the projection database.
// Writers hold the operation lock while they commit so maintenance never interleaves with a batch.
type Maintenance interface {
	Start(ctx context.Context) error
	Stop() error
	// AcquireOperationLock takes a shared lock and returns its release function.
	AcquireOperationLock() func()
	Stats() MaintenanceStats
	RunMaintenance(ctx context.Context) error
}

// MaintenanceStats summarizes completed maintenance runs.
type MaintenanceStats struct {
	LastRun   time.Time `json:"lastRun"`
	Runs      uint64    `json:"runs"`
	LastError string    `json:"lastError,omitempty"`
	SizeBytes int64     `json:"sizeBytes"`
}

// NoOpMaintenance is used when the maintenance section is absent.
type NoOpMaintenance struct{}

func (NoOpMaintenance) Start(context.Context) error          { return nil }
func (NoOpMaintenance) Stop() error                          { return nil }
func (NoOpMaintenance) RunMaintenance(context.Context) error { return nil }
func (NoOpMaintenance) AcquireOperationLock() func()         { return func() {} }
func (NoOpMaintenance) Stats() MaintenanceStats              { return MaintenanceStats{} }

// MaintenanceCoordinator serializes maintenance against regular writes with a RWMutex:
// writers share the read side, maintenance takes the write side.
type MaintenanceCoordinator struct {
	db     *sql.DB
	cfg    config.MaintenanceConfig
	dbPath string
	log    *logger.Logger

	opLock sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   MaintenanceStats
}

// NewMaintenanceCoordinator returns a coordinator, or a no-op when cfg is nil.
func NewMaintenanceCoordinator(
	dbPath string,
	db *sql.DB,
	cfg *config.MaintenanceConfig,
	log *logger.Logger,
) Maintenance {
	if cfg == nil {
		return NoOpMaintenance{}
	}

	return newMaintenanceCoordinator(dbPath, db, *cfg, log)
}

func newMaintenanceCoordinator(
	dbPath string,
	db *sql.DB,
	cfg config.MaintenanceConfig,
	log *logger.Logger,
) *MaintenanceCoordinator {
	return &MaintenanceCoordinator{
		db:     db,
		cfg:    cfg,
		dbPath: dbPath,
		log:    log.WithComponent(common.ComponentMaintenance),
	}
}

// Start launches the background worker when maintenance is enabled.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.log.Info("background maintenance is disabled")
		return nil
	}

	if m.cfg.CheckInterval.Duration <= 0 {
		return fmt.Errorf("maintenance check interval must be positive, got %v", m.cfg.CheckInterval.Duration)
	}

	ctx, m.cancel = context.WithCancel(ctx)

	if m.cfg.VacuumOnStartup {
		if err := m.RunMaintenance(ctx); err != nil {
			m.log.Warnf("startup maintenance failed: %v", err)
		}
	}

	m.wg.Add(1)
	go m.worker(ctx)

	m.log.Infof("background maintenance started, interval: %v, checkpoint mode: %s",
		m.cfg.CheckInterval.Duration, m.cfg.WALCheckpointMode)

	return nil
}

// Stop cancels the worker and waits for an in-flight run to finish.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cancel == nil {
		return nil
	}

	m.cancel()
	m.wg.Wait()
	m.log.Info("background maintenance stopped")

	return nil
}

func (m *MaintenanceCoordinator) worker(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RunMaintenance(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Warnf("periodic maintenance failed: %v", err)
			}
		}
	}
}

// RunMaintenance checkpoints the WAL and vacuums the database while holding the exclusive lock.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) error {
	start := time.Now()
	maintenanceRunsInc()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	sizeBefore, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnf("failed to read database size: %v", err)
	}

	// VACUUM goes through the WAL in WAL mode, so it runs before the checkpoint.
	var runErr error
	if err := Vacuum(m.db); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			err = fmt.Errorf("database is locked, retry later: %w", err)
		}
		runErr = err
	}

	if err := m.walCheckpoint(ctx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("WAL checkpoint failed: %w", err))
	}

	sizeAfter, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnf("failed to read database size: %v", err)
	}

	duration := time.Since(start)
	maintenanceDurationLog(duration)
	maintenanceOutcomeInc(runErr)
	DBSizeLog(sizeAfter)

	m.statsMu.Lock()
	m.stats.LastRun = time.Now().UTC()
	m.stats.Runs++
	m.stats.SizeBytes = sizeAfter
	m.stats.LastError = ""
	if runErr != nil {
		m.stats.LastError = runErr.Error()
	}
	m.statsMu.Unlock()

	if runErr != nil {
		m.log.Warnf("maintenance completed with errors in %v: %v", duration, runErr)
		return runErr
	}

	reclaimed := max(sizeBefore-sizeAfter, 0)
	maintenanceSpaceReclaimedLog(reclaimed)
	m.log.Infow("maintenance completed", "duration", duration, "reclaimedBytes", reclaimed, "sizeBytes", sizeAfter)

	return nil
}

func (m *MaintenanceCoordinator) walCheckpoint(ctx context.Context) error {
	var mode string
	if err := m.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}

	if !strings.EqualFold(mode, "wal") {
		m.log.Debugf("journal mode is %s, skipping WAL checkpoint", mode)
		return nil
	}

	var busy, logFrames, checkpointed int
	query := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.cfg.WALCheckpointMode)
	if err := m.db.QueryRowContext(ctx, query).Scan(&busy, &logFrames, &checkpointed); err != nil {
		return err
	}

	walCheckpointInc(strings.ToLower(m.cfg.WALCheckpointMode))
	m.log.Debugf("WAL checkpoint %s: busy=%d log=%d checkpointed=%d",
		m.cfg.WALCheckpointMode, busy, logFrames, checkpointed)

	if busy > 0 {
		m.log.Warnf("WAL checkpoint left %d busy pages", busy)
	}

	return nil
}

// AcquireOperationLock takes the shared side of the operation lock.
func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

// Stats returns a snapshot of completed runs.
func (m *MaintenanceCoordinator) Stats() MaintenanceStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	return m.stats
}
