package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/russross/meddler"
)

const table = "indexer_checkpoint"

// ErrNotInitialized is returned by Load before Ensure created the checkpoint.
var ErrNotInitialized = errors.New("indexer checkpoint not initialized")

// Checkpoint is the highest block whose registry events are fully applied.
type Checkpoint struct {
	ID                     int64       `meddler:"id,pk" json:"-"`
	LastProcessedBlock     uint64      `meddler:"last_processed_block" json:"lastProcessedBlock"`
	LastProcessedBlockHash common.Hash `meddler:"last_processed_block_hash,hash" json:"lastProcessedBlockHash"`
	UpdatedAt              int64       `meddler:"updated_at" json:"updatedAt"`
}

// Manager persists the singleton checkpoint row.
type Manager struct {
	db  *sql.DB
	log *logger.Logger
}

// NewManager creates a Manager over a migrated database.
func NewManager(db *sql.DB, log *logger.Logger) *Manager {
	return &Manager{
		db:  db,
		log: log.WithComponent(internalcommon.ComponentCheckpoint),
	}
}

// Ensure creates the checkpoint on first run so that startBlock is the first block fetched, and
// returns the stored checkpoint. An existing checkpoint is left untouched.
func (m *Manager) Ensure(ctx context.Context, startBlock uint64) (*Checkpoint, error) {
	initial := internalcommon.SaturatingSub(startBlock, 1)

	res, err := m.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO indexer_checkpoint (id, last_processed_block, last_processed_block_hash, updated_at)
		 VALUES (1, ?, NULL, ?)`, initial, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize checkpoint: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		m.log.Infof("checkpoint initialized: last_processed_block=%d", initial)
	}

	return m.Load(ctx)
}

// Load returns the stored checkpoint.
func (m *Manager) Load(ctx context.Context) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := meddler.QueryRow(m.db, &cp, "SELECT * FROM indexer_checkpoint WHERE id = 1"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return &cp, nil
}

// SaveTx stores cp within tx.
func (m *Manager) SaveTx(tx *sql.Tx, cp *Checkpoint) error {
	cp.ID = 1
	cp.UpdatedAt = time.Now().Unix()

	if err := meddler.Update(tx, table, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.log.Debugf("saved checkpoint: block=%d, block_hash=%s", cp.LastProcessedBlock, cp.LastProcessedBlockHash.Hex())

	return nil
}
