package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/internal/metrics"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
	"github.com/russross/meddler"
)

// Status of an entry in the event history.
const (
	StatusApplied  = "applied"
	StatusFaulted  = "faulted"
	StatusReplayed = "replayed"
)

// Store is the sqlite backed Projection Store. Writes run inside a caller supplied transaction so
// that a batch commits together with its checkpoint.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore creates a store over a migrated database.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	metrics.ComponentHealthSet(internalcommon.ComponentProjectionStore, true)

	return &Store{db: db, log: log}
}

// Get returns the record of didHash or ErrNotFound.
func (s *Store) Get(ctx context.Context, didHash common.Hash) (*DIDRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return loadRecord(s.db, didHash)
}

// GetByDID resolves a record by its DID string.
func (s *Store) GetByDID(ctx context.Context, did string) (*DIDRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var row recordRow
	err := meddler.QueryRow(s.db, &row, "SELECT * FROM did_records WHERE did = ? LIMIT 1", did)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query record by did: %w", err)
	}

	return loadSets(s.db, row.toRecord())
}

// ListByOwner returns a page of the records owned by owner, oldest first, and the total count.
func (s *Store) ListByOwner(ctx context.Context, owner common.Address, limit, offset int) ([]*DIDRecord, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM did_records WHERE owner = ?", owner.Hex()).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	var rows []*recordRow
	if err := meddler.QueryAll(s.db, &rows,
		"SELECT * FROM did_records WHERE owner = ? ORDER BY created_block, did_hash LIMIT ? OFFSET ?",
		owner.Hex(), limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}

	records := make([]*DIDRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := loadSets(s.db, row.toRecord())
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load record sets: %w", err)
		}
		records = append(records, rec)
	}

	return records, total, nil
}

// Mutation computes the next state of a record. current is nil when the DID does not exist.
// Returning nil removes the record.
type Mutation func(current *DIDRecord) (*DIDRecord, error)

// Upsert loads the record of didHash, runs mutate and persists the result within tx. The
// stored record is untouched when mutate fails or returns current unchanged.
func (s *Store) Upsert(ctx context.Context, tx *sql.Tx, didHash common.Hash, mutate Mutation) (*DIDRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := loadRecord(tx, didHash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load record %s: %w", didHash.Hex(), err)
	}

	next, err := mutate(current)
	if err != nil {
		return current, err
	}

	switch {
	case next == current:
		return current, nil
	case next == nil:
		if err := deleteRecord(tx, didHash); err != nil {
			return nil, fmt.Errorf("failed to delete record %s: %w", didHash.Hex(), err)
		}
		return nil, nil
	case next.DIDHash != didHash:
		return nil, fmt.Errorf("mutation changed did hash from %s to %s", didHash.Hex(), next.DIDHash.Hex())
	}

	if err := saveRecord(tx, next); err != nil {
		return nil, fmt.Errorf("failed to save record %s: %w", didHash.Hex(), err)
	}

	return next, nil
}

// Outcome reports what ApplyTx did with one event.
type Outcome struct {
	Status string
	Record *DIDRecord
	Fault  *ConsistencyFault
}

// ApplyTx folds one decoded event into the projection and appends it to the event history.
//
// An event whose position is already in the history is a replay and changes nothing, provided it
// comes from the same block and transaction. Otherwise ErrHistoryConflict is returned.
// Consistency faults are recorded and reported in the outcome, not as an error.
func (s *Store) ApplyTx(ctx context.Context, tx *sql.Tx, ev decoder.Event, raw itypes.RawLog) (*Outcome, error) {
	h := ev.Meta()

	existing, err := historyAt(tx, ev.Position())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.BlockHash != h.BlockHash || existing.TxHash != h.TxHash {
			return nil, fmt.Errorf("%w: position %s recorded from block %s tx %s, got block %s tx %s",
				ErrHistoryConflict, ev.Position(),
				existing.BlockHash.Hex(), existing.TxHash.Hex(), h.BlockHash.Hex(), h.TxHash.Hex())
		}
		metrics.EventInc(ev.Kind().String(), StatusReplayed)
		return &Outcome{Status: StatusReplayed}, nil
	}

	outcome := &Outcome{Status: StatusApplied}
	rec, err := s.Upsert(ctx, tx, h.DIDHash, func(current *DIDRecord) (*DIDRecord, error) {
		if t, ok := ev.(*decoder.DIDTransferred); ok && current != nil && current.Owner != t.PreviousOwner {
			s.log.Warnw("transfer previous owner differs from projected owner",
				"did_hash", h.DIDHash.Hex(),
				"projected", current.Owner.Hex(),
				"previous_owner", t.PreviousOwner.Hex(),
				"position", ev.Position().String())
		}
		return Apply(current, ev)
	})
	if err != nil {
		fault, ok := AsConsistencyFault(err)
		if !ok {
			return nil, err
		}
		outcome.Status = StatusFaulted
		outcome.Fault = fault
	}
	outcome.Record = rec

	row := &eventRow{
		BlockNumber: h.BlockNumber,
		LogIndex:    h.LogIndex,
		BlockHash:   h.BlockHash,
		TxHash:      h.TxHash,
		Contract:    h.Contract,
		DIDHash:     h.DIDHash,
		EventType:   ev.Kind().String(),
		Timestamp:   h.Timestamp,
		Topics:      raw.Topics,
		Data:        raw.Data,
		Status:      outcome.Status,
	}
	if rec != nil {
		owner := rec.Owner
		row.Owner = &owner
	}
	if err := meddler.Insert(tx, eventsTable, row); err != nil {
		return nil, fmt.Errorf("failed to insert event %s: %w", ev.Position(), err)
	}

	if outcome.Fault != nil {
		if err := insertFault(tx, outcome.Fault, h.TxHash); err != nil {
			return nil, err
		}
		s.log.Warnw("consistency fault",
			"reason", string(outcome.Fault.Reason),
			"kind", ev.Kind().String(),
			"did_hash", h.DIDHash.Hex(),
			"position", ev.Position().String(),
			"detail", outcome.Fault.Detail)
		metrics.ConsistencyFaultInc(string(outcome.Fault.Reason))
	}

	metrics.EventInc(ev.Kind().String(), outcome.Status)

	return outcome, nil
}

func historyAt(q meddler.DB, pos decoder.Position) (*eventRow, error) {
	var row eventRow
	err := meddler.QueryRow(q, &row,
		"SELECT * FROM did_events WHERE block_number = ? AND log_index = ?", pos.BlockNumber, pos.LogIndex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query event history at %s: %w", pos, err)
	}
	return &row, nil
}

func insertFault(q meddler.DB, fault *ConsistencyFault, txHash common.Hash) error {
	row := &faultRow{
		BlockNumber: fault.Position.BlockNumber,
		LogIndex:    fault.Position.LogIndex,
		TxHash:      txHash,
		DIDHash:     fault.DIDHash,
		EventType:   fault.Kind.String(),
		Reason:      string(fault.Reason),
		Detail:      fault.Detail,
		CreatedAt:   time.Now().Unix(),
	}
	if err := meddler.Insert(q, faultsTable, row); err != nil {
		return fmt.Errorf("failed to insert consistency fault: %w", err)
	}
	return nil
}

// RollbackResult summarises a rollback.
type RollbackResult struct {
	EventsRemoved  int
	RecordsRebuilt int
}

// RollbackTx removes every history entry and fault at or after fromBlock and rebuilds each
// affected record by folding its remaining history.
func (s *Store) RollbackTx(ctx context.Context, tx *sql.Tx, fromBlock uint64) (*RollbackResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	affected, err := affectedDIDs(tx, fromBlock)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM did_events WHERE block_number >= ?", fromBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to delete event history: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to count deleted events: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM consistency_faults WHERE block_number >= ?", fromBlock); err != nil {
		return nil, fmt.Errorf("failed to delete consistency faults: %w", err)
	}

	for _, didHash := range affected {
		if err := s.rebuild(ctx, tx, didHash); err != nil {
			return nil, fmt.Errorf("failed to rebuild record %s: %w", didHash.Hex(), err)
		}
	}

	s.log.Infow("projection rolled back",
		"from_block", fromBlock,
		"events_removed", removed,
		"records_rebuilt", len(affected))

	return &RollbackResult{EventsRemoved: int(removed), RecordsRebuilt: len(affected)}, nil
}

func affectedDIDs(tx *sql.Tx, fromBlock uint64) ([]common.Hash, error) {
	rows, err := tx.Query("SELECT DISTINCT did_hash FROM did_events WHERE block_number >= ? ORDER BY did_hash", fromBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to query affected records: %w", err)
	}
	defer rows.Close()

	var out []common.Hash
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, err
		}
		out = append(out, common.HexToHash(hex))
	}
	return out, rows.Err()
}

// rebuild replaces the stored record of didHash with the fold of its applied history.
func (s *Store) rebuild(ctx context.Context, tx *sql.Tx, didHash common.Hash) error {
	var history []*eventRow
	if err := meddler.QueryAll(tx, &history,
		"SELECT * FROM did_events WHERE did_hash = ? AND status = ? ORDER BY block_number, log_index",
		didHash.Hex(), StatusApplied); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	_, err := s.Upsert(ctx, tx, didHash, func(*DIDRecord) (*DIDRecord, error) {
		var rec *DIDRecord
		for _, row := range history {
			ev, err := row.decode()
			if err != nil {
				return nil, fmt.Errorf("failed to decode stored event %d:%d: %w", row.BlockNumber, row.LogIndex, err)
			}
			if rec, err = Apply(rec, ev); err != nil {
				return nil, err
			}
		}
		return rec, nil
	})
	return err
}
