// Package indexer drives the DID projection: it reads registry logs batch by batch, folds them
// into the projection store and advances the checkpoint in the same transaction.
package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/goran-ethernal/DIDIndexor/internal/checkpoint"
	internalcommon "github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/db"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/internal/metrics"
	"github.com/goran-ethernal/DIDIndexor/internal/projection"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
	"github.com/goran-ethernal/DIDIndexor/pkg/config"
	"github.com/goran-ethernal/DIDIndexor/pkg/fetcher"
	pkgindexer "github.com/goran-ethernal/DIDIndexor/pkg/indexer"
	"github.com/goran-ethernal/DIDIndexor/pkg/reorg"
)

var _ pkgindexer.Controller = (*Indexer)(nil)

// ProjectionStore is the write side of the projection used by the indexer.
type ProjectionStore interface {
	ApplyTx(ctx context.Context, tx *sql.Tx, ev decoder.Event, raw itypes.RawLog) (*projection.Outcome, error)
	RollbackTx(ctx context.Context, tx *sql.Tx, fromBlock uint64) (*projection.RollbackResult, error)
	CountFaults(ctx context.Context) (int, error)
}

// CheckpointStore persists the indexer checkpoint.
type CheckpointStore interface {
	Ensure(ctx context.Context, startBlock uint64) (*checkpoint.Checkpoint, error)
	SaveTx(tx *sql.Tx, cp *checkpoint.Checkpoint) error
}

// Batch outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeCaughtUp = "caught_up"
	OutcomeReorg    = "reorg"
	OutcomeFailed   = "failed"
)

// BatchResult describes one ProcessBatch call.
type BatchResult struct {
	Outcome   string
	FromBlock uint64
	ToBlock   uint64
	Logs      int
	Skipped   int
	Applied   int
	Faulted   int
	Replayed  int

	// RolledBackFrom is the first block removed from the projection when Outcome is OutcomeReorg.
	RolledBackFrom uint64
}

// Indexer is the DID indexer core. Only one batch runs at a time and only the indexer writes
// to the projection and the checkpoint.
type Indexer struct {
	cfg         config.IndexerConfig
	contracts   []common.Address
	db          *sql.DB
	fetcher     fetcher.LogFetcher
	detector    reorg.Detector
	store       ProjectionStore
	checkpoints CheckpointStore
	maintenance db.Maintenance
	log         *logger.Logger

	mu        sync.Mutex
	state     pkgindexer.State
	lastBlock uint64
	runID     string
	lastError string
	faults    int
	lastBatch time.Time
	startedAt time.Time
	stop      chan struct{}
	done      chan struct{}
}

// New creates an idle indexer reporting the stored checkpoint, creating it on first run.
func New(
	cfg config.IndexerConfig,
	sqlDB *sql.DB,
	logFetcher fetcher.LogFetcher,
	detector reorg.Detector,
	store ProjectionStore,
	checkpoints CheckpointStore,
	maintenance db.Maintenance,
	log *logger.Logger,
) (*Indexer, error) {
	switch {
	case sqlDB == nil:
		return nil, errors.New("database is required")
	case logFetcher == nil:
		return nil, errors.New("log fetcher is required")
	case detector == nil:
		return nil, errors.New("reorg detector is required")
	case store == nil:
		return nil, errors.New("projection store is required")
	case checkpoints == nil:
		return nil, errors.New("checkpoint store is required")
	case log == nil:
		return nil, errors.New("logger is required")
	}
	if maintenance == nil {
		maintenance = db.NoOpMaintenance{}
	}

	cfg.ApplyDefaults()

	done := make(chan struct{})
	close(done)

	ix := &Indexer{
		cfg:         cfg,
		contracts:   cfg.ContractAddresses(),
		db:          sqlDB,
		fetcher:     logFetcher,
		detector:    detector,
		store:       store,
		checkpoints: checkpoints,
		maintenance: maintenance,
		log:         log,
		state:       pkgindexer.StateIdle,
		done:        done,
	}
	metrics.IndexerStateSet(string(pkgindexer.StateIdle))

	ctx := context.Background()
	cp, err := checkpoints.Ensure(ctx, cfg.StartBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	ix.setProgress(ctx, cp.LastProcessedBlock)

	return ix, nil
}

// Start launches the indexing loop unless it is already running. A failed indexer is restarted
// from its last checkpoint.
func (ix *Indexer) Start(ctx context.Context) pkgindexer.Health {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state == pkgindexer.StateRunning {
		return ix.healthLocked()
	}

	ix.state = pkgindexer.StateRunning
	ix.runID = uuid.NewString()
	ix.lastError = ""
	ix.startedAt = time.Now()
	ix.stop = make(chan struct{})
	ix.done = make(chan struct{})

	metrics.IndexerStateSet(string(pkgindexer.StateRunning))
	metrics.ComponentHealthSet(internalcommon.ComponentIndexer, true)
	ix.log.Infow("indexer started", "run_id", ix.runID, "contracts", len(ix.contracts))

	go ix.run(ctx, ix.stop, ix.done)

	return ix.healthLocked()
}

// Stop asks the loop to finish its current batch and waits until it has.
func (ix *Indexer) Stop() pkgindexer.Health {
	ix.mu.Lock()
	if ix.state != pkgindexer.StateRunning {
		defer ix.mu.Unlock()
		return ix.healthLocked()
	}

	stop, done := ix.stop, ix.done
	select {
	case <-stop:
	default:
		close(stop)
	}
	ix.mu.Unlock()

	<-done

	return ix.Health()
}

// Done is closed when the current run of the loop has exited.
func (ix *Indexer) Done() <-chan struct{} {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return ix.done
}

// Health reports the current state.
func (ix *Indexer) Health() pkgindexer.Health {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return ix.healthLocked()
}

func (ix *Indexer) healthLocked() pkgindexer.Health {
	h := pkgindexer.Health{
		Status:             ix.state,
		IsRunning:          ix.state == pkgindexer.StateRunning,
		LastProcessedBlock: ix.lastBlock,
		ContractAddresses:  slices.Clone(ix.contracts),
		RunID:              ix.runID,
		LastError:          ix.lastError,
		ConsistencyFaults:  ix.faults,
	}
	if !ix.lastBatch.IsZero() {
		t := ix.lastBatch
		h.LastBatchAt = &t
	}
	if !ix.startedAt.IsZero() {
		t := ix.startedAt
		h.StartedAt = &t
	}
	return h
}

func (ix *Indexer) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	err := ix.loop(ctx, stop)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err == nil || ctx.Err() != nil {
		ix.state = pkgindexer.StateIdle
		metrics.IndexerStateSet(string(pkgindexer.StateIdle))
		ix.log.Infow("indexer stopped", "run_id", ix.runID, "last_processed_block", ix.lastBlock)
		return
	}

	ix.state = pkgindexer.StateFailed
	ix.lastError = err.Error()
	metrics.IndexerStateSet(string(pkgindexer.StateFailed))
	metrics.ComponentHealthSet(internalcommon.ComponentIndexer, false)
	ix.log.Errorw("indexer failed", "run_id", ix.runID, "last_processed_block", ix.lastBlock, "error", err)
}

func (ix *Indexer) loop(ctx context.Context, stop <-chan struct{}) error {
	cp, err := ix.checkpoints.Ensure(ctx, ix.cfg.StartBlock)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	ix.setProgress(ctx, cp.LastProcessedBlock)

	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		next, res, err := ix.ProcessBatch(ctx, cp)
		if err != nil {
			return err
		}
		cp = next
		ix.setProgress(ctx, cp.LastProcessedBlock)

		if res.Outcome != OutcomeCaughtUp {
			continue
		}

		timer := time.NewTimer(ix.cfg.PollInterval.Duration)
		select {
		case <-stop:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (ix *Indexer) setProgress(ctx context.Context, block uint64) {
	faults, err := ix.store.CountFaults(ctx)
	if err != nil {
		ix.log.Warnf("failed to count consistency faults: %v", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.lastBlock = block
	if err == nil {
		ix.faults = faults
	}
	metrics.LastProcessedBlockSet(block)
}

// ProcessBatch advances cp by at most one batch of blocks and returns the new checkpoint.
//
// The batch covers (cp, cp+batch_size] capped at the confirmed head. Its events are decoded,
// ordered by (block, log index) and applied together with the new checkpoint in a single
// transaction; on error nothing is committed and cp is returned unchanged. When the chain
// reorganized, the projection is rolled back instead and the returned checkpoint points below
// the first replaced block.
func (ix *Indexer) ProcessBatch(
	ctx context.Context,
	cp *checkpoint.Checkpoint,
) (*checkpoint.Checkpoint, *BatchResult, error) {
	start := time.Now()

	head, err := ix.fetcher.ConfirmedHead(ctx)
	if err != nil {
		metrics.BatchLog(OutcomeFailed, time.Since(start), 0)
		return cp, nil, &FetchError{Err: err}
	}
	if head <= cp.LastProcessedBlock {
		metrics.BatchLog(OutcomeCaughtUp, time.Since(start), 0)
		return cp, &BatchResult{Outcome: OutcomeCaughtUp}, nil
	}

	from := cp.LastProcessedBlock + 1
	to := min(cp.LastProcessedBlock+ix.cfg.BatchSize, head)

	fetched, err := ix.fetcher.FetchRange(ctx, from, to)
	if err != nil {
		metrics.BatchLog(OutcomeFailed, time.Since(start), 0)
		return cp, nil, &FetchError{FromBlock: from, ToBlock: to, Err: err}
	}
	to = fetched.ToBlock

	verification, err := ix.detector.Verify(ctx, fetched.Logs, from, to)
	if err != nil {
		var reorgErr *reorg.ReorgDetectedError
		if errors.As(err, &reorgErr) {
			next, res, err := ix.rollback(ctx, cp, reorgErr)
			metrics.BatchLog(OutcomeReorg, time.Since(start), 0)
			return next, res, err
		}
		metrics.BatchLog(OutcomeFailed, time.Since(start), 0)
		return cp, nil, &FetchError{FromBlock: from, ToBlock: to, Err: err}
	}

	res := &BatchResult{Outcome: OutcomeApplied, FromBlock: from, ToBlock: to, Logs: len(fetched.Logs)}

	events, rawByPos, err := ix.decode(fetched.Logs, res)
	if err != nil {
		metrics.BatchLog(OutcomeFailed, time.Since(start), 0)
		return cp, nil, fmt.Errorf("batch %d-%d: %w", from, to, err)
	}

	next := &checkpoint.Checkpoint{LastProcessedBlock: to}
	if n := len(verification.Headers); n > 0 && verification.Headers[n-1].Number.Uint64() == to {
		next.LastProcessedBlockHash = verification.Headers[n-1].Hash()
	}

	unlock := ix.maintenance.AcquireOperationLock()
	defer unlock()

	err = db.WithTx(ctx, ix.db, func(tx *sql.Tx) error {
		for _, ev := range events {
			outcome, err := ix.store.ApplyTx(ctx, tx, ev, rawByPos[ev.Position()])
			if err != nil {
				return fmt.Errorf("failed to apply %s at %s: %w", ev.Kind(), ev.Position(), err)
			}
			switch outcome.Status {
			case projection.StatusApplied:
				res.Applied++
			case projection.StatusFaulted:
				res.Faulted++
			case projection.StatusReplayed:
				res.Replayed++
			}
		}

		if err := ix.detector.RecordTx(tx, verification); err != nil {
			return fmt.Errorf("failed to record block hashes: %w", err)
		}

		return ix.checkpoints.SaveTx(tx, next)
	})
	if err != nil {
		metrics.BatchLog(OutcomeFailed, time.Since(start), 0)
		return cp, nil, fmt.Errorf("batch %d-%d: %w", from, to, err)
	}

	ix.mu.Lock()
	ix.lastBatch = time.Now()
	ix.mu.Unlock()

	metrics.BatchLog(OutcomeApplied, time.Since(start), to-from+1)

	if res.Logs > 0 {
		ix.log.Infow("batch applied",
			"from_block", from,
			"to_block", to,
			"logs", res.Logs,
			"applied", res.Applied,
			"faulted", res.Faulted,
			"replayed", res.Replayed,
			"skipped", res.Skipped,
		)
	} else {
		ix.log.Debugw("empty batch", "from_block", from, "to_block", to)
	}

	return next, res, nil
}

// decode turns logs into events ordered by chain position. Unknown events are skipped;
// a malformed log fails the batch.
func (ix *Indexer) decode(
	logs []itypes.RawLog,
	res *BatchResult,
) ([]decoder.Event, map[decoder.Position]itypes.RawLog, error) {
	events := make([]decoder.Event, 0, len(logs))
	rawByPos := make(map[decoder.Position]itypes.RawLog, len(logs))

	for _, raw := range logs {
		ev, err := decoder.Decode(raw)
		if err != nil {
			if decoder.IsUnknownEvent(err) {
				res.Skipped++
				metrics.UnknownEventInc()
				ix.log.Debugw("skipping unknown event",
					"block", raw.BlockNumber,
					"log_index", raw.Index,
					"tx_hash", raw.TxHash.Hex())
				continue
			}
			return nil, nil, err
		}

		events = append(events, ev)
		rawByPos[ev.Position()] = raw
	}

	slices.SortFunc(events, func(a, b decoder.Event) int {
		return a.Position().Compare(b.Position())
	})

	return events, rawByPos, nil
}

// rollback removes everything derived from replaced blocks and moves the checkpoint below them,
// in one transaction.
func (ix *Indexer) rollback(
	ctx context.Context,
	cp *checkpoint.Checkpoint,
	reorgErr *reorg.ReorgDetectedError,
) (*checkpoint.Checkpoint, *BatchResult, error) {
	target := min(cp.LastProcessedBlock, internalcommon.SaturatingSub(reorgErr.FirstReorgBlock, 1))
	from := target + 1

	ix.log.Warnw("reorg detected, rolling back projection",
		"first_reorg_block", reorgErr.FirstReorgBlock,
		"rollback_from", from,
		"checkpoint", cp.LastProcessedBlock,
		"details", reorgErr.Details)

	unlock := ix.maintenance.AcquireOperationLock()
	defer unlock()

	next := &checkpoint.Checkpoint{LastProcessedBlock: target}

	var removed *projection.RollbackResult
	err := db.WithTx(ctx, ix.db, func(tx *sql.Tx) error {
		var err error
		if removed, err = ix.store.RollbackTx(ctx, tx, from); err != nil {
			return fmt.Errorf("failed to roll back projection: %w", err)
		}
		if err := ix.detector.RollbackTx(tx, from); err != nil {
			return fmt.Errorf("failed to roll back block hashes: %w", err)
		}
		return ix.checkpoints.SaveTx(tx, next)
	})
	if err != nil {
		return cp, nil, fmt.Errorf("reorg at block %d: %w", reorgErr.FirstReorgBlock, err)
	}

	metrics.RollbackInc()
	ix.log.Infow("rollback complete",
		"checkpoint", target,
		"events_removed", removed.EventsRemoved,
		"records_rebuilt", removed.RecordsRebuilt)

	return next, &BatchResult{Outcome: OutcomeReorg, RolledBackFrom: from}, nil
}
