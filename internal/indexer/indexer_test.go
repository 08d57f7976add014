package indexer

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/DIDIndexor/internal/chaintest"
	"github.com/goran-ethernal/DIDIndexor/internal/checkpoint"
	internalcommon "github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/db"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	ifetcher "github.com/goran-ethernal/DIDIndexor/internal/fetcher"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/internal/migrations"
	"github.com/goran-ethernal/DIDIndexor/internal/projection"
	ireorg "github.com/goran-ethernal/DIDIndexor/internal/reorg"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
	"github.com/goran-ethernal/DIDIndexor/pkg/config"
	pkgindexer "github.com/goran-ethernal/DIDIndexor/pkg/indexer"
	"github.com/stretchr/testify/require"
)

var (
	ownerA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ownerB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	addrC  = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	did1  = "did:x:1"
	h1    = chaintest.DIDHash(did1)
	hashA = common.HexToHash("0xaaaa")
	hashB = common.HexToHash("0xbbbb")
)

type testEnv struct {
	chain       *chaintest.Chain
	db          *sql.DB
	store       *projection.Store
	checkpoints *checkpoint.Manager
	fetcher     *ifetcher.LogFetcher
	ix          *Indexer
}

func setupTestIndexer(t *testing.T, batchSize uint64) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "indexer.sqlite")
	require.NoError(t, migrations.RunMigrations(dbPath))

	sqlDB, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	log := logger.NewNopLogger()
	chain := chaintest.New()
	chain.SetFinality(100, 0)

	env := &testEnv{
		chain:       chain,
		db:          sqlDB,
		store:       projection.NewStore(sqlDB, log),
		checkpoints: checkpoint.NewManager(sqlDB, log),
		fetcher: ifetcher.NewLogFetcher(ifetcher.LogFetcherConfig{
			Finality:  itypes.FinalityLatest,
			Addresses: []common.Address{chaintest.Registry},
		}, log, chain),
	}

	env.ix, err = New(config.IndexerConfig{
		Contracts:    []string{chaintest.Registry.Hex()},
		StartBlock:   1,
		BatchSize:    batchSize,
		PollInterval: internalcommon.NewDuration(10 * time.Millisecond),
	}, sqlDB, env.fetcher, ireorg.NewReorgDetector(sqlDB, chain, log), env.store, env.checkpoints, nil, log)
	require.NoError(t, err)

	return env
}

func (e *testEnv) initial(t *testing.T) *checkpoint.Checkpoint {
	t.Helper()

	cp, err := e.checkpoints.Ensure(t.Context(), 1)
	require.NoError(t, err)
	return cp
}

func (e *testEnv) process(t *testing.T, cp *checkpoint.Checkpoint) (*checkpoint.Checkpoint, *BatchResult) {
	t.Helper()

	next, res, err := e.ix.ProcessBatch(t.Context(), cp)
	require.NoError(t, err)
	return next, res
}

// drain processes batches until the indexer has caught up with the chain.
func (e *testEnv) drain(t *testing.T, cp *checkpoint.Checkpoint) *checkpoint.Checkpoint {
	t.Helper()

	for range 100 {
		next, res := e.process(t, cp)
		if res.Outcome == OutcomeCaughtUp {
			return next
		}
		cp = next
	}
	t.Fatal("indexer did not catch up")
	return nil
}

func (e *testEnv) record(t *testing.T, didHash common.Hash) *projection.DIDRecord {
	t.Helper()

	rec, err := e.store.Get(t.Context(), didHash)
	require.NoError(t, err)
	return rec
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(config.IndexerConfig{}, nil, nil, nil, nil, nil, nil, logger.NewNopLogger())
	require.ErrorContains(t, err, "database is required")
}

func TestNew_ReportsStoredCheckpoint(t *testing.T) {
	env := setupTestIndexer(t, 100)

	fresh := env.ix.Health()
	require.Equal(t, pkgindexer.StateIdle, fresh.Status)
	require.Equal(t, uint64(0), fresh.LastProcessedBlock)

	env.chain.AddBlock(chaintest.DataStored(h1, "profile", hashA))
	env.chain.AddBlock(chaintest.Created(did1, ownerA))
	env.chain.Mine(3)
	cp := env.drain(t, env.initial(t))
	require.Equal(t, uint64(5), cp.LastProcessedBlock)

	log := logger.NewNopLogger()
	reopened, err := New(config.IndexerConfig{
		Contracts:  []string{chaintest.Registry.Hex()},
		StartBlock: 1,
	}, env.db, env.fetcher, ireorg.NewReorgDetector(env.db, env.chain, log), env.store, env.checkpoints, nil, log)
	require.NoError(t, err)

	h := reopened.Health()
	require.Equal(t, pkgindexer.StateIdle, h.Status)
	require.False(t, h.IsRunning)
	require.Equal(t, uint64(5), h.LastProcessedBlock)
	require.Equal(t, 1, h.ConsistencyFaults)
	require.Empty(t, h.RunID)
}

func TestProcessBatch_Scenario(t *testing.T) {
	env := setupTestIndexer(t, 100)

	env.chain.Mine(9)
	env.chain.AddBlock(chaintest.Created(did1, ownerA))
	env.chain.AddBlock(chaintest.DataStored(h1, "profile", hashA))
	env.chain.AddBlock(chaintest.AccessGranted(h1, addrC, "profile"))

	cp := env.initial(t)
	require.Equal(t, uint64(0), cp.LastProcessedBlock)

	cp, res := env.process(t, cp)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, uint64(1), res.FromBlock)
	require.Equal(t, uint64(12), res.ToBlock)
	require.Equal(t, 3, res.Applied)
	require.Equal(t, uint64(12), cp.LastProcessedBlock)
	require.Equal(t, env.chain.Header(12).Hash(), cp.LastProcessedBlockHash)

	stored, err := env.checkpoints.Ensure(t.Context(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(12), stored.LastProcessedBlock)

	rec := env.record(t, h1)
	require.Equal(t, did1, rec.DID)
	require.Equal(t, ownerA, rec.Owner)
	require.Equal(t, map[string]common.Hash{"profile": hashA}, rec.DataPointers)
	require.Equal(t, []projection.AccessKey{{Accessor: addrC, DataType: "profile"}}, rec.GrantList())
	require.Equal(t, uint64(12), rec.LastAppliedBlock)
	require.Equal(t, env.chain.Header(12).Time, rec.LastAppliedTimestamp)

	env.chain.Mine(7)
	env.chain.AddBlock(chaintest.Transferred(h1, ownerA, ownerB))
	cp = env.drain(t, cp)
	require.Equal(t, uint64(20), cp.LastProcessedBlock)

	byA, _, err := env.store.ListByOwner(t.Context(), ownerA, 10, 0)
	require.NoError(t, err)
	require.Empty(t, byA)

	byB, _, err := env.store.ListByOwner(t.Context(), ownerB, 10, 0)
	require.NoError(t, err)
	require.Len(t, byB, 1)
	require.Equal(t, h1, byB[0].DIDHash)
}

func TestProcessBatch_CaughtUp(t *testing.T) {
	env := setupTestIndexer(t, 10)
	env.chain.Mine(3)

	cp := env.drain(t, env.initial(t))
	require.Equal(t, uint64(3), cp.LastProcessedBlock)

	next, res := env.process(t, cp)
	require.Equal(t, OutcomeCaughtUp, res.Outcome)
	require.Equal(t, cp, next)
}

func TestProcessBatch_RespectsBatchSize(t *testing.T) {
	env := setupTestIndexer(t, 5)
	env.chain.Mine(12)

	cp, res := env.process(t, env.initial(t))
	require.Equal(t, uint64(1), res.FromBlock)
	require.Equal(t, uint64(5), res.ToBlock)
	require.Equal(t, uint64(5), cp.LastProcessedBlock)

	cp, res = env.process(t, cp)
	require.Equal(t, uint64(6), res.FromBlock)
	require.Equal(t, uint64(10), cp.LastProcessedBlock)

	cp, _ = env.process(t, cp)
	require.Equal(t, uint64(12), cp.LastProcessedBlock)
}

func TestProcessBatch_AppliesInChainOrder(t *testing.T) {
	env := setupTestIndexer(t, 100)

	env.chain.AddBlock(
		chaintest.Created(did1, ownerA),
		chaintest.Updated(h1, "v1"),
		chaintest.Revoked(h1),
	)

	env.drain(t, env.initial(t))

	rec := env.record(t, h1)
	require.False(t, rec.IsActive)
	require.Equal(t, "v1", rec.Document)
	require.Equal(t, uint(2), rec.LastAppliedLogIndex)
}

func TestProcessBatch_MalformedFailsBatch(t *testing.T) {
	env := setupTestIndexer(t, 100)

	env.chain.AddBlock(chaintest.Created(did1, ownerA))
	env.chain.AddRawBlock(chaintest.MalformedLog(h1))

	cp := env.initial(t)
	next, res, err := env.ix.ProcessBatch(t.Context(), cp)
	require.Error(t, err)
	require.True(t, decoder.IsMalformed(err))
	require.Nil(t, res)
	require.Equal(t, cp, next)

	_, err = env.store.Get(t.Context(), h1)
	require.ErrorIs(t, err, projection.ErrNotFound)

	stored, err := env.checkpoints.Ensure(t.Context(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), stored.LastProcessedBlock)
}

func TestDecode_SkipsUnknownEvents(t *testing.T) {
	env := setupTestIndexer(t, 100)

	created, err := decoder.ToLog(chaintest.At(chaintest.Created(did1, ownerA), 1, 1))
	require.NoError(t, err)
	foreign := chaintest.ForeignLog()
	foreign.BlockNumber, foreign.Index = 1, 0

	res := &BatchResult{}
	events, raw, err := env.ix.decode([]itypes.RawLog{{Log: foreign}, {Log: created}}, res)
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Len(t, events, 1)
	require.Equal(t, decoder.KindDIDCreated, events[0].Kind())
	require.Len(t, raw, 1)
}

func TestProcessBatch_DanglingReference(t *testing.T) {
	env := setupTestIndexer(t, 100)

	env.chain.AddBlock(chaintest.DataStored(h1, "profile", hashA))
	env.chain.AddBlock(chaintest.Created(did1, ownerA))
	env.chain.AddBlock(chaintest.DataStored(h1, "profile", hashB))

	cp, res := env.process(t, env.initial(t))
	require.Equal(t, uint64(3), cp.LastProcessedBlock)
	require.Equal(t, 1, res.Faulted)
	require.Equal(t, 2, res.Applied)

	rec := env.record(t, h1)
	require.Equal(t, map[string]common.Hash{"profile": hashB}, rec.DataPointers)

	faults, total, err := env.store.ListFaults(t.Context(), 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, projection.ReasonDanglingReference, faults[0].Reason)
	require.Equal(t, uint64(1), faults[0].BlockNumber)

	events, total, err := env.store.QueryEvents(t.Context(), projection.EventQuery{DIDHash: &h1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, projection.StatusFaulted, events[0].Status)
}

func TestProcessBatch_CrashMidBatch(t *testing.T) {
	build := func(chain *chaintest.Chain) {
		chain.AddBlock(chaintest.Created(did1, ownerA))
		chain.AddBlock(chaintest.Updated(h1, "doc"))
		chain.AddBlock(chaintest.ControllerAdded(h1, addrC))
		chain.AddBlock(chaintest.DataStored(h1, "profile", hashA))
		chain.AddBlock(chaintest.AccessGranted(h1, ownerB, "profile"))
	}

	reference := setupTestIndexer(t, 100)
	build(reference.chain)
	reference.drain(t, reference.initial(t))

	crashed := setupTestIndexer(t, 100)
	build(crashed.chain)
	cp := crashed.initial(t)

	// three of five events land without the checkpoint moving
	fetched, err := crashed.fetcher.FetchRange(t.Context(), 1, 5)
	require.NoError(t, err)
	require.Len(t, fetched.Logs, 5)
	require.NoError(t, db.WithTx(t.Context(), crashed.db, func(tx *sql.Tx) error {
		for _, raw := range fetched.Logs[:3] {
			ev, err := decoder.Decode(raw)
			if err != nil {
				return err
			}
			if _, err := crashed.store.ApplyTx(t.Context(), tx, ev, raw); err != nil {
				return err
			}
		}
		return nil
	}))

	cp, res := crashed.process(t, cp)
	require.Equal(t, uint64(5), cp.LastProcessedBlock)
	require.Equal(t, 3, res.Replayed)
	require.Equal(t, 2, res.Applied)

	require.Equal(t, reference.record(t, h1), crashed.record(t, h1))

	_, refTotal, err := reference.store.QueryEvents(t.Context(), projection.EventQuery{Limit: 10})
	require.NoError(t, err)
	_, total, err := crashed.store.QueryEvents(t.Context(), projection.EventQuery{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, refTotal, total)
}

func TestProcessBatch_ReorgRollsBack(t *testing.T) {
	env := setupTestIndexer(t, 100)

	env.chain.AddBlock(chaintest.Created(did1, ownerA))
	env.chain.AddBlock(chaintest.DataStored(h1, "profile", hashA))
	env.chain.AddBlock(chaintest.AccessGranted(h1, ownerB, "profile"))

	cp := env.drain(t, env.initial(t))
	require.Equal(t, uint64(3), cp.LastProcessedBlock)

	env.chain.Reorg(2)
	env.chain.AddBlock(chaintest.DataStored(h1, "profile", hashB))
	env.chain.Mine(2)

	cp, res := env.process(t, cp)
	require.Equal(t, OutcomeReorg, res.Outcome)
	require.Equal(t, uint64(2), res.RolledBackFrom)
	require.Equal(t, uint64(1), cp.LastProcessedBlock)

	rec := env.record(t, h1)
	require.Empty(t, rec.DataPointers)
	require.Empty(t, rec.AccessGrants)
	require.Equal(t, uint64(1), rec.LastAppliedBlock)

	stored, err := env.checkpoints.Ensure(t.Context(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stored.LastProcessedBlock)

	cp = env.drain(t, cp)
	require.Equal(t, uint64(4), cp.LastProcessedBlock)

	rec = env.record(t, h1)
	require.Equal(t, map[string]common.Hash{"profile": hashB}, rec.DataPointers)
	require.Empty(t, rec.AccessGrants)

	_, total, err := env.store.QueryEvents(t.Context(), projection.EventQuery{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestProcessBatch_FetchError(t *testing.T) {
	env := setupTestIndexer(t, 100)
	env.chain.Mine(3)

	errDown := errors.New("connection refused")
	env.chain.FailNext(chaintest.MethodGetLogs, 1, errDown)

	cp := env.initial(t)
	next, _, err := env.ix.ProcessBatch(t.Context(), cp)
	require.ErrorIs(t, err, errDown)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, uint64(1), fetchErr.FromBlock)
	require.Equal(t, uint64(3), fetchErr.ToBlock)
	require.Equal(t, cp, next)

	env.chain.FailNext(chaintest.MethodGetLatest, 1, errDown)
	_, _, err = env.ix.ProcessBatch(t.Context(), cp)
	require.ErrorAs(t, err, &fetchErr)
}

func TestIndexer_StartStop(t *testing.T) {
	env := setupTestIndexer(t, 2)
	env.chain.AddBlock(chaintest.Created(did1, ownerA))
	env.chain.Mine(6)

	require.Equal(t, pkgindexer.StateIdle, env.ix.Health().Status)

	h := env.ix.Start(t.Context())
	require.True(t, h.IsRunning)
	require.NotEmpty(t, h.RunID)
	require.Equal(t, []common.Address{chaintest.Registry}, h.ContractAddresses)

	again := env.ix.Start(t.Context())
	require.Equal(t, h.RunID, again.RunID)

	require.Eventually(t, func() bool {
		return env.ix.Health().LastProcessedBlock == 7
	}, 5*time.Second, 10*time.Millisecond)

	stopped := env.ix.Stop()
	require.Equal(t, pkgindexer.StateIdle, stopped.Status)
	require.False(t, stopped.IsRunning)
	require.Equal(t, uint64(7), stopped.LastProcessedBlock)
	require.NotNil(t, stopped.LastBatchAt)

	require.Equal(t, pkgindexer.StateIdle, env.ix.Stop().Status)

	env.chain.AddBlock(chaintest.Updated(h1, "resumed"))
	restarted := env.ix.Start(t.Context())
	require.NotEqual(t, h.RunID, restarted.RunID)

	require.Eventually(t, func() bool {
		return env.ix.Health().LastProcessedBlock == 8
	}, 5*time.Second, 10*time.Millisecond)
	env.ix.Stop()

	require.Equal(t, "resumed", env.record(t, h1).Document)
}

func TestIndexer_FailsOnMalformedLog(t *testing.T) {
	env := setupTestIndexer(t, 100)
	env.chain.AddBlock(chaintest.Created(did1, ownerA))
	env.chain.AddRawBlock(chaintest.MalformedLog(h1))

	first := env.ix.Start(t.Context())
	<-env.ix.Done()

	h := env.ix.Health()
	require.Equal(t, pkgindexer.StateFailed, h.Status)
	require.False(t, h.IsRunning)
	require.Contains(t, h.LastError, "malformed")
	require.Equal(t, uint64(0), h.LastProcessedBlock)

	// reads stay available
	_, err := env.store.Get(t.Context(), h1)
	require.ErrorIs(t, err, projection.ErrNotFound)

	second := env.ix.Start(t.Context())
	require.NotEqual(t, first.RunID, second.RunID)
	require.Empty(t, second.LastError)
	<-env.ix.Done()
	require.Equal(t, pkgindexer.StateFailed, env.ix.Health().Status)
}

func TestIndexer_ContextCancelGoesIdle(t *testing.T) {
	env := setupTestIndexer(t, 100)
	env.chain.Mine(3)

	ctx, cancel := context.WithCancel(t.Context())
	env.ix.Start(ctx)

	require.Eventually(t, func() bool {
		return env.ix.Health().LastProcessedBlock == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-env.ix.Done()

	h := env.ix.Health()
	require.Equal(t, pkgindexer.StateIdle, h.Status)
	require.Empty(t, h.LastError)
}

func TestIndexer_ReportsConsistencyFaults(t *testing.T) {
	env := setupTestIndexer(t, 100)
	env.chain.AddBlock(chaintest.Revoked(h1))

	env.ix.Start(t.Context())
	require.Eventually(t, func() bool {
		return env.ix.Health().ConsistencyFaults == 1
	}, 5*time.Second, 10*time.Millisecond)
	env.ix.Stop()
}
