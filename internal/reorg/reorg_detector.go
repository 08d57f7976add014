package reorg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	internalcommon "github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/internal/metrics"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
	"github.com/goran-ethernal/DIDIndexor/pkg/reorg"
	"github.com/goran-ethernal/DIDIndexor/pkg/rpc"
	"github.com/russross/meddler"
)

var _ reorg.Detector = (*ReorgDetector)(nil)

// ReorgDetector detects blockchain reorganizations by tracking the hashes of non-finalized blocks
// the indexer has processed.
type ReorgDetector struct {
	db  *sql.DB
	rpc rpc.EthClient
	log *logger.Logger
}

// NewReorgDetector creates a detector reading recorded hashes from db.
func NewReorgDetector(db *sql.DB, rpcClient rpc.EthClient, log *logger.Logger) *ReorgDetector {
	metrics.ComponentHealthSet(internalcommon.ComponentReorgDetector, true)

	return &ReorgDetector{
		db:  db,
		rpc: rpcClient,
		log: log,
	}
}

// StoredBlock is one recorded block hash.
type StoredBlock struct {
	BlockNumber uint64      `meddler:"block_number"`
	BlockHash   common.Hash `meddler:"block_hash,hash"`
	ParentHash  common.Hash `meddler:"parent_hash,hash"`
}

// Verify follows these steps:
//  1. fetch the finalized header and check it against the recorded hash of that block
//  2. re-fetch every recorded non-finalized block; the first changed hash is the reorg point
//  3. fetch the headers of the new range above finality
//  4. check that log block hashes match the headers
//  5. check parent hash continuity inside the range and against the recorded predecessor
func (r *ReorgDetector) Verify(
	ctx context.Context,
	logs []itypes.RawLog,
	fromBlock, toBlock uint64,
) (*reorg.Verification, error) {
	finalizedHeader, err := r.rpc.GetFinalizedBlockHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get finalized block header: %w", err)
	}
	finalized := finalizedHeader.Number.Uint64()

	stored, err := r.storedBlocksFrom(ctx, finalized)
	if err != nil {
		return nil, err
	}

	// Step 1 and 2
	if err := r.verifyStored(ctx, stored, finalizedHeader); err != nil {
		return nil, err
	}

	// Step 3
	blockNums := make([]uint64, 0, toBlock-fromBlock+1)
	for n := max(fromBlock, finalized+1); n <= toBlock; n++ {
		blockNums = append(blockNums, n)
	}

	v := &reorg.Verification{Finalized: finalized}
	if len(blockNums) == 0 {
		return v, nil
	}

	headers, err := r.rpc.BatchGetBlockHeaders(ctx, blockNums)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch headers for range: %w", err)
	}

	// Step 4
	hashes := make(map[uint64]common.Hash, len(headers))
	for _, header := range headers {
		hashes[header.Number.Uint64()] = header.Hash()
	}

	for _, l := range logs {
		headerHash, ok := hashes[l.BlockNumber]
		if ok && headerHash != l.BlockHash {
			return nil, r.detected(l.BlockNumber, toBlock,
				fmt.Sprintf("log_hash=%s header_hash=%s", l.BlockHash.Hex(), headerHash.Hex()))
		}
	}

	// Step 5
	predecessor := headers[0].Number.Uint64() - 1
	for _, block := range stored {
		if block.BlockNumber == predecessor && block.BlockHash != headers[0].ParentHash {
			return nil, r.detected(predecessor, toBlock,
				fmt.Sprintf("recorded_hash=%s parent_hash=%s", block.BlockHash.Hex(), headers[0].ParentHash.Hex()))
		}
	}

	for i := 1; i < len(headers); i++ {
		if headers[i].ParentHash != headers[i-1].Hash() {
			n := headers[i].Number.Uint64()
			return nil, r.detected(n-1, toBlock, fmt.Sprintf("chain discontinuity between blocks %d and %d", n-1, n))
		}
	}

	v.Headers = headers
	return v, nil
}

// verifyStored compares recorded hashes at or above the finalized block with the chain.
func (r *ReorgDetector) verifyStored(ctx context.Context, stored []*StoredBlock, finalizedHeader *types.Header) error {
	if len(stored) == 0 {
		return nil
	}

	finalized := finalizedHeader.Number.Uint64()
	blockNums := make([]uint64, len(stored))
	for i, block := range stored {
		blockNums[i] = block.BlockNumber
	}

	current, err := r.rpc.BatchGetBlockHeaders(ctx, blockNums)
	if err != nil {
		return fmt.Errorf("failed to fetch recorded headers: %w", err)
	}

	last := stored[len(stored)-1].BlockNumber
	for i, header := range current {
		if stored[i].BlockHash == header.Hash() {
			continue
		}

		kind := "recorded"
		if stored[i].BlockNumber == finalized {
			kind = "finalized"
		}
		return r.detected(stored[i].BlockNumber, last,
			fmt.Sprintf("%s block changed: recorded_hash=%s current_hash=%s",
				kind, stored[i].BlockHash.Hex(), header.Hash().Hex()))
	}

	r.log.Debugf("verified %d recorded blocks above finalized block %d", len(stored), finalized)
	return nil
}

func (r *ReorgDetector) detected(firstBlock, lastBlock uint64, details string) error {
	depth := max(lastBlock, firstBlock) - firstBlock + 1
	reorgDetectedLog(depth)
	r.log.Warnw("reorg detected", "firstReorgBlock", firstBlock, "depth", depth, "details", details)

	return reorg.NewReorgError(firstBlock, details)
}

func (r *ReorgDetector) storedBlocksFrom(ctx context.Context, fromBlock uint64) ([]*StoredBlock, error) {
	var blocks []*StoredBlock
	err := meddler.QueryAll(r.db, &blocks,
		"SELECT * FROM block_hashes WHERE block_number >= ? ORDER BY block_number ASC", fromBlock)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read recorded blocks: %w", err)
	}

	return blocks, nil
}

// RecordTx stores the verified headers and prunes hashes below the finalized block.
// The finalized block itself is kept as the continuity anchor for the next range.
func (r *ReorgDetector) RecordTx(tx *sql.Tx, v *reorg.Verification) error {
	if v == nil {
		return nil
	}

	if _, err := tx.Exec("DELETE FROM block_hashes WHERE block_number < ?", v.Finalized); err != nil {
		return fmt.Errorf("failed to prune finalized blocks: %w", err)
	}

	for _, header := range v.Headers {
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO block_hashes (block_number, block_hash, parent_hash) VALUES (?, ?, ?)",
			header.Number.Uint64(), header.Hash().Hex(), header.ParentHash.Hex(),
		)
		if err != nil {
			return fmt.Errorf("failed to record block %d: %w", header.Number.Uint64(), err)
		}
	}

	var tracked int
	if err := tx.QueryRow("SELECT COUNT(*) FROM block_hashes").Scan(&tracked); err == nil {
		trackedBlocksSet(tracked)
	}

	return nil
}

// RollbackTx forgets recorded blocks at or above fromBlock.
func (r *ReorgDetector) RollbackTx(tx *sql.Tx, fromBlock uint64) error {
	res, err := tx.Exec("DELETE FROM block_hashes WHERE block_number >= ?", fromBlock)
	if err != nil {
		return fmt.Errorf("failed to roll back block hashes: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		r.log.Debugf("forgot %d block hashes from block %d", n, fromBlock)
	}

	return nil
}
