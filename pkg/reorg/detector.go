package reorg

import (
	"context"
	"database/sql"

	"github.com/ethereum/go-ethereum/core/types"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
)

// Detector verifies that fetched ranges extend the chain the indexer already processed.
type Detector interface {
	// Verify re-checks the recorded non-finalized blocks and the new range against the chain.
	// It returns a *ReorgDetectedError when a block has been replaced.
	Verify(ctx context.Context, logs []itypes.RawLog, fromBlock, toBlock uint64) (*Verification, error)

	// RecordTx stores the verified headers and prunes finalized history inside tx.
	RecordTx(tx *sql.Tx, v *Verification) error

	// RollbackTx forgets every recorded block at or above fromBlock inside tx.
	RollbackTx(tx *sql.Tx, fromBlock uint64) error
}

// Verification is the outcome of a successful Verify.
type Verification struct {
	// Finalized is the chain's finalized block number at verification time.
	Finalized uint64
	// Headers are the range headers above Finalized, ascending.
	Headers []*types.Header
}
