package fetcher

import (
	"context"

	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
)

// LogFetcher reads registry logs from the chain.
type LogFetcher interface {
	// ConfirmedHead returns the highest block the indexer may process under the configured finality.
	ConfirmedHead(ctx context.Context) (uint64, error)

	// FetchRange returns the registry logs in [fromBlock, toBlock], ordered by (block, log index).
	// The provider may force a smaller range; FetchResult.ToBlock reports the range actually covered.
	FetchRange(ctx context.Context, fromBlock, toBlock uint64) (*FetchResult, error)
}

// FetchResult contains the results of a log fetch operation.
type FetchResult struct {
	Logs      []itypes.RawLog
	FromBlock uint64
	ToBlock   uint64
}
