package fetcher

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	irpc "github.com/goran-ethernal/DIDIndexor/internal/rpc"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
	"github.com/goran-ethernal/DIDIndexor/pkg/fetcher"
	"github.com/goran-ethernal/DIDIndexor/pkg/rpc"
)

// Compile-time check to ensure LogFetcher implements fetcher.LogFetcher interface.
var _ fetcher.LogFetcher = (*LogFetcher)(nil)

// LogFetcherConfig contains configuration for the LogFetcher.
type LogFetcherConfig struct {
	// Finality specifies the finality mode
	Finality itypes.BlockFinality

	// FinalizedLag is blocks behind head to consider confirmed (only for "latest" mode)
	FinalizedLag uint64

	// Addresses are the registry contracts to read
	Addresses []ethcommon.Address
}

// LogFetcher reads registry logs and stamps them with block timestamps.
type LogFetcher struct {
	cfg    LogFetcherConfig
	rpc    rpc.EthClient
	topics [][]ethcommon.Hash
	log    *logger.Logger
}

// NewLogFetcher creates a new LogFetcher instance.
func NewLogFetcher(cfg LogFetcherConfig, log *logger.Logger, rpcClient rpc.EthClient) *LogFetcher {
	return &LogFetcher{
		cfg:    cfg,
		rpc:    rpcClient,
		topics: [][]ethcommon.Hash{decoder.Topics()},
		log:    log,
	}
}

// ConfirmedHead returns the block number considered confirmed based on config.
func (lf *LogFetcher) ConfirmedHead(ctx context.Context) (uint64, error) {
	var (
		header *types.Header
		err    error
	)

	switch lf.cfg.Finality {
	case itypes.FinalityFinalized:
		header, err = lf.rpc.GetFinalizedBlockHeader(ctx)
	case itypes.FinalitySafe:
		header, err = lf.rpc.GetSafeBlockHeader(ctx)
	case itypes.FinalityLatest:
		header, err = lf.rpc.GetLatestBlockHeader(ctx)
	default:
		return 0, fmt.Errorf("invalid finality mode: %q", lf.cfg.Finality)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to get %s block header: %w", lf.cfg.Finality, err)
	}
	if header == nil || header.Number == nil {
		return 0, fmt.Errorf("%s block header: %w", lf.cfg.Finality, ethereum.NotFound)
	}

	head := header.Number.Uint64()
	if lf.cfg.Finality == itypes.FinalityLatest {
		head = max(head, lf.cfg.FinalizedLag) - lf.cfg.FinalizedLag
	}

	confirmedHeadSet(head)
	return head, nil
}

// FetchRange fetches registry logs for [fromBlock, toBlock]. When the provider refuses the range
// it is shrunk and the result reports the covered ToBlock.
func (lf *LogFetcher) FetchRange(ctx context.Context, fromBlock, toBlock uint64) (*fetcher.FetchResult, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid range: from %d > to %d", fromBlock, toBlock)
	}

	logs, coveredTo, err := lf.fetchLogsWithRetry(ctx, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs: %w", err)
	}

	logs = slices.DeleteFunc(logs, func(l types.Log) bool { return l.Removed })
	slices.SortFunc(logs, func(a, b types.Log) int {
		if a.BlockNumber != b.BlockNumber {
			return compareUint64(a.BlockNumber, b.BlockNumber)
		}
		return compareUint64(uint64(a.Index), uint64(b.Index))
	})

	raw, err := lf.stampTimestamps(ctx, logs)
	if err != nil {
		return nil, err
	}

	logsFetchedAdd(len(raw))
	lf.log.Debugf("fetched range from %d to %d with %d logs", fromBlock, coveredTo, len(raw))

	return &fetcher.FetchResult{
		Logs:      raw,
		FromBlock: fromBlock,
		ToBlock:   coveredTo,
	}, nil
}

// stampTimestamps attaches block times, fetching one header per distinct block that carries logs.
func (lf *LogFetcher) stampTimestamps(ctx context.Context, logs []types.Log) ([]itypes.RawLog, error) {
	raw := make([]itypes.RawLog, len(logs))
	if len(logs) == 0 {
		return raw, nil
	}

	blockNums := make([]uint64, 0, len(logs))
	for _, l := range logs {
		if len(blockNums) == 0 || blockNums[len(blockNums)-1] != l.BlockNumber {
			blockNums = append(blockNums, l.BlockNumber)
		}
	}

	headers, err := lf.rpc.BatchGetBlockHeaders(ctx, blockNums)
	if err != nil {
		return nil, fmt.Errorf("failed to get headers for %d blocks: %w", len(blockNums), err)
	}

	times := make(map[uint64]uint64, len(headers))
	for i, header := range headers {
		times[blockNums[i]] = header.Time
	}

	for i, l := range logs {
		raw[i] = itypes.RawLog{Log: l, Timestamp: times[l.BlockNumber]}
	}

	return raw, nil
}

// fetchLogsWithRetry fetches logs and retries with a smaller range when the provider reports too
// many results. A suggested range is only taken when it starts at fromBlock, so no logs are skipped.
func (lf *LogFetcher) fetchLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, uint64, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: lf.cfg.Addresses,
		Topics:    lf.topics,
	}

	logs, err := lf.rpc.GetLogs(ctx, query)
	if err == nil {
		return logs, toBlock, nil
	}

	ok, errData := irpc.IsTooManyResultsError(err)
	if !ok {
		return nil, 0, err
	}

	newTo := fromBlock + (toBlock-fromBlock)/2
	if suggestedFrom, suggestedTo, ok := irpc.ParseSuggestedBlockRange(errData); ok &&
		suggestedFrom == fromBlock && suggestedTo < toBlock {
		newTo = suggestedTo
	} else if fromBlock == toBlock {
		return nil, 0, fmt.Errorf("cannot split range further, single block %d has too many logs: %w", fromBlock, err)
	}

	rangeSplitInc()
	lf.log.Infof("too many logs in range %d to %d, retrying with %d to %d", fromBlock, toBlock, fromBlock, newTo)

	return lf.fetchLogsWithRetry(ctx, fromBlock, newTo)
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
