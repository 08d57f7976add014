package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/pkg/config"
	pkgrpc "github.com/goran-ethernal/DIDIndexor/pkg/rpc"
	"golang.org/x/time/rate"
)

// Compile-time check to ensure Client implements pkgrpc.EthClient interface.
var _ pkgrpc.EthClient = (*Client)(nil)

const maxHeaderBatch = 100

// Client wraps the Ethereum RPC client.
// Every call is rate limited and retried with exponential backoff on transient errors.
type Client struct {
	eth     *ethclient.Client
	rpc     *rpc.Client
	retry   *config.RetryConfig
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a new RPC client connected to the configured endpoint.
func NewClient(ctx context.Context, cfg config.ChainConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	return newClient(rpcClient, cfg, log), nil
}

func newClient(rpcClient *rpc.Client, cfg config.ChainConfig, log *logger.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		eth:     ethclient.NewClient(rpcClient),
		rpc:     rpcClient,
		retry:   cfg.Retry,
		limiter: rate.NewLimiter(limit, max(cfg.RateBurst, 1)),
		log:     log,
	}
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// GetLogs retrieves logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.call(ctx, "eth_getLogs", func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})

	return logs, err
}

// GetBlockHeader retrieves the header for a specific block number.
func (c *Client) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	return c.headerByNumber(ctx, new(big.Int).SetUint64(blockNum))
}

// GetLatestBlockHeader retrieves the latest block header.
func (c *Client) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.headerByNumber(ctx, nil)
}

// GetFinalizedBlockHeader retrieves the finalized block header.
func (c *Client) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.headerByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
}

// GetSafeBlockHeader retrieves the safe block header.
func (c *Client) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.headerByNumber(ctx, big.NewInt(int64(rpc.SafeBlockNumber)))
}

func (c *Client) headerByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.call(ctx, "eth_getBlockByNumber", func() error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, number)
		return err
	})

	return header, err
}

// BatchGetBlockHeaders retrieves headers for multiple block numbers using batch calls
// of at most 100 requests each.
func (c *Client) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	headers := make([]*types.Header, 0, len(blockNums))

	for i := 0; i < len(blockNums); i += maxHeaderBatch {
		chunk := blockNums[i:min(i+maxHeaderBatch, len(blockNums))]
		results := make([]*types.Header, len(chunk))

		err := c.call(ctx, "eth_getBlockByNumber_batch", func() error {
			batch := make([]rpc.BatchElem, len(chunk))
			for j, blockNum := range chunk {
				results[j] = nil
				batch[j] = rpc.BatchElem{
					Method: "eth_getBlockByNumber",
					Args:   []any{toBlockNumArg(blockNum), false},
					Result: &results[j],
				}
			}

			if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
				return err
			}

			for _, elem := range batch {
				if elem.Error != nil {
					return elem.Error
				}
			}

			return nil
		})
		if err != nil {
			return nil, err
		}

		for j, header := range results {
			if header == nil {
				return nil, fmt.Errorf("header of block %d: %w", chunk[j], ethereum.NotFound)
			}
		}

		headers = append(headers, results...)
	}

	return headers, nil
}

// call runs one RPC operation through the rate limiter, the retry policy and the metrics.
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	return retryWithBackoff(ctx, c.retry, method, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		RPCMethodInc(method)
		start := time.Now()
		err := fn()
		RPCMethodDuration(method, time.Since(start))

		if err != nil {
			RPCMethodError(method, errorType(err))
			c.log.Debugf("rpc call %s failed: %v", method, err)
		}

		return err
	})
}

// errorType classifies an error for the metrics label.
func errorType(err error) string {
	if tooMany, _ := IsTooManyResultsError(err); tooMany {
		return "too_many_results"
	}
	if retryableError(err) {
		return "transient"
	}
	return "other"
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}
