// Package chaintest provides an in-memory EVM chain for exercising the indexer without a node.
package chaintest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	pkgrpc "github.com/goran-ethernal/DIDIndexor/pkg/rpc"
)

var _ pkgrpc.EthClient = (*Chain)(nil)

// Registry is the default contract address events are emitted from.
var Registry = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// Method names accepted by FailNext and Calls.
const (
	MethodGetLogs        = "GetLogs"
	MethodGetHeader      = "GetBlockHeader"
	MethodGetLatest      = "GetLatestBlockHeader"
	MethodGetFinalized   = "GetFinalizedBlockHeader"
	MethodGetSafe        = "GetSafeBlockHeader"
	MethodBatchGetHeader = "BatchGetBlockHeaders"
)

const genesisTime = 1_700_000_000

type block struct {
	header *types.Header
	logs   []types.Log
}

type failure struct {
	remaining int
	err       error
}

// Chain is a linear chain of blocks starting at genesis. Blocks can be replaced with Reorg.
type Chain struct {
	mu sync.Mutex

	blocks         []block
	finalizedDepth uint64
	safeDepth      uint64
	maxLogs        int
	reorgs         uint64

	failures map[string]*failure
	calls    map[string]int
}

// New returns a chain holding only the genesis block.
func New() *Chain {
	c := &Chain{
		failures: make(map[string]*failure),
		calls:    make(map[string]int),
	}
	c.blocks = append(c.blocks, block{header: c.newHeader(0, common.Hash{})})

	return c
}

func (c *Chain) newHeader(number uint64, parent common.Hash) *types.Header {
	extra := make([]byte, 8)
	binary.BigEndian.PutUint64(extra, c.reorgs)

	return &types.Header{
		ParentHash: parent,
		Number:     new(big.Int).SetUint64(number),
		Time:       genesisTime + number*12,
		Difficulty: common.Big0,
		Extra:      extra,
	}
}

// Mine appends n empty blocks and returns the new head.
func (c *Chain) Mine(n int) uint64 {
	for range n {
		c.AddBlock()
	}
	return c.Head()
}

// AddBlock appends a block carrying the given events, in order, and returns its number.
// Event metadata (block, hashes, log index) is assigned by the chain; only the DID hash
// and the event fields are taken from the events.
func (c *Chain) AddBlock(events ...decoder.Event) uint64 {
	logs := make([]types.Log, 0, len(events))
	for _, ev := range events {
		log, err := decoder.ToLog(ev)
		if err != nil {
			panic(fmt.Sprintf("chaintest: %v", err))
		}
		if log.Address == (common.Address{}) {
			log.Address = Registry
		}
		logs = append(logs, log)
	}

	return c.AddRawBlock(logs...)
}

// AddRawBlock appends a block carrying arbitrary logs. Address defaults to Registry.
func (c *Chain) AddRawBlock(logs ...types.Log) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent := c.blocks[len(c.blocks)-1].header
	number := uint64(len(c.blocks))
	header := c.newHeader(number, parent.Hash())
	hash := header.Hash()

	stamped := make([]types.Log, len(logs))
	for i, log := range logs {
		if log.Address == (common.Address{}) {
			log.Address = Registry
		}
		log.BlockNumber = number
		log.BlockHash = hash
		log.TxHash = txHash(hash, i)
		log.TxIndex = uint(i)
		log.Index = uint(i)
		stamped[i] = log
	}

	c.blocks = append(c.blocks, block{header: header, logs: stamped})
	return number
}

func txHash(blockHash common.Hash, index int) common.Hash {
	idx := make([]byte, 8)
	binary.BigEndian.PutUint64(idx, uint64(index))
	return crypto.Keccak256Hash(blockHash.Bytes(), idx)
}

// Reorg drops every block from fromBlock on. Subsequent blocks get different hashes than
// the ones they replace.
func (c *Chain) Reorg(fromBlock uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fromBlock == 0 || fromBlock >= uint64(len(c.blocks)) {
		panic(fmt.Sprintf("chaintest: cannot reorg from block %d with head %d", fromBlock, len(c.blocks)-1))
	}

	c.blocks = c.blocks[:fromBlock]
	c.reorgs++
}

// SetFinality sets how many blocks behind the head the finalized and safe tags are.
func (c *Chain) SetFinality(finalizedDepth, safeDepth uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finalizedDepth, c.safeDepth = finalizedDepth, safeDepth
}

// SetMaxLogsPerQuery makes GetLogs reject ranges holding more than n logs, the way public
// providers do. Zero disables the limit.
func (c *Chain) SetMaxLogsPerQuery(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxLogs = n
}

// FailNext makes the next n calls of method return err.
func (c *Chain) FailNext(method string, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures[method] = &failure{remaining: n, err: err}
}

// Calls returns how many times method was called.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[method]
}

// Head returns the number of the latest block.
func (c *Chain) Head() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return uint64(len(c.blocks) - 1)
}

// Header returns a copy of the header of block n.
func (c *Chain) Header(n uint64) *types.Header {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n >= uint64(len(c.blocks)) {
		return nil
	}
	return types.CopyHeader(c.blocks[n].header)
}

// enter records a call and returns the injected failure, if any. Callers hold c.mu.
func (c *Chain) enter(method string) error {
	c.calls[method]++

	f, ok := c.failures[method]
	if !ok || f.remaining == 0 {
		return nil
	}
	f.remaining--

	return f.err
}

// Close is a no-op.
func (c *Chain) Close() {}

// GetLogs returns the logs in the query range emitted by the queried addresses and topics.
func (c *Chain) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(MethodGetLogs); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head := uint64(len(c.blocks) - 1)
	from, to := uint64(0), head
	if query.FromBlock != nil {
		from = query.FromBlock.Uint64()
	}
	if query.ToBlock != nil {
		to = min(query.ToBlock.Uint64(), head)
	}

	var out []types.Log
	for n := from; n <= to; n++ {
		for _, log := range c.blocks[n].logs {
			if matches(log, query) {
				out = append(out, log)
			}
		}
	}

	if c.maxLogs > 0 && len(out) > c.maxLogs {
		return nil, fmt.Errorf("query returned more than %d results", c.maxLogs)
	}

	return out, nil
}

func matches(log types.Log, query ethereum.FilterQuery) bool {
	if len(query.Addresses) > 0 && !slices.Contains(query.Addresses, log.Address) {
		return false
	}

	for i, alternatives := range query.Topics {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(log.Topics) || !slices.Contains(alternatives, log.Topics[i]) {
			return false
		}
	}

	return true
}

// GetBlockHeader returns the header of block blockNum.
func (c *Chain) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(MethodGetHeader); err != nil {
		return nil, err
	}
	return c.headerAt(blockNum)
}

func (c *Chain) headerAt(blockNum uint64) (*types.Header, error) {
	if blockNum >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("block %d: %w", blockNum, ethereum.NotFound)
	}
	return types.CopyHeader(c.blocks[blockNum].header), nil
}

// GetLatestBlockHeader returns the head.
func (c *Chain) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(MethodGetLatest); err != nil {
		return nil, err
	}
	return c.headerAt(uint64(len(c.blocks) - 1))
}

// GetFinalizedBlockHeader returns the block finalizedDepth blocks behind the head.
func (c *Chain) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(MethodGetFinalized); err != nil {
		return nil, err
	}
	head := uint64(len(c.blocks) - 1)
	return c.headerAt(head - min(c.finalizedDepth, head))
}

// GetSafeBlockHeader returns the block safeDepth blocks behind the head.
func (c *Chain) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(MethodGetSafe); err != nil {
		return nil, err
	}
	head := uint64(len(c.blocks) - 1)
	return c.headerAt(head - min(c.safeDepth, head))
}

// BatchGetBlockHeaders returns the headers of blockNums in order.
func (c *Chain) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(MethodBatchGetHeader); err != nil {
		return nil, err
	}

	headers := make([]*types.Header, 0, len(blockNums))
	for _, n := range blockNums {
		header, err := c.headerAt(n)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
	}

	return headers, nil
}
