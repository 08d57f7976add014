package fetcher

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/DIDIndexor/internal/chaintest"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
	"github.com/stretchr/testify/require"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func setupTestLogFetcher(t *testing.T, finality itypes.BlockFinality, lag uint64) (*LogFetcher, *chaintest.Chain) {
	t.Helper()

	chain := chaintest.New()
	lf := NewLogFetcher(LogFetcherConfig{
		Finality:     finality,
		FinalizedLag: lag,
		Addresses:    []common.Address{chaintest.Registry},
	}, logger.NewNopLogger(), chain)

	return lf, chain
}

func TestConfirmedHead(t *testing.T) {
	tests := []struct {
		name     string
		finality itypes.BlockFinality
		lag      uint64
		want     uint64
	}{
		{name: "finalized", finality: itypes.FinalityFinalized, want: 20 - 8},
		{name: "safe", finality: itypes.FinalitySafe, want: 20 - 3},
		{name: "latest", finality: itypes.FinalityLatest, want: 20},
		{name: "latest with lag", finality: itypes.FinalityLatest, lag: 5, want: 15},
		{name: "lag beyond head", finality: itypes.FinalityLatest, lag: 50, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lf, chain := setupTestLogFetcher(t, tt.finality, tt.lag)
			chain.Mine(20)
			chain.SetFinality(8, 3)

			head, err := lf.ConfirmedHead(t.Context())
			require.NoError(t, err)
			require.Equal(t, tt.want, head)
		})
	}
}

func TestConfirmedHead_Errors(t *testing.T) {
	lf, chain := setupTestLogFetcher(t, itypes.FinalityFinalized, 0)

	errDown := errors.New("connection refused")
	chain.FailNext(chaintest.MethodGetFinalized, 1, errDown)
	_, err := lf.ConfirmedHead(t.Context())
	require.ErrorIs(t, err, errDown)

	lf.cfg.Finality = "pending"
	_, err = lf.ConfirmedHead(t.Context())
	require.ErrorContains(t, err, "invalid finality mode")
}

func TestFetchRange(t *testing.T) {
	lf, chain := setupTestLogFetcher(t, itypes.FinalityLatest, 0)

	created := chaintest.Created("did:example:1", owner)
	b1 := chain.AddBlock(created)
	chain.Mine(2)
	b4 := chain.AddBlock(
		chaintest.Updated(created.DIDHash, "{}"),
		chaintest.Revoked(created.DIDHash),
	)

	foreign := chaintest.ForeignLog()
	chain.AddRawBlock(foreign)

	otherContract := chaintest.ForeignLog()
	otherContract.Address = common.HexToAddress("0x1234")
	chain.AddRawBlock(otherContract)

	result, err := lf.FetchRange(t.Context(), 1, chain.Head())
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.FromBlock)
	require.Equal(t, chain.Head(), result.ToBlock)
	require.Len(t, result.Logs, 3)

	require.Equal(t, b1, result.Logs[0].BlockNumber)
	require.Equal(t, chain.Header(b1).Time, result.Logs[0].Timestamp)
	require.Equal(t, b4, result.Logs[2].BlockNumber)
	require.Equal(t, uint(1), result.Logs[2].Index)
	require.Equal(t, chain.Header(b4).Time, result.Logs[2].Timestamp)

	require.Equal(t, 1, chain.Calls(chaintest.MethodBatchGetHeader))
}

func TestFetchRange_Empty(t *testing.T) {
	lf, chain := setupTestLogFetcher(t, itypes.FinalityLatest, 0)
	chain.Mine(10)

	result, err := lf.FetchRange(t.Context(), 1, 10)
	require.NoError(t, err)
	require.Empty(t, result.Logs)
	require.Equal(t, uint64(10), result.ToBlock)
	require.Zero(t, chain.Calls(chaintest.MethodBatchGetHeader))

	_, err = lf.FetchRange(t.Context(), 5, 4)
	require.ErrorContains(t, err, "invalid range")
}

func TestFetchRange_TooManyResultsShrinksRange(t *testing.T) {
	lf, chain := setupTestLogFetcher(t, itypes.FinalityLatest, 0)

	for i := range 8 {
		chain.AddBlock(chaintest.Created("did:example:"+string(rune('a'+i)), owner))
	}
	chain.SetMaxLogsPerQuery(3)

	result, err := lf.FetchRange(t.Context(), 1, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(2), result.ToBlock, "1-8 -> 1-4 -> 1-2")
	require.Len(t, result.Logs, 2)
}

func TestFetchRange_SingleBlockTooManyResults(t *testing.T) {
	lf, chain := setupTestLogFetcher(t, itypes.FinalityLatest, 0)

	chain.AddBlock(
		chaintest.Created("did:example:a", owner),
		chaintest.Created("did:example:b", owner),
	)
	chain.SetMaxLogsPerQuery(1)

	_, err := lf.FetchRange(t.Context(), 1, 1)
	require.ErrorContains(t, err, "cannot split range further")
}

func TestFetchRange_HeaderFailure(t *testing.T) {
	lf, chain := setupTestLogFetcher(t, itypes.FinalityLatest, 0)
	chain.AddBlock(chaintest.Created("did:example:a", owner))

	chain.FailNext(chaintest.MethodBatchGetHeader, 1, ethereum.NotFound)
	_, err := lf.FetchRange(t.Context(), 1, 1)
	require.ErrorIs(t, err, ethereum.NotFound)
}
