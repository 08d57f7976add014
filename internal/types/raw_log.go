package types

import "github.com/ethereum/go-ethereum/core/types"

// RawLog is a chain log together with the timestamp of the block that emitted it.
type RawLog struct {
	types.Log

	// Timestamp is the block time in unix seconds.
	Timestamp uint64
}
