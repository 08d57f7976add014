package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State of the indexing loop.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateFailed  State = "failed"
)

// Health is a snapshot of the indexer.
// @Description Indexer status
type Health struct {
	Status             State            `json:"status" example:"running"`
	IsRunning          bool             `json:"isRunning" example:"true"`
	LastProcessedBlock uint64           `json:"lastProcessedBlock" example:"19500000"`
	ContractAddresses  []common.Address `json:"contractAddresses" swaggertype:"array,string"`
	RunID              string           `json:"runId,omitempty" example:"9b2f0d3e-1c4a-4a53-9f59-2f1c3c9e6b10"`
	LastError          string           `json:"lastError,omitempty"`
	ConsistencyFaults  int              `json:"consistencyFaults" example:"0"`
	LastBatchAt        *time.Time       `json:"lastBatchAt,omitempty"`
	StartedAt          *time.Time       `json:"startedAt,omitempty"`
}
