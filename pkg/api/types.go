package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/DIDIndexor/internal/projection"
	"github.com/goran-ethernal/DIDIndexor/pkg/indexer"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// PaginationResult contains pagination metadata.
type PaginationResult struct {
	Total   int  `json:"total" example:"42"`
	Limit   int  `json:"limit" example:"100"`
	Offset  int  `json:"offset" example:"0"`
	HasMore bool `json:"hasMore" example:"false"`
}

func newPagination(total, limit, offset, returned int) PaginationResult {
	return PaginationResult{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+returned < total,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error" example:"Bad Request"`
	Message string `json:"message,omitempty" example:"invalid limit: must be between 1 and 1000"`
	Code    int    `json:"code" example:"400"`
}

// HealthResponse is the indexer health plus the time it was taken.
type HealthResponse struct {
	indexer.Health
	Timestamp time.Time `json:"timestamp"`
}

// DIDListResponse is a page of DID records.
type DIDListResponse struct {
	Records    []*projection.DIDRecord `json:"records"`
	Pagination PaginationResult        `json:"pagination"`
}

// PointersResponse lists the off-chain data pointers and access grants of one DID.
type PointersResponse struct {
	DIDHash      common.Hash            `json:"didHash" swaggertype:"string"`
	IsActive     bool                   `json:"isActive"`
	DataPointers map[string]common.Hash `json:"dataPointers" swaggertype:"object,string"`
	AccessGrants []projection.AccessKey `json:"accessGrants"`
}

// EventResponse is a page of event history.
type EventResponse struct {
	Events     []*projection.EventRecord `json:"events"`
	Pagination PaginationResult          `json:"pagination"`
}

// FaultResponse is a page of consistency faults.
type FaultResponse struct {
	Faults     []*projection.Fault `json:"faults"`
	Pagination PaginationResult    `json:"pagination"`
}

// StatsResponse combines projection statistics with the indexer progress.
type StatsResponse struct {
	*projection.Stats
	LastProcessedBlock uint64        `json:"lastProcessedBlock"`
	Status             indexer.State `json:"status"`
}
