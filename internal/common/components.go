package common

const (
	ComponentIndexer         = "indexer"
	ComponentChainClient     = "chain-client"
	ComponentLogFetcher      = "log-fetcher"
	ComponentReorgDetector   = "reorg-detector"
	ComponentProjectionStore = "projection-store"
	ComponentCheckpoint      = "checkpoint"
	ComponentMaintenance     = "maintenance"
	ComponentAPI             = "api"
)

var AllComponents = map[string]struct{}{
	ComponentIndexer:         {},
	ComponentChainClient:     {},
	ComponentLogFetcher:      {},
	ComponentReorgDetector:   {},
	ComponentProjectionStore: {},
	ComponentCheckpoint:      {},
	ComponentMaintenance:     {},
	ComponentAPI:             {},
}
