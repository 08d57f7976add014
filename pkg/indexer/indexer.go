package indexer

import "context"

// Controller is the control surface of the DID indexer exposed to the query API.
type Controller interface {
	// Start begins indexing. Starting a running indexer is a no-op returning its current health.
	// ctx bounds the lifetime of the indexing loop.
	Start(ctx context.Context) Health

	// Stop halts indexing at the next batch boundary and waits for it. Stopping an indexer that
	// is not running is a no-op.
	Stop() Health

	// Health reports the current state.
	Health() Health
}
