package indexer

import "fmt"

// FetchError is a chain read that failed after the client exhausted its retries.
type FetchError struct {
	FromBlock uint64
	ToBlock   uint64
	Err       error
}

func (e *FetchError) Error() string {
	if e.FromBlock == 0 && e.ToBlock == 0 {
		return fmt.Sprintf("fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("fetch of blocks %d-%d failed: %v", e.FromBlock, e.ToBlock, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
