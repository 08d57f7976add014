package types

import (
	"fmt"
	"strings"
)

// BlockFinality selects which block tag bounds the range the indexer may process.
type BlockFinality string

const (
	// FinalityFinalized only processes blocks the consensus layer finalized.
	FinalityFinalized BlockFinality = "finalized"

	// FinalitySafe processes blocks up to the safe head.
	FinalitySafe BlockFinality = "safe"

	// FinalityLatest processes blocks up to the head minus the configured lag.
	FinalityLatest BlockFinality = "latest"
)

func (f BlockFinality) String() string {
	return string(f)
}

// IsValid reports whether f is a known finality mode.
func (f BlockFinality) IsValid() bool {
	switch f {
	case FinalityFinalized, FinalitySafe, FinalityLatest:
		return true
	default:
		return false
	}
}

// ParseBlockFinality parses a finality mode, ignoring case and surrounding spaces.
func ParseBlockFinality(s string) (BlockFinality, error) {
	f := BlockFinality(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid block finality: %q (must be one of: finalized, safe, latest)", s)
	}
	return f, nil
}
