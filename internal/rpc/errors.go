package rpc

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/DIDIndexor/internal/common"
)

var (
	tooManyResultsRe = regexp.MustCompile(`(?i)query returned more than \d+ results`)
	suggestedRangeRe = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// IsTooManyResultsError reports whether the provider rejected an eth_getLogs call because
// the range holds too many logs. The returned string is the error data (or message),
// which may carry a suggested block range.
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		return tooManyResultsRe.MatchString(errData), errData
	}

	if msg := err.Error(); tooManyResultsRe.MatchString(msg) {
		return true, msg
	}

	return false, ""
}

// ParseSuggestedBlockRange extracts the suggested range from a message like
// "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(msg string) (fromBlock, toBlock uint64, ok bool) {
	matches := suggestedRangeRe.FindStringSubmatch(msg)

	const expectedMatches = 3 // full match + 2 groups
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := common.ParseUint64orHex(&matches[1])
	to, err2 := common.ParseUint64orHex(&matches[2])
	if err1 != nil || err2 != nil || from > to {
		return 0, 0, false
	}

	return from, to, true
}
