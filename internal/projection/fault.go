package projection

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
)

var (
	// ErrNotFound is returned when no DIDRecord matches.
	ErrNotFound = errors.New("did record not found")

	// ErrHistoryConflict is returned when an event position was already recorded from a different
	// block or transaction. The history no longer describes the chain and indexing must stop.
	ErrHistoryConflict = errors.New("event history conflict")
)

// FaultReason classifies a consistency fault.
type FaultReason string

const (
	// ReasonDanglingReference is an event for a DID that was never created.
	ReasonDanglingReference FaultReason = "dangling_reference"
	// ReasonDuplicateCreate is a DIDCreated for a DID that already exists.
	ReasonDuplicateCreate FaultReason = "duplicate_create"
	// ReasonRevoked is an event for a revoked DID.
	ReasonRevoked FaultReason = "revoked"
	// ReasonOutOfOrder is an event positioned before the record's last applied event.
	ReasonOutOfOrder FaultReason = "out_of_order"
)

// ConsistencyFault is an event that cannot be folded into the projection. It is recorded and
// skipped; it never fails a batch.
type ConsistencyFault struct {
	Reason   FaultReason
	DIDHash  common.Hash
	Kind     decoder.Kind
	Position decoder.Position
	Detail   string
}

func (f *ConsistencyFault) Error() string {
	return fmt.Sprintf("consistency fault %s: %s for %s at %s: %s",
		f.Reason, f.Kind, f.DIDHash.Hex(), f.Position, f.Detail)
}

// AsConsistencyFault unwraps err into a ConsistencyFault.
func AsConsistencyFault(err error) (*ConsistencyFault, bool) {
	var fault *ConsistencyFault
	ok := errors.As(err, &fault)
	return fault, ok
}

func newFault(reason FaultReason, ev decoder.Event, format string, args ...any) *ConsistencyFault {
	return &ConsistencyFault{
		Reason:   reason,
		DIDHash:  ev.Meta().DIDHash,
		Kind:     ev.Kind(),
		Position: ev.Position(),
		Detail:   fmt.Sprintf(format, args...),
	}
}
