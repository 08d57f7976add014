package projection

import (
	"fmt"

	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
)

// Apply folds ev into rec and returns the resulting record. rec may be nil when the DID does
// not exist yet. rec is never modified.
//
// An event at the record's last applied position is a replay and returns rec unchanged.
// Events that cannot be folded return a *ConsistencyFault.
func Apply(rec *DIDRecord, ev decoder.Event) (*DIDRecord, error) {
	if rec == nil {
		created, ok := ev.(*decoder.DIDCreated)
		if !ok {
			return nil, newFault(ReasonDanglingReference, ev, "no DIDCreated seen for this DID")
		}
		return newRecord(created), nil
	}

	switch ev.Position().Compare(rec.LastApplied()) {
	case 0:
		return rec, nil
	case -1:
		return nil, newFault(ReasonOutOfOrder, ev, "record already at %s", rec.LastApplied())
	}

	if _, ok := ev.(*decoder.DIDCreated); ok {
		return nil, newFault(ReasonDuplicateCreate, ev, "created at block %d", rec.CreatedBlock)
	}
	if !rec.IsActive {
		return nil, newFault(ReasonRevoked, ev, "revoked at %s", rec.LastApplied())
	}

	next := rec.Clone()

	switch e := ev.(type) {
	case *decoder.DIDUpdated:
		next.Document = e.Document
	case *decoder.DIDRevoked:
		next.IsActive = false
	case *decoder.DIDTransferred:
		next.Owner = e.NewOwner
	case *decoder.ControllerAdded:
		next.Controllers[e.Controller] = struct{}{}
	case *decoder.ControllerRemoved:
		delete(next.Controllers, e.Controller)
	case *decoder.DataStored:
		next.DataPointers[e.DataType] = e.DataHash
	case *decoder.DataUpdated:
		next.DataPointers[e.DataType] = e.DataHash
	case *decoder.DataDeleted:
		delete(next.DataPointers, e.DataType)
	case *decoder.AccessGranted:
		next.AccessGrants[AccessKey{Accessor: e.Accessor, DataType: e.DataType}] = struct{}{}
	case *decoder.AccessRevoked:
		delete(next.AccessGrants, AccessKey{Accessor: e.Accessor, DataType: e.DataType})
	default:
		return nil, fmt.Errorf("unhandled event kind %s", ev.Kind())
	}

	h := ev.Meta()
	next.LastAppliedBlock = h.BlockNumber
	next.LastAppliedLogIndex = h.LogIndex
	next.LastAppliedTimestamp = h.Timestamp

	return next, nil
}
