package projection

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
)

// AccessKey identifies one access grant. Presence in DIDRecord.AccessGrants means granted.
type AccessKey struct {
	Accessor common.Address `json:"accessor"`
	DataType string         `json:"dataType"`
}

// DIDRecord is the mirrored current state of one DID.
type DIDRecord struct {
	DIDHash      common.Hash
	DID          string
	Owner        common.Address
	Document     string
	Controllers  map[common.Address]struct{}
	IsActive     bool
	DataPointers map[string]common.Hash
	AccessGrants map[AccessKey]struct{}

	CreatedBlock         uint64
	LastAppliedBlock     uint64
	LastAppliedLogIndex  uint
	LastAppliedTimestamp uint64
}

func newRecord(ev *decoder.DIDCreated) *DIDRecord {
	h := ev.Meta()
	return &DIDRecord{
		DIDHash:              h.DIDHash,
		DID:                  ev.DID,
		Owner:                ev.Owner,
		Controllers:          make(map[common.Address]struct{}),
		IsActive:             true,
		DataPointers:         make(map[string]common.Hash),
		AccessGrants:         make(map[AccessKey]struct{}),
		CreatedBlock:         h.BlockNumber,
		LastAppliedBlock:     h.BlockNumber,
		LastAppliedLogIndex:  h.LogIndex,
		LastAppliedTimestamp: h.Timestamp,
	}
}

// LastApplied is the chain position of the most recent event folded into the record.
func (r *DIDRecord) LastApplied() decoder.Position {
	return decoder.Position{BlockNumber: r.LastAppliedBlock, LogIndex: r.LastAppliedLogIndex}
}

// Clone returns a deep copy.
func (r *DIDRecord) Clone() *DIDRecord {
	c := *r
	c.Controllers = maps.Clone(r.Controllers)
	c.DataPointers = maps.Clone(r.DataPointers)
	c.AccessGrants = maps.Clone(r.AccessGrants)

	if c.Controllers == nil {
		c.Controllers = make(map[common.Address]struct{})
	}
	if c.DataPointers == nil {
		c.DataPointers = make(map[string]common.Hash)
	}
	if c.AccessGrants == nil {
		c.AccessGrants = make(map[AccessKey]struct{})
	}

	return &c
}

// HasGrant reports whether accessor may read dataType.
func (r *DIDRecord) HasGrant(accessor common.Address, dataType string) bool {
	_, ok := r.AccessGrants[AccessKey{Accessor: accessor, DataType: dataType}]
	return ok
}

// ControllerList returns the controllers in address order.
func (r *DIDRecord) ControllerList() []common.Address {
	out := slices.Collect(maps.Keys(r.Controllers))
	slices.SortFunc(out, func(a, b common.Address) int { return bytes.Compare(a[:], b[:]) })
	return out
}

// GrantList returns the access grants ordered by accessor then data type.
func (r *DIDRecord) GrantList() []AccessKey {
	out := slices.Collect(maps.Keys(r.AccessGrants))
	slices.SortFunc(out, func(a, b AccessKey) int {
		if c := bytes.Compare(a.Accessor[:], b.Accessor[:]); c != 0 {
			return c
		}
		return strings.Compare(a.DataType, b.DataType)
	})
	return out
}

type recordJSON struct {
	DIDHash              common.Hash            `json:"didHash"`
	DID                  string                 `json:"did"`
	Owner                common.Address         `json:"owner"`
	Document             string                 `json:"document"`
	Controllers          []common.Address       `json:"controllers"`
	IsActive             bool                   `json:"isActive"`
	DataPointers         map[string]common.Hash `json:"dataPointers"`
	AccessGrants         []AccessKey            `json:"accessGrants"`
	CreatedBlock         uint64                 `json:"createdBlock"`
	LastAppliedBlock     uint64                 `json:"lastAppliedBlock"`
	LastAppliedLogIndex  uint                   `json:"lastAppliedLogIndex"`
	LastAppliedTimestamp uint64                 `json:"lastAppliedTimestamp"`
}

// MarshalJSON renders sets as sorted lists.
func (r *DIDRecord) MarshalJSON() ([]byte, error) {
	pointers := r.DataPointers
	if pointers == nil {
		pointers = map[string]common.Hash{}
	}

	return json.Marshal(recordJSON{
		DIDHash:              r.DIDHash,
		DID:                  r.DID,
		Owner:                r.Owner,
		Document:             r.Document,
		Controllers:          append([]common.Address{}, r.ControllerList()...),
		IsActive:             r.IsActive,
		DataPointers:         pointers,
		AccessGrants:         append([]AccessKey{}, r.GrantList()...),
		CreatedBlock:         r.CreatedBlock,
		LastAppliedBlock:     r.LastAppliedBlock,
		LastAppliedLogIndex:  r.LastAppliedLogIndex,
		LastAppliedTimestamp: r.LastAppliedTimestamp,
	})
}
