package decoder

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind names one of the DID registry events.
type Kind string

const (
	KindDIDCreated        Kind = "DIDCreated"
	KindDIDUpdated        Kind = "DIDUpdated"
	KindDIDRevoked        Kind = "DIDRevoked"
	KindDIDTransferred    Kind = "DIDTransferred"
	KindControllerAdded   Kind = "ControllerAdded"
	KindControllerRemoved Kind = "ControllerRemoved"
	KindDataStored        Kind = "DataStored"
	KindDataUpdated       Kind = "DataUpdated"
	KindDataDeleted       Kind = "DataDeleted"
	KindAccessGranted     Kind = "AccessGranted"
	KindAccessRevoked     Kind = "AccessRevoked"
)

// AllKinds lists every event kind the decoder produces.
var AllKinds = []Kind{
	KindDIDCreated,
	KindDIDUpdated,
	KindDIDRevoked,
	KindDIDTransferred,
	KindControllerAdded,
	KindControllerRemoved,
	KindDataStored,
	KindDataUpdated,
	KindDataDeleted,
	KindAccessGranted,
	KindAccessRevoked,
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind resolves an event name case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, kind := range AllKinds {
		if strings.EqualFold(string(kind), strings.TrimSpace(s)) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown event type: %q", s)
}

// Position orders events on chain.
type Position struct {
	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint   `json:"logIndex"`
}

// Compare returns -1, 0 or 1 when p is before, equal to or after o.
func (p Position) Compare(o Position) int {
	switch {
	case p.BlockNumber < o.BlockNumber:
		return -1
	case p.BlockNumber > o.BlockNumber:
		return 1
	case p.LogIndex < o.LogIndex:
		return -1
	case p.LogIndex > o.LogIndex:
		return 1
	default:
		return 0
	}
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.BlockNumber, p.LogIndex)
}

// Header carries the fields shared by every event: the targeted DID and the
// provenance of the log it was decoded from.
type Header struct {
	DIDHash     common.Hash
	Contract    common.Address
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	LogIndex    uint
	Timestamp   uint64
}

// Meta returns the shared event fields.
func (h Header) Meta() Header {
	return h
}

// Position returns where the event sits on chain.
func (h Header) Position() Position {
	return Position{BlockNumber: h.BlockNumber, LogIndex: h.LogIndex}
}

func (Header) sealed() {}

// Event is one decoded DID registry event. The set of implementations is closed:
// only the types in this package satisfy it.
type Event interface {
	Kind() Kind
	Meta() Header
	Position() Position
	sealed()
}

type DIDCreated struct {
	Header
	DID   string
	Owner common.Address
}

type DIDUpdated struct {
	Header
	Document string
}

type DIDRevoked struct {
	Header
}

type DIDTransferred struct {
	Header
	PreviousOwner common.Address
	NewOwner      common.Address
}

type ControllerAdded struct {
	Header
	Controller common.Address
}

type ControllerRemoved struct {
	Header
	Controller common.Address
}

type DataStored struct {
	Header
	DataType string
	DataHash common.Hash
}

type DataUpdated struct {
	Header
	DataType string
	DataHash common.Hash
}

type DataDeleted struct {
	Header
	DataType string
}

type AccessGranted struct {
	Header
	Accessor common.Address
	DataType string
}

type AccessRevoked struct {
	Header
	Accessor common.Address
	DataType string
}

func (*DIDCreated) Kind() Kind        { return KindDIDCreated }
func (*DIDUpdated) Kind() Kind        { return KindDIDUpdated }
func (*DIDRevoked) Kind() Kind        { return KindDIDRevoked }
func (*DIDTransferred) Kind() Kind    { return KindDIDTransferred }
func (*ControllerAdded) Kind() Kind   { return KindControllerAdded }
func (*ControllerRemoved) Kind() Kind { return KindControllerRemoved }
func (*DataStored) Kind() Kind        { return KindDataStored }
func (*DataUpdated) Kind() Kind       { return KindDataUpdated }
func (*DataDeleted) Kind() Kind       { return KindDataDeleted }
func (*AccessGranted) Kind() Kind     { return KindAccessGranted }
func (*AccessRevoked) Kind() Kind     { return KindAccessRevoked }
