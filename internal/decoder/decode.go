package decoder

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
)

var addressPadding = make([]byte, common.HashLength-common.AddressLength)

// Decode converts a raw log into a typed event.
// Logs that are not DID registry events yield a DecodeError of kind UnknownEvent;
// registry logs with an invalid encoding yield a DecodeError of kind Malformed.
func Decode(raw itypes.RawLog) (Event, error) {
	position := Position{BlockNumber: raw.BlockNumber, LogIndex: raw.Index}
	fail := func(kind ErrorKind, reason string, err error) (Event, error) {
		return nil, &DecodeError{Kind: kind, Position: position, TxHash: raw.TxHash, Reason: reason, Err: err}
	}

	if len(raw.Topics) == 0 {
		return fail(UnknownEvent, "log has no topics", nil)
	}

	kind, ok := byTopic[raw.Topics[0]]
	if !ok {
		return fail(UnknownEvent, fmt.Sprintf("unrecognized signature %s", raw.Topics[0].Hex()), nil)
	}

	event := contractABI.Events[string(kind)]
	if want := countIndexed(event.Inputs) + 1; len(raw.Topics) != want {
		return fail(Malformed, fmt.Sprintf("%s expects %d topics, got %d", kind, want, len(raw.Topics)), nil)
	}

	nonIndexed := event.Inputs.NonIndexed()
	var values []any
	if len(nonIndexed) == 0 {
		if len(raw.Data) != 0 {
			return fail(Malformed, fmt.Sprintf("%s carries no data, got %d bytes", kind, len(raw.Data)), nil)
		}
	} else {
		var err error
		if values, err = nonIndexed.Unpack(raw.Data); err != nil {
			return fail(Malformed, fmt.Sprintf("cannot unpack %s data", kind), err)
		}
	}

	f := &fields{topics: raw.Topics[2:], values: values}
	header := Header{
		DIDHash:     raw.Topics[1],
		Contract:    raw.Address,
		BlockNumber: raw.BlockNumber,
		BlockHash:   raw.BlockHash,
		TxHash:      raw.TxHash,
		LogIndex:    raw.Index,
		Timestamp:   raw.Timestamp,
	}

	var ev Event
	switch kind {
	case KindDIDCreated:
		ev = &DIDCreated{Header: header, DID: f.str(0), Owner: f.address(0)}
	case KindDIDUpdated:
		ev = &DIDUpdated{Header: header, Document: f.str(0)}
	case KindDIDRevoked:
		ev = &DIDRevoked{Header: header}
	case KindDIDTransferred:
		ev = &DIDTransferred{Header: header, PreviousOwner: f.address(0), NewOwner: f.address(1)}
	case KindControllerAdded:
		ev = &ControllerAdded{Header: header, Controller: f.address(0)}
	case KindControllerRemoved:
		ev = &ControllerRemoved{Header: header, Controller: f.address(0)}
	case KindDataStored:
		ev = &DataStored{Header: header, DataType: f.str(0), DataHash: f.bytes32(1)}
	case KindDataUpdated:
		ev = &DataUpdated{Header: header, DataType: f.str(0), DataHash: f.bytes32(1)}
	case KindDataDeleted:
		ev = &DataDeleted{Header: header, DataType: f.str(0)}
	case KindAccessGranted:
		ev = &AccessGranted{Header: header, Accessor: f.address(0), DataType: f.str(0)}
	case KindAccessRevoked:
		ev = &AccessRevoked{Header: header, Accessor: f.address(0), DataType: f.str(0)}
	default:
		return fail(UnknownEvent, fmt.Sprintf("no decoder for %s", kind), nil)
	}

	if f.err != nil {
		return fail(Malformed, fmt.Sprintf("invalid %s field", kind), f.err)
	}

	return ev, nil
}

// Encode produces the topics and data a registry contract emits for ev.
func Encode(ev Event) ([]common.Hash, []byte, error) {
	h := ev.Meta()

	var (
		topics []common.Hash
		values []any
	)

	switch e := ev.(type) {
	case *DIDCreated:
		topics, values = []common.Hash{addressTopic(e.Owner)}, []any{e.DID}
	case *DIDUpdated:
		values = []any{e.Document}
	case *DIDRevoked:
	case *DIDTransferred:
		topics = []common.Hash{addressTopic(e.PreviousOwner), addressTopic(e.NewOwner)}
	case *ControllerAdded:
		topics = []common.Hash{addressTopic(e.Controller)}
	case *ControllerRemoved:
		topics = []common.Hash{addressTopic(e.Controller)}
	case *DataStored:
		values = []any{e.DataType, [32]byte(e.DataHash)}
	case *DataUpdated:
		values = []any{e.DataType, [32]byte(e.DataHash)}
	case *DataDeleted:
		values = []any{e.DataType}
	case *AccessGranted:
		topics, values = []common.Hash{addressTopic(e.Accessor)}, []any{e.DataType}
	case *AccessRevoked:
		topics, values = []common.Hash{addressTopic(e.Accessor)}, []any{e.DataType}
	default:
		return nil, nil, fmt.Errorf("cannot encode %T", ev)
	}

	event := contractABI.Events[string(ev.Kind())]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack %s: %w", ev.Kind(), err)
	}

	return append([]common.Hash{event.ID, h.DIDHash}, topics...), data, nil
}

// ToLog builds the chain log that would have produced ev.
func ToLog(ev Event) (types.Log, error) {
	topics, data, err := Encode(ev)
	if err != nil {
		return types.Log{}, err
	}

	h := ev.Meta()
	return types.Log{
		Address:     h.Contract,
		Topics:      topics,
		Data:        data,
		BlockNumber: h.BlockNumber,
		TxHash:      h.TxHash,
		BlockHash:   h.BlockHash,
		Index:       h.LogIndex,
	}, nil
}

func countIndexed(args abi.Arguments) int {
	n := 0
	for _, arg := range args {
		if arg.Indexed {
			n++
		}
	}
	return n
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// fields reads indexed topics (after didHash) and unpacked data values,
// remembering the first failure.
type fields struct {
	topics []common.Hash
	values []any
	err    error
}

func (f *fields) address(i int) common.Address {
	if f.err != nil {
		return common.Address{}
	}
	if i >= len(f.topics) {
		f.err = fmt.Errorf("missing topic %d", i+2)
		return common.Address{}
	}

	topic := f.topics[i]
	if !bytes.Equal(topic[:len(addressPadding)], addressPadding) {
		f.err = fmt.Errorf("topic %s is not a left padded address", topic.Hex())
		return common.Address{}
	}

	return common.BytesToAddress(topic[len(addressPadding):])
}

func (f *fields) str(i int) string {
	if f.err != nil {
		return ""
	}
	if i >= len(f.values) {
		f.err = fmt.Errorf("missing value %d", i)
		return ""
	}

	s, ok := f.values[i].(string)
	if !ok {
		f.err = fmt.Errorf("value %d is %T, expected string", i, f.values[i])
	}
	return s
}

func (f *fields) bytes32(i int) common.Hash {
	if f.err != nil {
		return common.Hash{}
	}
	if i >= len(f.values) {
		f.err = fmt.Errorf("missing value %d", i)
		return common.Hash{}
	}

	b, ok := f.values[i].([32]byte)
	if !ok {
		f.err = fmt.Errorf("value %d is %T, expected bytes32", i, f.values[i])
	}
	return common.Hash(b)
}
