package chaintest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
)

// DIDHash derives the registry key of a DID string.
func DIDHash(did string) common.Hash {
	return crypto.Keccak256Hash([]byte(did))
}

func header(didHash common.Hash) decoder.Header {
	return decoder.Header{DIDHash: didHash}
}

func Created(did string, owner common.Address) *decoder.DIDCreated {
	return &decoder.DIDCreated{Header: header(DIDHash(did)), DID: did, Owner: owner}
}

func Updated(didHash common.Hash, document string) *decoder.DIDUpdated {
	return &decoder.DIDUpdated{Header: header(didHash), Document: document}
}

func Revoked(didHash common.Hash) *decoder.DIDRevoked {
	return &decoder.DIDRevoked{Header: header(didHash)}
}

func Transferred(didHash common.Hash, from, to common.Address) *decoder.DIDTransferred {
	return &decoder.DIDTransferred{Header: header(didHash), PreviousOwner: from, NewOwner: to}
}

func ControllerAdded(didHash common.Hash, controller common.Address) *decoder.ControllerAdded {
	return &decoder.ControllerAdded{Header: header(didHash), Controller: controller}
}

func ControllerRemoved(didHash common.Hash, controller common.Address) *decoder.ControllerRemoved {
	return &decoder.ControllerRemoved{Header: header(didHash), Controller: controller}
}

func DataStored(didHash common.Hash, dataType string, dataHash common.Hash) *decoder.DataStored {
	return &decoder.DataStored{Header: header(didHash), DataType: dataType, DataHash: dataHash}
}

func DataUpdated(didHash common.Hash, dataType string, dataHash common.Hash) *decoder.DataUpdated {
	return &decoder.DataUpdated{Header: header(didHash), DataType: dataType, DataHash: dataHash}
}

func DataDeleted(didHash common.Hash, dataType string) *decoder.DataDeleted {
	return &decoder.DataDeleted{Header: header(didHash), DataType: dataType}
}

func AccessGranted(didHash common.Hash, accessor common.Address, dataType string) *decoder.AccessGranted {
	return &decoder.AccessGranted{Header: header(didHash), Accessor: accessor, DataType: dataType}
}

func AccessRevoked(didHash common.Hash, accessor common.Address, dataType string) *decoder.AccessRevoked {
	return &decoder.AccessRevoked{Header: header(didHash), Accessor: accessor, DataType: dataType}
}

// ForeignLog is a log with a signature the registry decoder does not know.
func ForeignLog() types.Log {
	return types.Log{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))},
		Data:   common.LeftPadBytes([]byte{1}, 32),
	}
}

// MalformedLog is a DIDCreated log whose data cannot be decoded.
func MalformedLog(didHash common.Hash) types.Log {
	return types.Log{
		Topics: []common.Hash{decoder.TopicOf(decoder.KindDIDCreated), didHash, common.BytesToHash([]byte{1})},
		Data:   []byte{0xde, 0xad},
	}
}

// At stamps ev in place with a chain position, for tests that fold events without a chain.
func At[E decoder.Event](ev E, block uint64, logIndex uint) E {
	h := ev.Meta()
	h.BlockNumber = block
	h.LogIndex = logIndex
	h.BlockHash = crypto.Keccak256Hash(new(big.Int).SetUint64(block).Bytes())
	h.TxHash = crypto.Keccak256Hash(h.BlockHash.Bytes(), []byte{byte(logIndex)})
	h.Timestamp = genesisTime + block*12
	if h.Contract == (common.Address{}) {
		h.Contract = Registry
	}
	setHeader(ev, h)
	return ev
}

func setHeader(ev decoder.Event, h decoder.Header) {
	switch e := any(ev).(type) {
	case *decoder.DIDCreated:
		e.Header = h
	case *decoder.DIDUpdated:
		e.Header = h
	case *decoder.DIDRevoked:
		e.Header = h
	case *decoder.DIDTransferred:
		e.Header = h
	case *decoder.ControllerAdded:
		e.Header = h
	case *decoder.ControllerRemoved:
		e.Header = h
	case *decoder.DataStored:
		e.Header = h
	case *decoder.DataUpdated:
		e.Header = h
	case *decoder.DataDeleted:
		e.Header = h
	case *decoder.AccessGranted:
		e.Header = h
	case *decoder.AccessRevoked:
		e.Header = h
	}
}
