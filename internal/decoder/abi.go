package decoder

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// registryABI is the event interface of the DID registry contract.
const registryABI = `[
  {"type":"event","name":"DIDCreated","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"did","type":"string","indexed":false},
    {"name":"owner","type":"address","indexed":true}]},
  {"type":"event","name":"DIDUpdated","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"document","type":"string","indexed":false}]},
  {"type":"event","name":"DIDRevoked","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true}]},
  {"type":"event","name":"DIDTransferred","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"previousOwner","type":"address","indexed":true},
    {"name":"newOwner","type":"address","indexed":true}]},
  {"type":"event","name":"ControllerAdded","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"controller","type":"address","indexed":true}]},
  {"type":"event","name":"ControllerRemoved","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"controller","type":"address","indexed":true}]},
  {"type":"event","name":"DataStored","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"dataType","type":"string","indexed":false},
    {"name":"dataHash","type":"bytes32","indexed":false}]},
  {"type":"event","name":"DataUpdated","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"dataType","type":"string","indexed":false},
    {"name":"dataHash","type":"bytes32","indexed":false}]},
  {"type":"event","name":"DataDeleted","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"dataType","type":"string","indexed":false}]},
  {"type":"event","name":"AccessGranted","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"accessor","type":"address","indexed":true},
    {"name":"dataType","type":"string","indexed":false}]},
  {"type":"event","name":"AccessRevoked","anonymous":false,"inputs":[
    {"name":"didHash","type":"bytes32","indexed":true},
    {"name":"accessor","type":"address","indexed":true},
    {"name":"dataType","type":"string","indexed":false}]}
]`

var (
	contractABI = mustParseABI(registryABI)
	byTopic     = indexByTopic(contractABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid DID registry ABI: %v", err))
	}

	for _, kind := range AllKinds {
		if _, ok := parsed.Events[string(kind)]; !ok {
			panic(fmt.Sprintf("DID registry ABI is missing event %s", kind))
		}
	}

	return parsed
}

func indexByTopic(parsed abi.ABI) map[common.Hash]Kind {
	index := make(map[common.Hash]Kind, len(parsed.Events))
	for name, event := range parsed.Events {
		index[event.ID] = Kind(name)
	}
	return index
}

// Signature describes one decodable event.
type Signature struct {
	Kind      Kind        `json:"kind"`
	Signature string      `json:"signature"`
	Topic     common.Hash `json:"topic"`
}

// Signatures returns the canonical signature and topic of every event kind, in the order of AllKinds.
func Signatures() []Signature {
	signatures := make([]Signature, 0, len(AllKinds))
	for _, kind := range AllKinds {
		event := contractABI.Events[string(kind)]
		signatures = append(signatures, Signature{
			Kind:      kind,
			Signature: event.Sig,
			Topic:     event.ID,
		})
	}
	return signatures
}

// Topics returns the topic0 filter matching every event kind.
func Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(AllKinds))
	for _, signature := range Signatures() {
		topics = append(topics, signature.Topic)
	}
	return topics
}

// TopicOf returns topic0 of the given kind.
func TopicOf(kind Kind) common.Hash {
	return contractABI.Events[string(kind)].ID
}
