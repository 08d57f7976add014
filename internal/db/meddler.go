package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("hash", hexMeddler[common.Hash]{parse: common.HexToHash, format: common.Hash.Hex})
	meddler.Register("address", hexMeddler[common.Address]{parse: common.HexToAddress, format: common.Address.Hex})
	meddler.Register("topics", TopicsMeddler{})
}

// hexMeddler stores a value (or a nullable pointer to one) as its hex string.
type hexMeddler[T any] struct {
	parse  func(string) T
	format func(T) string
}

func (hexMeddler[T]) PreRead(fieldAddr any) (any, error) {
	return new(sql.NullString), nil
}

func (m hexMeddler[T]) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **T:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		v := m.parse(ns.String)
		*ptr = &v
	case *T:
		var zero T
		*ptr = zero
		if ns.Valid {
			*ptr = m.parse(ns.String)
		}
	default:
		var zero T
		return fmt.Errorf("expected *%T or **%T, got %T", zero, zero, fieldAddr)
	}

	return nil
}

func (m hexMeddler[T]) PreWrite(field any) (any, error) {
	switch v := field.(type) {
	case *T:
		if v == nil {
			return nil, nil
		}
		return m.format(*v), nil
	case T:
		return m.format(v), nil
	default:
		var zero T
		return nil, fmt.Errorf("expected %T or *%T, got %T", zero, zero, field)
	}
}

// TopicsMeddler stores log topics as a comma separated list of hex hashes.
type TopicsMeddler struct{}

func (TopicsMeddler) PreRead(fieldAddr any) (any, error) {
	return new(string), nil
}

func (TopicsMeddler) PostRead(fieldAddr, scanTarget any) error {
	raw, ok := scanTarget.(*string)
	if !ok {
		return fmt.Errorf("expected *string, got %T", scanTarget)
	}
	ptr, ok := fieldAddr.(*[]common.Hash)
	if !ok {
		return fmt.Errorf("expected *[]common.Hash, got %T", fieldAddr)
	}

	*ptr = nil
	if *raw == "" {
		return nil
	}

	parts := strings.Split(*raw, ",")
	topics := make([]common.Hash, 0, len(parts))
	for _, part := range parts {
		topics = append(topics, common.HexToHash(part))
	}
	*ptr = topics

	return nil
}

func (TopicsMeddler) PreWrite(field any) (any, error) {
	topics, ok := field.([]common.Hash)
	if !ok {
		return nil, fmt.Errorf("expected []common.Hash, got %T", field)
	}

	parts := make([]string, len(topics))
	for i, topic := range topics {
		parts[i] = topic.Hex()
	}

	return strings.Join(parts, ","), nil
}
