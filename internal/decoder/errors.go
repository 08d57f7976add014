package decoder

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorKind classifies decode failures.
type ErrorKind int

const (
	// UnknownEvent is a log whose signature is not a DID registry event. It is skipped.
	UnknownEvent ErrorKind = iota + 1
	// Malformed is a DID registry log whose fields cannot be decoded. It fails the batch.
	Malformed
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownEvent:
		return "unknown_event"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// DecodeError is returned by Decode.
type DecodeError struct {
	Kind     ErrorKind
	Position Position
	TxHash   common.Hash
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s log at %s (tx %s): %s", e.Kind, e.Position, e.TxHash.Hex(), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsUnknownEvent reports whether err is a DecodeError of kind UnknownEvent.
func IsUnknownEvent(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr) && decodeErr.Kind == UnknownEvent
}

// IsMalformed reports whether err is a DecodeError of kind Malformed.
func IsMalformed(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr) && decodeErr.Kind == Malformed
}
