// Package apperror holds the error taxonomy shared by the chat core.
// Only dataset failures are fatal; everything else is contained at the
// connection or pipeline boundary and reported to the affected caller.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling purposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindDatasetNotFound
	KindInvalidDatasetFormat
	KindUnclassifiedIntent
	KindUnknownHandler
	KindHandshakeRejected
	KindSessionPersistence
	KindHandlerExecution
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindDatasetNotFound:
		return "dataset_not_found"
	case KindInvalidDatasetFormat:
		return "invalid_dataset_format"
	case KindUnclassifiedIntent:
		return "unclassified_intent"
	case KindUnknownHandler:
		return "unknown_handler"
	case KindHandshakeRejected:
		return "handshake_rejected"
	case KindSessionPersistence:
		return "session_persistence"
	case KindHandlerExecution:
		return "handler_execution"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks. Any *Error of the same kind matches.
var (
	ErrDatasetNotFound      = &Error{Kind: KindDatasetNotFound, Message: "dataset not found"}
	ErrInvalidDatasetFormat = &Error{Kind: KindInvalidDatasetFormat, Message: "invalid dataset format"}
	ErrUnclassifiedIntent   = &Error{Kind: KindUnclassifiedIntent, Message: "no intent detected"}
	ErrUnknownHandler       = &Error{Kind: KindUnknownHandler, Message: "no handler registered"}
	ErrHandshakeRejected    = &Error{Kind: KindHandshakeRejected, Message: "handshake rejected"}
	ErrSessionPersistence   = &Error{Kind: KindSessionPersistence, Message: "session persistence failed"}
	ErrHandlerExecution     = &Error{Kind: KindHandlerExecution, Message: "handler execution failed"}
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
)

// Error wraps an underlying error with its kind and the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that errors.Is(err, ErrDatasetNotFound) works
// for every dataset-not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an *Error of the given kind around err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must abort initialization.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindDatasetNotFound, KindInvalidDatasetFormat:
		return true
	}
	return false
}
