package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrDeliveryTimeout closes a session whose outbound queue is saturated.
	ErrDeliveryTimeout = errors.New("delivery timeout")
	ErrSessionClosed   = errors.New("session closed")
	ErrNotJoined       = errors.New("not joined to a room")
	ErrCacheMiss       = errors.New("cache miss")
)

// Error codes sent to clients in error events.
const (
	CodeValidation  = "validation_error"
	CodePersistence = "persistence_error"
	CodeNotJoined   = "not_joined"
	CodeBadRequest  = "bad_request"
	CodeInternal    = "internal_error"
)

// ValidationError reports bad client input. It is only ever sent back to
// the connection that caused it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a storage failure. A send that fails this way was
// not broadcast and may be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Code maps an error to the code reported to clients.
func Code(err error) string {
	var verr *ValidationError
	var perr *PersistenceError
	switch {
	case errors.As(err, &verr):
		return CodeValidation
	case errors.As(err, &perr):
		return CodePersistence
	case errors.Is(err, ErrNotJoined):
		return CodeNotJoined
	default:
		return CodeInternal
	}
}
