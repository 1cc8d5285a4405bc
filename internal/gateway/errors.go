package gateway

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; the concrete *Error carries details.
var (
	// ErrUnauthenticated means the credential is missing, expired or refused.
	// Callers treat it as fatal to the session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnavailable covers transport failures, timeouts, an open circuit
	// breaker and non-2xx responses without a structured body.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrRejected means the backend declined the request and said why.
	ErrRejected = errors.New("rejected by backend")
)

type Error struct {
	Op      string
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the backend's explanation for a rejection, or a generic
// text suitable for showing to a shopper.
func Message(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "please sign in again"
	case errors.Is(err, ErrUnavailable):
		return "the store is temporarily unavailable, please retry"
	case errors.Is(err, ErrRejected):
		return "the request was declined"
	default:
		return "unexpected error"
	}
}
