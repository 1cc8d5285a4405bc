package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks requests rejected locally; they never reach the backend.
	ErrValidation = errors.New("invalid cart request")
	ErrClosed     = errors.New("cart engine is closed")
	// ErrReset is returned to operations that were in flight when the session
	// was reset (logout); their results were discarded.
	ErrReset = errors.New("cart session was reset")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
