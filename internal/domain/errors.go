package domain

import "errors"

var (
	ErrInvalidSnapshot = errors.New("invalid cart snapshot")
	ErrTotalsMismatch  = errors.New("cart totals do not add up")
)
