package model

import "github.com/cockroachdb/errors"

// Rejection taxonomy. Everything except ErrInvariantViolation is reported to
// the publisher and processing continues.
var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrDuplicateOrder     = errors.New("duplicate order")
	ErrOrderNotFound      = errors.New("order not found")
	ErrCancelRejected     = errors.New("cancel rejected")
	ErrOutOfOrder         = errors.New("out of order sequence")
	ErrLateMessage        = errors.New("late message")
	ErrUnknownSource      = errors.New("unknown source")
	ErrSelfMatch          = errors.New("self match")
	ErrInvariantViolation = errors.New("book invariant violated")
)

// Fatal reports whether err must stop the engine.
func Fatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
