package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates a state machine guard rejected the move.
	ErrInvalidTransition = errors.New("invalid state transition")
)
