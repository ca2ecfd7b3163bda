package types

import "errors"

var (
	// ErrInvalidOperation covers bad state transitions, ineligible assets
	// and other requests the pipeline refuses to act on.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned when a caller acts on a resource it
	// does not own.
	ErrUnauthorized = errors.New("unauthorized")
)
