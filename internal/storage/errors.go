package storage

import "errors"

// Storage errors.
var (
	// ErrStoreClosed is returned when an operation runs against a
	// closed store.
	ErrStoreClosed = errors.New("storage: store closed")

	// ErrShortKey is returned when a key is too short to carry an
	// owner prefix.
	ErrShortKey = errors.New("storage: key shorter than owner prefix")

	// ErrInvalidDelta is returned when a commit contains a malformed
	// delta.
	ErrInvalidDelta = errors.New("storage: invalid delta")
)
