package tx

import (
	"errors"
	"fmt"
)

// DefaultRetryAttempts is the attempt budget used by engine-level
// retry helpers.
const DefaultRetryAttempts = 10

// Retry runs fn until it succeeds, fails with a non-conflict error, or
// exhausts attempts. Only ErrTxConflict is retried; each attempt is
// expected to begin a fresh transaction, since a conflicted one is
// already rolled back. After the last attempt the conflict error is
// returned as is.
//
// A panic inside fn is recovered and returned as an error wrapping
// ErrTxPanic. Panics are never retried: fn may have observed an
// inconsistent application state, and retrying would mask the bug.
func Retry(attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = guard(fn)
		if err == nil || !errors.Is(err, ErrTxConflict) {
			return err
		}
	}
	return err
}

// guard runs fn, converting a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTxPanic, r)
		}
	}()
	return fn()
}
