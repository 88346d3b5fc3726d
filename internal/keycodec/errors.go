package keycodec

import (
	"errors"
	"fmt"
)

// Decoder errors.
var (
	// ErrUnexpectedEnd is returned when a component is truncated.
	ErrUnexpectedEnd = errors.New("keycodec: unexpected end of key")

	// ErrInvalidEscape is returned when an escape pair carries an unknown
	// second byte.
	ErrInvalidEscape = errors.New("keycodec: invalid escape sequence")

	// ErrUnterminated is returned when a byte-string component has no
	// terminator sentinel before the key ends.
	ErrUnterminated = errors.New("keycodec: unterminated byte string")
)

// DecodeError wraps a decoder error with the byte offset where it occurred.
type DecodeError struct {
	Offset int   // Byte offset into the key
	Err    error // Underlying error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("keycodec: decode error at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
