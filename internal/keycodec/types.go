package keycodec

// Escape and sentinel bytes for the byte-string encoding.
//
// A payload byte 0x00 is written as the pair {0x00, 0xFF}; the string is
// terminated by the pair {0x00, 0x01}. The terminator compares below every
// escaped pair, so a string always sorts before any of its extensions, and
// the pair encoding keeps the terminator unreachable from payload bytes.
const (
	// EscapeByte introduces both the escape pair and the terminator pair.
	EscapeByte = 0x00
	// EscapedZero is the second byte of an escaped 0x00 payload byte.
	EscapedZero = 0xFF
	// TerminatorByte is the second byte of the string terminator pair.
	TerminatorByte = 0x01
)

// Encoded sizes for the fixed-width components.
const (
	// Uint64Size is the encoded size of an unsigned 64-bit integer.
	Uint64Size = 8
	// Int64Size is the encoded size of a signed 64-bit integer.
	Int64Size = 8
)

// signBit is flipped on signed integers so negative values sort first.
const signBit = uint64(1) << 63
