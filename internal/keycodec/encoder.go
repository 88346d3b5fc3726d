package keycodec

import (
	"encoding/binary"
)

// AppendUint64 appends v as 8 big-endian bytes, preserving unsigned order.
func AppendUint64(dst []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(dst, v)
}

// AppendUint64Desc appends v so that larger values sort first.
func AppendUint64Desc(dst []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(dst, ^v)
}

// AppendInt64 appends v with the sign bit flipped, so that negative values
// sort before positive ones under a bytewise comparison.
func AppendInt64(dst []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(v)^signBit)
}

// AppendInt64Desc appends v so that larger signed values sort first.
func AppendInt64Desc(dst []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(dst, ^(uint64(v) ^ signBit))
}

// AppendBytes appends b using the escaped encoding: every 0x00 payload byte
// becomes {0x00, 0xFF} and the value is closed by the {0x00, 0x01} sentinel.
// The result sorts exactly like the raw payload would, with the guarantee
// that no encoding is a prefix of another.
func AppendBytes(dst, b []byte) []byte {
	for _, c := range b {
		if c == EscapeByte {
			dst = append(dst, EscapeByte, EscapedZero)
		} else {
			dst = append(dst, c)
		}
	}
	return append(dst, EscapeByte, TerminatorByte)
}

// AppendBytesDesc appends b with every emitted byte complemented, so larger
// payloads sort first while remaining decodable.
func AppendBytesDesc(dst, b []byte) []byte {
	for _, c := range b {
		if c == EscapeByte {
			dst = append(dst, ^byte(EscapeByte), ^byte(EscapedZero))
		} else {
			dst = append(dst, ^c)
		}
	}
	return append(dst, ^byte(EscapeByte), ^byte(TerminatorByte))
}

// AppendString appends s using the escaped byte-string encoding.
func AppendString(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == EscapeByte {
			dst = append(dst, EscapeByte, EscapedZero)
		} else {
			dst = append(dst, s[i])
		}
	}
	return append(dst, EscapeByte, TerminatorByte)
}

// AppendStringDesc appends s using the descending byte-string encoding.
func AppendStringDesc(dst []byte, s string) []byte {
	return AppendBytesDesc(dst, []byte(s))
}

// EncodedBytesLen returns the exact encoded size of payload b, counting
// escape pairs and the terminator.
func EncodedBytesLen(b []byte) int {
	n := len(b) + 2
	for _, c := range b {
		if c == EscapeByte {
			n++
		}
	}
	return n
}

// Encoder builds a composite key from typed components.
// The zero value is usable; NewEncoder preallocates capacity.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with an optional initial capacity.
func NewEncoder(capacity int) *Encoder {
	if capacity <= 0 {
		capacity = 32
	}
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded key. The slice aliases the encoder's buffer and
// is invalidated by Reset or further Put calls.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the current encoded length.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Reset clears the encoder for reuse, keeping the allocated buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// PutUint64 appends an unsigned integer component.
func (e *Encoder) PutUint64(v uint64) {
	e.buf = AppendUint64(e.buf, v)
}

// PutUint64Desc appends a descending unsigned integer component.
func (e *Encoder) PutUint64Desc(v uint64) {
	e.buf = AppendUint64Desc(e.buf, v)
}

// PutInt64 appends a signed integer component.
func (e *Encoder) PutInt64(v int64) {
	e.buf = AppendInt64(e.buf, v)
}

// PutInt64Desc appends a descending signed integer component.
func (e *Encoder) PutInt64Desc(v int64) {
	e.buf = AppendInt64Desc(e.buf, v)
}

// PutBytes appends an escaped byte-string component.
func (e *Encoder) PutBytes(b []byte) {
	e.buf = AppendBytes(e.buf, b)
}

// PutBytesDesc appends a descending byte-string component.
func (e *Encoder) PutBytesDesc(b []byte) {
	e.buf = AppendBytesDesc(e.buf, b)
}

// PutString appends an escaped string component.
func (e *Encoder) PutString(s string) {
	e.buf = AppendString(e.buf, s)
}

// PutRaw appends raw bytes without escaping. The caller is responsible for
// keeping the component order-safe; this exists for fixed-width prefixes
// such as owner tags.
func (e *Encoder) PutRaw(b []byte) {
	e.buf = append(e.buf, b...)
}
