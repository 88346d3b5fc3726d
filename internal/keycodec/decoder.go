package keycodec

import (
	"encoding/binary"
)

// DecodeUint64 reads an unsigned integer from the front of buf and returns
// the value and the remaining bytes.
func DecodeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < Uint64Size {
		return 0, nil, ErrUnexpectedEnd
	}
	return binary.BigEndian.Uint64(buf), buf[Uint64Size:], nil
}

// DecodeUint64Desc reads a descending-encoded unsigned integer.
func DecodeUint64Desc(buf []byte) (uint64, []byte, error) {
	v, rest, err := DecodeUint64(buf)
	if err != nil {
		return 0, nil, err
	}
	return ^v, rest, nil
}

// DecodeInt64 reads a signed integer from the front of buf.
func DecodeInt64(buf []byte) (int64, []byte, error) {
	if len(buf) < Int64Size {
		return 0, nil, ErrUnexpectedEnd
	}
	u := binary.BigEndian.Uint64(buf)
	return int64(u ^ signBit), buf[Int64Size:], nil
}

// DecodeInt64Desc reads a descending-encoded signed integer.
func DecodeInt64Desc(buf []byte) (int64, []byte, error) {
	if len(buf) < Int64Size {
		return 0, nil, ErrUnexpectedEnd
	}
	u := ^binary.BigEndian.Uint64(buf)
	return int64(u ^ signBit), buf[Int64Size:], nil
}

// DecodeBytes reads an escaped byte-string component from the front of buf.
// The returned payload is freshly allocated and does not alias buf.
func DecodeBytes(buf []byte) ([]byte, []byte, error) {
	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); {
		c := buf[i]
		if c != EscapeByte {
			out = append(out, c)
			i++
			continue
		}
		if i+1 >= len(buf) {
			return nil, nil, &DecodeError{Offset: i, Err: ErrUnexpectedEnd}
		}
		switch buf[i+1] {
		case TerminatorByte:
			return out, buf[i+2:], nil
		case EscapedZero:
			out = append(out, 0x00)
			i += 2
		default:
			return nil, nil, &DecodeError{Offset: i, Err: ErrInvalidEscape}
		}
	}
	return nil, nil, ErrUnterminated
}

// DecodeBytesDesc reads a descending-encoded byte-string component.
func DecodeBytesDesc(buf []byte) ([]byte, []byte, error) {
	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); {
		c := ^buf[i]
		if c != EscapeByte {
			out = append(out, c)
			i++
			continue
		}
		if i+1 >= len(buf) {
			return nil, nil, &DecodeError{Offset: i, Err: ErrUnexpectedEnd}
		}
		switch ^buf[i+1] {
		case TerminatorByte:
			return out, buf[i+2:], nil
		case EscapedZero:
			out = append(out, 0x00)
			i += 2
		default:
			return nil, nil, &DecodeError{Offset: i, Err: ErrInvalidEscape}
		}
	}
	return nil, nil, ErrUnterminated
}

// DecodeString reads an escaped string component from the front of buf.
func DecodeString(buf []byte) (string, []byte, error) {
	b, rest, err := DecodeBytes(buf)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

// Decoder consumes the components of a composite key in order.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder creates a decoder over an encoded key.
func NewDecoder(key []byte) *Decoder {
	return &Decoder{buf: key}
}

// Remaining returns the number of unconsumed bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Offset returns the current decode position.
func (d *Decoder) Offset() int {
	return d.off
}

// Uint64 consumes an unsigned integer component.
func (d *Decoder) Uint64() (uint64, error) {
	v, rest, err := DecodeUint64(d.buf[d.off:])
	if err != nil {
		return 0, &DecodeError{Offset: d.off, Err: err}
	}
	d.off = len(d.buf) - len(rest)
	return v, nil
}

// Uint64Desc consumes a descending unsigned integer component.
func (d *Decoder) Uint64Desc() (uint64, error) {
	v, rest, err := DecodeUint64Desc(d.buf[d.off:])
	if err != nil {
		return 0, &DecodeError{Offset: d.off, Err: err}
	}
	d.off = len(d.buf) - len(rest)
	return v, nil
}

// Int64 consumes a signed integer component.
func (d *Decoder) Int64() (int64, error) {
	v, rest, err := DecodeInt64(d.buf[d.off:])
	if err != nil {
		return 0, &DecodeError{Offset: d.off, Err: err}
	}
	d.off = len(d.buf) - len(rest)
	return v, nil
}

// Int64Desc consumes a descending signed integer component.
func (d *Decoder) Int64Desc() (int64, error) {
	v, rest, err := DecodeInt64Desc(d.buf[d.off:])
	if err != nil {
		return 0, &DecodeError{Offset: d.off, Err: err}
	}
	d.off = len(d.buf) - len(rest)
	return v, nil
}

// Bytes consumes an escaped byte-string component.
func (d *Decoder) Bytes() ([]byte, error) {
	b, rest, err := DecodeBytes(d.buf[d.off:])
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			return nil, &DecodeError{Offset: d.off + de.Offset, Err: de.Err}
		}
		return nil, &DecodeError{Offset: d.off, Err: err}
	}
	d.off = len(d.buf) - len(rest)
	return b, nil
}

// BytesDesc consumes a descending byte-string component.
func (d *Decoder) BytesDesc() ([]byte, error) {
	b, rest, err := DecodeBytesDesc(d.buf[d.off:])
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			return nil, &DecodeError{Offset: d.off + de.Offset, Err: de.Err}
		}
		return nil, &DecodeError{Offset: d.off, Err: err}
	}
	d.off = len(d.buf) - len(rest)
	return b, nil
}

// String consumes an escaped string component.
func (d *Decoder) String() (string, error) {
	b, err := d.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Raw consumes n raw bytes without unescaping.
func (d *Decoder) Raw(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, &DecodeError{Offset: d.off, Err: ErrUnexpectedEnd}
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}
