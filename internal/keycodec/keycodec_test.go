package keycodec

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

// TestUint64RoundTrip tests encoding and decoding of unsigned integers.
func TestUint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 255, 256, 1 << 32, math.MaxUint64 - 1, math.MaxUint64}

	for _, v := range values {
		enc := AppendUint64(nil, v)
		if len(enc) != Uint64Size {
			t.Errorf("expected %d encoded bytes, got %d", Uint64Size, len(enc))
		}

		got, rest, err := DecodeUint64(enc)
		if err != nil {
			t.Fatalf("DecodeUint64(%d) failed: %v", v, err)
		}
		if got != v {
			t.Errorf("expected %d, got %d", v, got)
		}
		if len(rest) != 0 {
			t.Errorf("expected no trailing bytes, got %d", len(rest))
		}

		encDesc := AppendUint64Desc(nil, v)
		gotDesc, _, err := DecodeUint64Desc(encDesc)
		if err != nil {
			t.Fatalf("DecodeUint64Desc(%d) failed: %v", v, err)
		}
		if gotDesc != v {
			t.Errorf("descending: expected %d, got %d", v, gotDesc)
		}
	}
}

// TestInt64RoundTrip tests encoding and decoding of signed integers.
func TestInt64RoundTrip(t *testing.T) {
	values := []int64{math.MinInt64, -1 << 32, -256, -1, 0, 1, 255, 1 << 40, math.MaxInt64}

	for _, v := range values {
		enc := AppendInt64(nil, v)
		got, _, err := DecodeInt64(enc)
		if err != nil {
			t.Fatalf("DecodeInt64(%d) failed: %v", v, err)
		}
		if got != v {
			t.Errorf("expected %d, got %d", v, got)
		}

		encDesc := AppendInt64Desc(nil, v)
		gotDesc, _, err := DecodeInt64Desc(encDesc)
		if err != nil {
			t.Fatalf("DecodeInt64Desc(%d) failed: %v", v, err)
		}
		if gotDesc != v {
			t.Errorf("descending: expected %d, got %d", v, gotDesc)
		}
	}
}

// TestBytesRoundTrip tests the escaped byte-string encoding.
func TestBytesRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"plain", []byte("hello")},
		{"single zero", []byte{0x00}},
		{"embedded zero", []byte("a\x00b")},
		{"leading zeros", []byte{0x00, 0x00, 'x'}},
		{"trailing zero", []byte{'x', 0x00}},
		{"escape lookalikes", []byte{0x00, 0xFF, 0x00, 0x01}},
		{"high bytes", []byte{0xFE, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := AppendBytes(nil, tt.payload)
			if len(enc) != EncodedBytesLen(tt.payload) {
				t.Errorf("expected encoded length %d, got %d", EncodedBytesLen(tt.payload), len(enc))
			}

			got, rest, err := DecodeBytes(enc)
			if err != nil {
				t.Fatalf("DecodeBytes failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("expected %v, got %v", tt.payload, got)
			}
			if len(rest) != 0 {
				t.Errorf("expected no trailing bytes, got %d", len(rest))
			}

			encDesc := AppendBytesDesc(nil, tt.payload)
			gotDesc, _, err := DecodeBytesDesc(encDesc)
			if err != nil {
				t.Fatalf("DecodeBytesDesc failed: %v", err)
			}
			if !bytes.Equal(gotDesc, tt.payload) {
				t.Errorf("descending: expected %v, got %v", tt.payload, gotDesc)
			}
		})
	}
}

// TestUint64Ordering verifies encoded byte order matches numeric order.
func TestUint64Ordering(t *testing.T) {
	values := []uint64{0, 1, 2, 255, 256, 257, 1 << 16, 1 << 32, math.MaxUint64 - 1, math.MaxUint64}

	for i := 0; i < len(values); i++ {
		for j := 0; j < len(values); j++ {
			a := AppendUint64(nil, values[i])
			b := AppendUint64(nil, values[j])
			if got, want := sign(bytes.Compare(a, b)), sign(compareUint64(values[i], values[j])); got != want {
				t.Errorf("ascending order mismatch for %d vs %d: got %d, want %d", values[i], values[j], got, want)
			}

			ad := AppendUint64Desc(nil, values[i])
			bd := AppendUint64Desc(nil, values[j])
			if got, want := sign(bytes.Compare(ad, bd)), -sign(compareUint64(values[i], values[j])); got != want {
				t.Errorf("descending order mismatch for %d vs %d: got %d, want %d", values[i], values[j], got, want)
			}
		}
	}
}

// TestInt64Ordering verifies sign-flipped encoding orders signed values.
func TestInt64Ordering(t *testing.T) {
	values := []int64{math.MinInt64, -1 << 40, -257, -256, -2, -1, 0, 1, 2, 256, 1 << 40, math.MaxInt64}

	for i := 0; i < len(values); i++ {
		for j := 0; j < len(values); j++ {
			a := AppendInt64(nil, values[i])
			b := AppendInt64(nil, values[j])
			want := 0
			if values[i] < values[j] {
				want = -1
			} else if values[i] > values[j] {
				want = 1
			}
			if got := sign(bytes.Compare(a, b)); got != want {
				t.Errorf("order mismatch for %d vs %d: got %d, want %d", values[i], values[j], got, want)
			}
		}
	}
}

// TestBytesOrdering verifies escaped strings order like their payloads,
// including the tricky prefix and embedded-zero cases.
func TestBytesOrdering(t *testing.T) {
	values := [][]byte{
		{},
		{0x00},
		{0x00, 0x00},
		{0x00, 0x01},
		[]byte("a"),
		[]byte("a\x00"),
		[]byte("a\x00b"),
		[]byte("a\x01"),
		[]byte("ab"),
		[]byte("b"),
		{0xFF},
		{0xFF, 0x00},
	}

	for i := 0; i < len(values); i++ {
		for j := 0; j < len(values); j++ {
			a := AppendBytes(nil, values[i])
			b := AppendBytes(nil, values[j])
			want := sign(bytes.Compare(values[i], values[j]))
			if got := sign(bytes.Compare(a, b)); got != want {
				t.Errorf("ascending order mismatch for %v vs %v: got %d, want %d", values[i], values[j], got, want)
			}

			ad := AppendBytesDesc(nil, values[i])
			bd := AppendBytesDesc(nil, values[j])
			if got := sign(bytes.Compare(ad, bd)); got != -want {
				t.Errorf("descending order mismatch for %v vs %v: got %d, want %d", values[i], values[j], got, -want)
			}
		}
	}
}

// TestCompositeOrdering verifies multi-component keys order component by
// component, with earlier components dominating.
func TestCompositeOrdering(t *testing.T) {
	type logical struct {
		table uint64
		name  string
		seq   int64
	}

	encode := func(l logical) []byte {
		enc := NewEncoder(32)
		enc.PutUint64(l.table)
		enc.PutString(l.name)
		enc.PutInt64(l.seq)
		return append([]byte(nil), enc.Bytes()...)
	}

	ordered := []logical{
		{1, "a", -5},
		{1, "a", 0},
		{1, "a", 7},
		{1, "a\x00", 0},
		{1, "ab", -100},
		{1, "b", 0},
		{2, "", math.MinInt64},
		{2, "a", 0},
	}

	for i := 1; i < len(ordered); i++ {
		prev := encode(ordered[i-1])
		cur := encode(ordered[i])
		if bytes.Compare(prev, cur) >= 0 {
			t.Errorf("expected %+v to sort before %+v", ordered[i-1], ordered[i])
		}
	}
}

// TestDecoderSequence tests consuming a composite key component by component.
func TestDecoderSequence(t *testing.T) {
	enc := NewEncoder(0)
	enc.PutUint64(42)
	enc.PutBytes([]byte("row\x00id"))
	enc.PutInt64(-17)
	enc.PutUint64Desc(99)

	dec := NewDecoder(enc.Bytes())

	u, err := dec.Uint64()
	if err != nil {
		t.Fatalf("Uint64 failed: %v", err)
	}
	if u != 42 {
		t.Errorf("expected 42, got %d", u)
	}

	b, err := dec.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if !bytes.Equal(b, []byte("row\x00id")) {
		t.Errorf("expected row\\x00id, got %v", b)
	}

	i, err := dec.Int64()
	if err != nil {
		t.Fatalf("Int64 failed: %v", err)
	}
	if i != -17 {
		t.Errorf("expected -17, got %d", i)
	}

	d, err := dec.Uint64Desc()
	if err != nil {
		t.Fatalf("Uint64Desc failed: %v", err)
	}
	if d != 99 {
		t.Errorf("expected 99, got %d", d)
	}

	if dec.Remaining() != 0 {
		t.Errorf("expected decoder exhausted, %d bytes remain", dec.Remaining())
	}
}

// TestDecodeErrors tests truncated and malformed inputs.
func TestDecodeErrors(t *testing.T) {
	if _, _, err := DecodeUint64([]byte{1, 2, 3}); !errors.Is(err, ErrUnexpectedEnd) {
		t.Errorf("expected ErrUnexpectedEnd, got %v", err)
	}

	// Escaped string missing its terminator.
	if _, _, err := DecodeBytes([]byte("abc")); !errors.Is(err, ErrUnterminated) {
		t.Errorf("expected ErrUnterminated, got %v", err)
	}

	// Escape byte at end of input.
	if _, _, err := DecodeBytes([]byte{'a', 0x00}); !errors.Is(err, ErrUnexpectedEnd) {
		t.Errorf("expected ErrUnexpectedEnd, got %v", err)
	}

	// Unknown escape pair.
	_, _, err := DecodeBytes([]byte{'a', 0x00, 0x42})
	if !errors.Is(err, ErrInvalidEscape) {
		t.Errorf("expected ErrInvalidEscape, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if de.Offset != 1 {
		t.Errorf("expected offset 1, got %d", de.Offset)
	}
}

// TestEncoderReset tests buffer reuse.
func TestEncoderReset(t *testing.T) {
	enc := NewEncoder(16)
	enc.PutUint64(1)
	first := append([]byte(nil), enc.Bytes()...)

	enc.Reset()
	if enc.Len() != 0 {
		t.Errorf("expected empty encoder after Reset, got %d bytes", enc.Len())
	}

	enc.PutUint64(1)
	if !bytes.Equal(first, enc.Bytes()) {
		t.Error("expected identical encoding after reset")
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// BenchmarkAppendUint64 measures the fixed-width encoding hot path.
func BenchmarkAppendUint64(b *testing.B) {
	buf := make([]byte, 0, 16)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf = AppendUint64(buf[:0], uint64(i))
	}
}

// BenchmarkAppendBytes measures the escaped encoding hot path.
func BenchmarkAppendBytes(b *testing.B) {
	payload := []byte("user\x00profile\x00settings")
	buf := make([]byte, 0, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf = AppendBytes(buf[:0], payload)
	}
}
