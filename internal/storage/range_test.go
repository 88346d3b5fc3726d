package storage

import (
	"bytes"
	"testing"
)

// TestPrefixSuccessor tests successor computation including 0xFF
// carry and the unbounded cases.
func TestPrefixSuccessor(t *testing.T) {
	tests := []struct {
		name   string
		prefix EncodedKey
		want   EncodedKey
	}{
		{"simple", EncodedKey{0x01, 0x02}, EncodedKey{0x01, 0x03}},
		{"trailing ff", EncodedKey{0x01, 0xFF}, EncodedKey{0x02}},
		{"double ff", EncodedKey{0x01, 0xFF, 0xFF}, EncodedKey{0x02}},
		{"all ff", EncodedKey{0xFF, 0xFF}, nil},
		{"empty", EncodedKey{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PrefixSuccessor(tt.prefix)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestPrefixRangeContains verifies a prefix range admits exactly the
// keys sharing the prefix.
func TestPrefixRangeContains(t *testing.T) {
	r := PrefixRange(EncodedKey{0x02, 0x10})

	inside := []EncodedKey{
		{0x02, 0x10},
		{0x02, 0x10, 0x00},
		{0x02, 0x10, 0xFF, 0xFF},
	}
	outside := []EncodedKey{
		{0x02, 0x0F, 0xFF},
		{0x02, 0x11},
		{0x03},
		{0x01},
	}

	for _, key := range inside {
		if !r.Contains(key) {
			t.Errorf("expected range to contain %v", key)
		}
	}
	for _, key := range outside {
		if r.Contains(key) {
			t.Errorf("expected range to exclude %v", key)
		}
	}
}

// TestOwnerRangeIsolation verifies that owner ranges never admit keys
// of a neighboring owner.
func TestOwnerRangeIsolation(t *testing.T) {
	a := Owner{Kind: OwnerTable, ID: 5}
	b := Owner{Kind: OwnerTable, ID: 6}

	ra := OwnerRange(a)

	if !ra.Contains(a.Key([]byte("k"))) {
		t.Error("expected owner range to contain its own key")
	}
	if !ra.Contains(a.Prefix()) {
		t.Error("expected owner range to contain the bare prefix")
	}
	if ra.Contains(b.Key([]byte("k"))) {
		t.Error("expected owner range to exclude neighbor keys")
	}
	if ra.Contains(b.Prefix()) {
		t.Error("expected owner range to exclude the neighbor prefix")
	}
}

// TestKeyRangeBounds tests unbounded sides and emptiness.
func TestKeyRangeBounds(t *testing.T) {
	full := FullRange()
	if !full.Contains(EncodedKey{}) || !full.Contains(EncodedKey{0xFF}) {
		t.Error("expected full range to contain every key")
	}
	if full.Empty() {
		t.Error("expected full range to be non-empty")
	}

	from := NewKeyRange(EncodedKey{0x05}, nil)
	if from.Contains(EncodedKey{0x04}) {
		t.Error("expected key below start to be excluded")
	}
	if !from.Contains(EncodedKey{0x05}) {
		t.Error("expected start to be inclusive")
	}

	until := NewKeyRange(nil, EncodedKey{0x05})
	if until.Contains(EncodedKey{0x05}) {
		t.Error("expected end to be exclusive")
	}
	if !until.Contains(EncodedKey{0x04, 0xFF}) {
		t.Error("expected key below end to be included")
	}

	empty := NewKeyRange(EncodedKey{0x07}, EncodedKey{0x07})
	if !empty.Empty() {
		t.Error("expected start==end range to be empty")
	}
	inverted := NewKeyRange(EncodedKey{0x08}, EncodedKey{0x07})
	if !inverted.Empty() {
		t.Error("expected inverted range to be empty")
	}
}
