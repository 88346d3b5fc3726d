package storage

import (
	"bytes"
	"errors"
	"testing"
)

// TestOwnerPrefixRoundTrip tests encoding and parsing of owner prefixes.
func TestOwnerPrefixRoundTrip(t *testing.T) {
	owners := []Owner{
		{Kind: OwnerTable, ID: 0},
		{Kind: OwnerTable, ID: 42},
		{Kind: OwnerIndex, ID: 7},
		{Kind: OwnerView, ID: 1 << 40},
		{Kind: OwnerFlow, ID: 3},
		{Kind: OwnerSystem, ID: ^uint64(0)},
	}

	for _, owner := range owners {
		key := owner.Key([]byte("suffix"))
		if len(key) != OwnerPrefixSize+len("suffix") {
			t.Errorf("expected key length %d, got %d", OwnerPrefixSize+6, len(key))
		}

		got, rest, err := SplitOwner(key)
		if err != nil {
			t.Fatalf("SplitOwner failed for %v: %v", owner, err)
		}
		if got != owner {
			t.Errorf("expected owner %v, got %v", owner, got)
		}
		if !bytes.Equal(rest, []byte("suffix")) {
			t.Errorf("expected suffix, got %q", rest)
		}
	}
}

// TestSplitOwnerShortKey tests the short-key error path.
func TestSplitOwnerShortKey(t *testing.T) {
	for _, n := range []int{0, 1, OwnerPrefixSize - 1} {
		_, _, err := SplitOwner(make(EncodedKey, n))
		if !errors.Is(err, ErrShortKey) {
			t.Errorf("expected ErrShortKey for %d-byte key, got %v", n, err)
		}
	}
}

// TestOwnerOrdering verifies Compare matches the byte order of encoded
// prefixes.
func TestOwnerOrdering(t *testing.T) {
	owners := []Owner{
		{Kind: OwnerTable, ID: 0},
		{Kind: OwnerTable, ID: 1},
		{Kind: OwnerTable, ID: 256},
		{Kind: OwnerIndex, ID: 0},
		{Kind: OwnerView, ID: 5},
		{Kind: OwnerSystem, ID: 2},
	}

	for i := 0; i < len(owners); i++ {
		for j := 0; j < len(owners); j++ {
			logical := owners[i].Compare(owners[j])
			encoded := bytes.Compare(owners[i].Prefix(), owners[j].Prefix())
			if normalize(logical) != normalize(encoded) {
				t.Errorf("order mismatch for %v vs %v: Compare=%d, prefix=%d",
					owners[i], owners[j], logical, encoded)
			}
		}
	}
}

// TestDeltaConstructors tests the delta constructors and validation.
func TestDeltaConstructors(t *testing.T) {
	owner := Owner{Kind: OwnerTable, ID: 1}
	key := owner.Key([]byte("k"))

	set := NewSetDelta(key, []byte("v"))
	if set.Kind != DeltaSet {
		t.Errorf("expected DeltaSet, got %v", set.Kind)
	}
	if err := set.Validate(); err != nil {
		t.Errorf("expected valid set delta, got %v", err)
	}

	rem := NewRemoveDelta(key)
	if rem.Kind != DeltaRemove {
		t.Errorf("expected DeltaRemove, got %v", rem.Kind)
	}
	if rem.Value != nil {
		t.Error("expected nil value on remove delta")
	}

	drop := NewDropDelta(key, 10, 2)
	if drop.Kind != DeltaDrop {
		t.Errorf("expected DeltaDrop, got %v", drop.Kind)
	}
	if drop.UpToVersion != 10 || drop.KeepLast != 2 {
		t.Errorf("expected bounds (10, 2), got (%d, %d)", drop.UpToVersion, drop.KeepLast)
	}

	invalid := Delta{Kind: DeltaKind(99), Key: key}
	if err := invalid.Validate(); !errors.Is(err, ErrInvalidDelta) {
		t.Errorf("expected ErrInvalidDelta, got %v", err)
	}

	short := NewSetDelta(EncodedKey("x"), nil)
	if err := short.Validate(); !errors.Is(err, ErrShortKey) {
		t.Errorf("expected ErrShortKey, got %v", err)
	}
}

// TestEncodedKeyClone tests that clones do not alias their source.
func TestEncodedKeyClone(t *testing.T) {
	key := EncodedKey("abc")
	clone := key.Clone()

	clone[0] = 'z'
	if key[0] != 'a' {
		t.Error("expected clone to be independent of source")
	}

	if EncodedKey(nil).Clone() != nil {
		t.Error("expected nil clone of nil key")
	}
}

// TestKindStrings tests the String methods on enums.
func TestKindStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{OwnerTable.String(), "table"},
		{OwnerIndex.String(), "index"},
		{OwnerView.String(), "view"},
		{OwnerFlow.String(), "flow"},
		{OwnerSystem.String(), "system"},
		{OwnerKind(200).String(), "kind(200)"},
		{DeltaSet.String(), "set"},
		{DeltaRemove.String(), "remove"},
		{DeltaDrop.String(), "drop"},
		{Owner{Kind: OwnerTable, ID: 9}.String(), "table/9"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.got)
		}
	}
}

func normalize(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
