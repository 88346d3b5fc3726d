package cdc

import (
	"bytes"
	"testing"

	"github.com/strata-db/strata/internal/storage"
)

var (
	tabOne = storage.Owner{Kind: storage.OwnerTable, ID: 1}
	tabTwo = storage.Owner{Kind: storage.OwnerTable, ID: 2}
	idxOne = storage.Owner{Kind: storage.OwnerIndex, ID: 1}
)

func TestChangeKindString(t *testing.T) {
	tests := []struct {
		kind ChangeKind
		want string
	}{
		{ChangeSet, "set"},
		{ChangeRemove, "remove"},
		{ChangeKind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ChangeKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestNewCommitEvent(t *testing.T) {
	deltas := []storage.Delta{
		{Kind: storage.DeltaSet, Key: tabOne.Key([]byte("a")), Value: []byte("1"), Sequence: 0},
		{Kind: storage.DeltaRemove, Key: tabTwo.Key([]byte("b")), Sequence: 1},
		{Kind: storage.DeltaDrop, Key: tabOne.Key([]byte("a")), KeepLast: 1, Sequence: 2},
		{Kind: storage.DeltaSet, Key: idxOne.Key([]byte("c")), Value: []byte("3"), Sequence: 3},
	}

	event, ok := NewCommitEvent(7, deltas)
	if !ok {
		t.Fatal("NewCommitEvent() ok = false, want true")
	}
	if event.Version != 7 {
		t.Errorf("Version = %d, want 7", event.Version)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}

	// The drop delta is filtered out.
	if len(event.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(event.Entries))
	}

	wantEntries := []struct {
		owner storage.Owner
		kind  ChangeKind
		seq   uint16
	}{
		{tabOne, ChangeSet, 0},
		{tabTwo, ChangeRemove, 1},
		{idxOne, ChangeSet, 3},
	}
	for i, want := range wantEntries {
		got := event.Entries[i]
		if got.Owner != want.owner {
			t.Errorf("entry %d: Owner = %v, want %v", i, got.Owner, want.owner)
		}
		if got.Kind != want.kind {
			t.Errorf("entry %d: Kind = %v, want %v", i, got.Kind, want.kind)
		}
		if got.Sequence != want.seq {
			t.Errorf("entry %d: Sequence = %d, want %d", i, got.Sequence, want.seq)
		}
	}
}

func TestNewCommitEventOrdersBySequence(t *testing.T) {
	// Deltas arrive in key order; entries come back in mutation order.
	deltas := []storage.Delta{
		{Kind: storage.DeltaSet, Key: tabOne.Key([]byte("a")), Value: []byte("1"), Sequence: 2},
		{Kind: storage.DeltaRemove, Key: tabOne.Key([]byte("m")), Sequence: 0},
		{Kind: storage.DeltaSet, Key: tabOne.Key([]byte("z")), Value: []byte("3"), Sequence: 1},
	}

	event, ok := NewCommitEvent(9, deltas)
	if !ok {
		t.Fatal("NewCommitEvent() ok = false, want true")
	}

	for i, want := range []uint16{0, 1, 2} {
		if got := event.Entries[i].Sequence; got != want {
			t.Errorf("entry %d: Sequence = %d, want %d", i, got, want)
		}
	}
	if !bytes.Equal(event.Entries[0].Key, tabOne.Key([]byte("m"))) {
		t.Errorf("entry 0 key = %x, want the first mutation", event.Entries[0].Key)
	}
}

func TestNewCommitEventCopiesKeys(t *testing.T) {
	key := tabOne.Key([]byte("a"))
	deltas := []storage.Delta{{Kind: storage.DeltaSet, Key: key, Value: []byte("1")}}

	event, ok := NewCommitEvent(1, deltas)
	if !ok {
		t.Fatal("NewCommitEvent() ok = false, want true")
	}

	want := key.Clone()
	key[len(key)-1] = 'z'

	if !bytes.Equal(event.Entries[0].Key, want) {
		t.Error("mutating the delta key changed the event entry")
	}
}

func TestNewCommitEventDropsOnly(t *testing.T) {
	deltas := []storage.Delta{
		{Kind: storage.DeltaDrop, Key: tabOne.Key([]byte("a")), KeepLast: 1},
	}

	if _, ok := NewCommitEvent(1, deltas); ok {
		t.Error("NewCommitEvent() ok = true for drop-only commit, want false")
	}
}

func TestCommitEventClone(t *testing.T) {
	event, ok := NewCommitEvent(3, []storage.Delta{
		{Kind: storage.DeltaSet, Key: tabOne.Key([]byte("a")), Value: []byte("1")},
	})
	if !ok {
		t.Fatal("NewCommitEvent() ok = false, want true")
	}

	clone := event.Clone()
	clone.Entries[0].Key[0] = 0xFF

	if event.Entries[0].Key[0] == 0xFF {
		t.Error("mutating the clone changed the original")
	}
}

func TestFilterMatches(t *testing.T) {
	event, ok := NewCommitEvent(5, []storage.Delta{
		{Kind: storage.DeltaSet, Key: tabOne.Key([]byte("a")), Value: []byte("1")},
		{Kind: storage.DeltaRemove, Key: tabTwo.Key([]byte("b"))},
	})
	if !ok {
		t.Fatal("NewCommitEvent() ok = false, want true")
	}

	tests := []struct {
		name    string
		filter  Filter
		event   *CommitEvent
		matches bool
	}{
		{
			name:    "empty filter matches all",
			filter:  MatchAll(),
			event:   &event,
			matches: true,
		},
		{
			name:    "owner match",
			filter:  MatchOwner(tabOne),
			event:   &event,
			matches: true,
		},
		{
			name:    "owner no match",
			filter:  MatchOwner(idxOne),
			event:   &event,
			matches: false,
		},
		{
			name:    "kind match",
			filter:  MatchKinds(ChangeRemove),
			event:   &event,
			matches: true,
		},
		{
			name:    "kind no match on owner subset",
			filter:  Filter{Owners: []storage.Owner{tabOne}, Kinds: []ChangeKind{ChangeRemove}},
			event:   &event,
			matches: false,
		},
		{
			name:    "owner and kind match",
			filter:  Filter{Owners: []storage.Owner{tabTwo}, Kinds: []ChangeKind{ChangeRemove}},
			event:   &event,
			matches: true,
		},
		{
			name:    "nil event",
			filter:  MatchAll(),
			event:   nil,
			matches: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.event); got != tt.matches {
				t.Errorf("Matches() = %v, want %v", got, tt.matches)
			}
		})
	}
}
