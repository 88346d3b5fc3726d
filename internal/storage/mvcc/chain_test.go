package mvcc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/strata-db/strata/internal/storage"
)

func value(s string) []byte {
	return []byte(s)
}

// testChain builds a chain from (version, value) pairs, using an empty
// value to mean a tombstone.
func testChain(t *testing.T, entries ...Entry) Chain {
	t.Helper()

	var chain Chain
	var err error
	for _, e := range entries {
		chain, err = chain.Append(e)
		if err != nil {
			t.Fatalf("append version %d failed: %v", e.Version, err)
		}
	}
	return chain
}

// TestChainAppendOrder tests the strictly-newer append contract.
func TestChainAppendOrder(t *testing.T) {
	chain := testChain(t,
		Entry{Version: 5, Value: value("a")},
		Entry{Version: 9, Value: value("b")},
	)

	if chain.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", chain.Len())
	}

	if _, err := chain.Append(Entry{Version: 9, Value: value("dup")}); !errors.Is(err, ErrVersionOrder) {
		t.Errorf("expected ErrVersionOrder for equal version, got %v", err)
	}
	if _, err := chain.Append(Entry{Version: 3, Value: value("old")}); !errors.Is(err, ErrVersionOrder) {
		t.Errorf("expected ErrVersionOrder for older version, got %v", err)
	}

	// A failed append leaves the chain unchanged.
	if chain.Len() != 2 {
		t.Errorf("expected 2 entries after failed appends, got %d", chain.Len())
	}
}

// TestChainGetAt tests snapshot resolution across versions.
func TestChainGetAt(t *testing.T) {
	chain := testChain(t,
		Entry{Version: 2, Value: value("x")},
		Entry{Version: 5, Value: value("y")},
		Entry{Version: 8, Tombstone: true},
		Entry{Version: 11, Value: value("z")},
	)

	tests := []struct {
		name      string
		version   storage.Version
		ok        bool
		want      string
		tombstone bool
	}{
		{"before first", 1, false, "", false},
		{"exact first", 2, true, "x", false},
		{"between versions", 4, true, "x", false},
		{"exact second", 5, true, "y", false},
		{"just below tombstone", 7, true, "y", false},
		{"tombstone exact", 8, true, "", true},
		{"tombstone gap", 10, true, "", true},
		{"latest", 11, true, "z", false},
		{"future", 100, true, "z", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := chain.GetAt(tt.version)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if entry.Tombstone != tt.tombstone {
				t.Errorf("expected tombstone=%v, got %v", tt.tombstone, entry.Tombstone)
			}
			if !tt.tombstone && !bytes.Equal(entry.Value, value(tt.want)) {
				t.Errorf("expected %q, got %q", tt.want, entry.Value)
			}
		})
	}
}

// TestChainValueSemantics verifies that appends never disturb an older
// chain value, which is what snapshot holders depend on.
func TestChainValueSemantics(t *testing.T) {
	base := testChain(t,
		Entry{Version: 1, Value: value("a")},
		Entry{Version: 2, Value: value("b")},
	)
	snapshot := base

	grown, err := base.Append(Entry{Version: 3, Value: value("c")})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if snapshot.Len() != 2 {
		t.Errorf("expected snapshot to keep 2 entries, got %d", snapshot.Len())
	}
	if e, ok := snapshot.GetAt(3); !ok || e.Version != 2 {
		t.Errorf("expected snapshot to resolve version 2, got %d ok=%v", e.Version, ok)
	}
	if e, ok := grown.GetAt(3); !ok || e.Version != 3 {
		t.Errorf("expected grown chain to resolve version 3, got %v ok=%v", e.Version, ok)
	}

	compacted, removed := grown.CompactBelow(3)
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if grown.Len() != 3 {
		t.Errorf("expected source chain untouched by compaction, got %d entries", grown.Len())
	}
	if compacted.Len() != 1 {
		t.Errorf("expected 1 entry after compaction, got %d", compacted.Len())
	}
}

// TestChainCompactBelow tests the keep-one-predecessor rule.
func TestChainCompactBelow(t *testing.T) {
	tests := []struct {
		name         string
		discardBelow storage.Version
		wantRemoved  int
		wantLen      int
		wantOldest   storage.Version
	}{
		{"nothing below", 2, 0, 4, 2},
		{"one below keeps it", 3, 0, 4, 2},
		{"two below keeps newest", 6, 1, 3, 5},
		{"all below keeps newest", 100, 3, 1, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := testChain(t,
				Entry{Version: 2, Value: value("x")},
				Entry{Version: 5, Value: value("y")},
				Entry{Version: 8, Tombstone: true},
				Entry{Version: 11, Value: value("z")},
			)

			compacted, removed := chain.CompactBelow(tt.discardBelow)
			if removed != tt.wantRemoved {
				t.Errorf("expected %d removed, got %d", tt.wantRemoved, removed)
			}
			if compacted.Len() != tt.wantLen {
				t.Errorf("expected %d entries, got %d", tt.wantLen, compacted.Len())
			}
			oldest, ok := compacted.Oldest()
			if !ok || oldest.Version != tt.wantOldest {
				t.Errorf("expected oldest version %d, got %d", tt.wantOldest, oldest.Version)
			}
		})
	}
}

// TestChainCompactPreservesReads verifies resolution at every version
// at or above the compaction point is unchanged.
func TestChainCompactPreservesReads(t *testing.T) {
	chain := testChain(t,
		Entry{Version: 1, Value: value("a")},
		Entry{Version: 4, Value: value("b")},
		Entry{Version: 7, Tombstone: true},
		Entry{Version: 9, Value: value("c")},
		Entry{Version: 15, Value: value("d")},
	)

	for _, watermark := range []storage.Version{0, 1, 4, 5, 8, 9, 14, 15, 20} {
		compacted, _ := chain.CompactBelow(watermark)
		for v := watermark; v <= 22; v++ {
			before, okBefore := chain.GetAt(v)
			after, okAfter := compacted.GetAt(v)
			if okBefore != okAfter {
				t.Fatalf("watermark %d, version %d: ok %v != %v", watermark, v, okBefore, okAfter)
			}
			if !okBefore {
				continue
			}
			if before.Version != after.Version || before.Tombstone != after.Tombstone ||
				!bytes.Equal(before.Value, after.Value) {
				t.Fatalf("watermark %d, version %d: entry changed by compaction", watermark, v)
			}
		}
	}
}

// TestChainTrim tests drop semantics with version bound and retention.
func TestChainTrim(t *testing.T) {
	tests := []struct {
		name        string
		upTo        storage.Version
		keepLast    int
		wantRemoved int
		wantLen     int
		wantOldest  storage.Version
	}{
		{"unbounded keep one", 0, 1, 3, 1, 11},
		{"unbounded keep two", 0, 2, 2, 2, 8},
		{"keep everything", 0, 4, 0, 4, 2},
		{"keep more than len", 0, 10, 0, 4, 2},
		{"zero keep clamps to one", 0, 0, 3, 1, 11},
		{"bounded at 5", 5, 1, 2, 2, 8},
		{"bounded at 4", 4, 1, 1, 3, 5},
		{"bounded below all", 1, 1, 0, 4, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := testChain(t,
				Entry{Version: 2, Value: value("x")},
				Entry{Version: 5, Value: value("y")},
				Entry{Version: 8, Tombstone: true},
				Entry{Version: 11, Value: value("z")},
			)

			trimmed, removed := chain.Trim(tt.upTo, tt.keepLast)
			if removed != tt.wantRemoved {
				t.Errorf("expected %d removed, got %d", tt.wantRemoved, removed)
			}
			if trimmed.Len() != tt.wantLen {
				t.Errorf("expected %d entries, got %d", tt.wantLen, trimmed.Len())
			}
			if oldest, ok := trimmed.Oldest(); !ok || oldest.Version != tt.wantOldest {
				t.Errorf("expected oldest version %d, got %d", tt.wantOldest, oldest.Version)
			}
		})
	}
}

// TestChainTrimNeverEmpties replays the drop scenario on a chain
// ending in a tombstone: with keepLast 1 and a watermark beyond the
// tombstone, the chain must keep its last visible entry.
func TestChainTrimNeverEmpties(t *testing.T) {
	chain := testChain(t,
		Entry{Version: 1, Value: value("x")},
		Entry{Version: 2, Value: value("y")},
		Entry{Version: 3, Tombstone: true},
	)

	trimmed, removed := chain.Trim(100, 1)
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if trimmed.Len() != 1 {
		t.Fatalf("expected 1 entry to survive, got %d", trimmed.Len())
	}

	survivor, ok := trimmed.Newest()
	if !ok || survivor.Version != 3 || !survivor.Tombstone {
		t.Errorf("expected the version 3 tombstone to survive, got %+v", survivor)
	}

	// A reader at or past version 2 still gets an answer.
	if _, ok := trimmed.GetAt(3); !ok {
		t.Error("expected resolution at version 3 after trim")
	}
}

// TestChainEmpty tests zero-value behavior.
func TestChainEmpty(t *testing.T) {
	var chain Chain

	if chain.Len() != 0 {
		t.Errorf("expected empty chain, got %d entries", chain.Len())
	}
	if _, ok := chain.GetAt(10); ok {
		t.Error("expected no resolution on empty chain")
	}
	if _, ok := chain.Newest(); ok {
		t.Error("expected no newest entry on empty chain")
	}

	compacted, removed := chain.CompactBelow(5)
	if removed != 0 || compacted.Len() != 0 {
		t.Error("expected compaction of empty chain to be a no-op")
	}
	trimmed, removed := chain.Trim(5, 1)
	if removed != 0 || trimmed.Len() != 0 {
		t.Error("expected trim of empty chain to be a no-op")
	}

	grown, err := chain.Append(Entry{Version: 1, Value: value("a")})
	if err != nil {
		t.Fatalf("append to empty chain failed: %v", err)
	}
	if grown.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", grown.Len())
	}
}

// TestNewChain tests construction from a prebuilt entry list.
func TestNewChain(t *testing.T) {
	src := []Entry{
		{Version: 1, Value: value("a")},
		{Version: 3, Value: value("b")},
	}
	chain := NewChain(src...)

	src[0].Value = value("mutated")
	if e, _ := chain.GetAt(1); !bytes.Equal(e.Value, value("a")) {
		t.Error("expected chain to own its entries")
	}

	entries := chain.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	entries[0].Version = 99
	if e, _ := chain.GetAt(1); e.Version != 1 {
		t.Error("expected Entries to return a copy")
	}
}
