package mvcc

import (
	"errors"
	"fmt"
	"sort"

	"github.com/strata-db/strata/internal/storage"
)

// Chain errors.
var (
	// ErrVersionOrder is returned when an appended version is not
	// strictly newer than the chain's newest entry.
	ErrVersionOrder = errors.New("mvcc: appended version not newer than newest entry")
)

// Entry is one historical value, or tombstone, for a key.
type Entry struct {
	// Version is the commit version that wrote the entry.
	Version storage.Version

	// Value is the payload. Empty when Tombstone is true.
	Value []byte

	// Tombstone marks the key as removed at Version.
	Tombstone bool
}

// Chain is the append-only version history of one key, ordered by
// ascending version. Chain has value semantics: mutating operations
// return a new chain and never write through entries an older value
// can still see, so copy-on-write tree snapshots holding a chain stay
// self-consistent without locks.
//
// The zero value is an empty chain.
type Chain struct {
	entries []Entry
}

// NewChain returns a chain over the given entries, which must be
// ordered by strictly ascending version.
func NewChain(entries ...Entry) Chain {
	if len(entries) == 0 {
		return Chain{}
	}
	owned := make([]Entry, len(entries))
	copy(owned, entries)
	return Chain{entries: owned}
}

// Len returns the number of entries in the chain.
func (c Chain) Len() int {
	return len(c.entries)
}

// Newest returns the most recent entry.
func (c Chain) Newest() (Entry, bool) {
	if len(c.entries) == 0 {
		return Entry{}, false
	}
	return c.entries[len(c.entries)-1], true
}

// Oldest returns the least recent entry.
func (c Chain) Oldest() (Entry, bool) {
	if len(c.entries) == 0 {
		return Entry{}, false
	}
	return c.entries[0], true
}

// Entries returns a copy of the chain's entries in ascending version
// order.
func (c Chain) Entries() []Entry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Append returns the chain extended by entry. The entry's version must
// be strictly newer than every existing version; the transaction
// manager's commit serialization guarantees this for committed writes,
// and a violation is reported as ErrVersionOrder.
func (c Chain) Append(entry Entry) (Chain, error) {
	if last, ok := c.Newest(); ok && entry.Version <= last.Version {
		return c, fmt.Errorf("append version %d after %d: %w", entry.Version, last.Version, ErrVersionOrder)
	}

	entries := make([]Entry, len(c.entries)+1)
	copy(entries, c.entries)
	entries[len(entries)-1] = entry
	return Chain{entries: entries}, nil
}

// GetAt returns the entry visible at the given version: the entry with
// the greatest version at or below it. ok is false when no entry is
// old enough. A tombstone is returned with ok true so callers can
// distinguish "removed as of version" from "never existed".
func (c Chain) GetAt(version storage.Version) (Entry, bool) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Version > version
	})
	if i == 0 {
		return Entry{}, false
	}
	return c.entries[i-1], true
}

// CompactBelow returns the chain with entries below discardBelow
// removed, except the single newest such entry: a reader whose snapshot
// falls in the discarded gap must still resolve. Returns the number of
// entries removed.
func (c Chain) CompactBelow(discardBelow storage.Version) (Chain, int) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Version >= discardBelow
	})
	if i <= 1 {
		return c, 0
	}

	removed := i - 1
	// A shrunk chain must own a fresh array; resharing would let a
	// later Append write into entries older snapshots still read.
	entries := make([]Entry, len(c.entries)-removed)
	copy(entries, c.entries[removed:])
	return Chain{entries: entries}, removed
}

// Trim returns the chain with history at or below upTo pruned, always
// retaining the chain's newest keepLast entries. upTo zero means no
// version bound. keepLast below 1 is treated as 1 so a trim can never
// remove the current visible entry. Returns the number of entries
// removed.
func (c Chain) Trim(upTo storage.Version, keepLast int) (Chain, int) {
	if keepLast < 1 {
		keepLast = 1
	}

	removable := len(c.entries) - keepLast
	if removable <= 0 {
		return c, 0
	}

	if upTo > 0 {
		bound := sort.Search(len(c.entries), func(i int) bool {
			return c.entries[i].Version > upTo
		})
		if bound < removable {
			removable = bound
		}
	}
	if removable <= 0 {
		return c, 0
	}

	entries := make([]Entry, len(c.entries)-removable)
	copy(entries, c.entries[removable:])
	return Chain{entries: entries}, removable
}
