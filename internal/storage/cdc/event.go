// Package cdc turns committed transactions into a change feed. Every
// commit produces one CommitEvent describing the keys it touched; the
// CommitLog fans events out to polled consumers and live subscribers
// without ever blocking the commit path.
package cdc

import (
	"sort"
	"time"

	"github.com/strata-db/strata/internal/storage"
)

// ChangeKind represents the kind of change an entry records.
type ChangeKind uint8

const (
	// ChangeSet indicates a key was written.
	ChangeSet ChangeKind = iota + 1
	// ChangeRemove indicates a key was deleted.
	ChangeRemove
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeSet:
		return "set"
	case ChangeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// ChangeEntry describes one key touched by a commit.
type ChangeEntry struct {
	// Owner is the partition the key belongs to.
	Owner storage.Owner
	// Key is the full encoded key, including the owner prefix.
	Key storage.EncodedKey
	// Kind is the change kind (set or remove).
	Kind ChangeKind
	// Sequence orders entries within their commit.
	Sequence uint16
}

// CommitEvent records the changes of a single committed transaction.
type CommitEvent struct {
	// Version is the commit version the changes were applied at.
	Version storage.Version
	// Timestamp is when the event was built.
	Timestamp time.Time
	// Entries lists the touched keys in sequence order.
	Entries []ChangeEntry
}

// NewCommitEvent builds the change record for a commit. Drop deltas are
// filtered out: a history prune is not a discrete change. Entries are
// ordered by sequence, recovering mutation order from the key-ordered
// delta batch. Keys are copied, so callers may reuse delta buffers
// after the commit returns. ok is false when no entry remains, in
// which case no event should be published.
func NewCommitEvent(version storage.Version, deltas []storage.Delta) (CommitEvent, bool) {
	event := CommitEvent{
		Version:   version,
		Timestamp: time.Now(),
	}

	for _, d := range deltas {
		var kind ChangeKind
		switch d.Kind {
		case storage.DeltaSet:
			kind = ChangeSet
		case storage.DeltaRemove:
			kind = ChangeRemove
		default:
			continue
		}

		owner, _, err := storage.SplitOwner(d.Key)
		if err != nil {
			continue
		}

		event.Entries = append(event.Entries, ChangeEntry{
			Owner:    owner,
			Key:      d.Key.Clone(),
			Kind:     kind,
			Sequence: d.Sequence,
		})
	}

	sort.Slice(event.Entries, func(i, j int) bool {
		return event.Entries[i].Sequence < event.Entries[j].Sequence
	})

	return event, len(event.Entries) > 0
}

// Clone creates a deep copy of the event.
func (e *CommitEvent) Clone() *CommitEvent {
	clone := &CommitEvent{
		Version:   e.Version,
		Timestamp: e.Timestamp,
	}
	if e.Entries != nil {
		clone.Entries = make([]ChangeEntry, len(e.Entries))
		for i, entry := range e.Entries {
			entry.Key = entry.Key.Clone()
			clone.Entries[i] = entry
		}
	}
	return clone
}
