package storage

import "fmt"

// DeltaKind discriminates the mutation a Delta describes.
type DeltaKind uint8

// Delta kind constants.
const (
	// DeltaSet writes a value for a key.
	DeltaSet DeltaKind = iota + 1

	// DeltaRemove writes a tombstone for a key.
	DeltaRemove

	// DeltaDrop prunes committed history for a key. Drop deltas never
	// reach the change feed and never participate in conflict
	// detection.
	DeltaDrop
)

// String returns a human-readable name for the delta kind.
func (k DeltaKind) String() string {
	switch k {
	case DeltaSet:
		return "set"
	case DeltaRemove:
		return "remove"
	case DeltaDrop:
		return "drop"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Delta describes one logical mutation. Deltas accumulate in a write
// transaction's pending set and are applied atomically by the backend
// at commit time.
type Delta struct {
	// Kind selects the mutation.
	Kind DeltaKind

	// Key is the full encoded key the mutation applies to.
	Key EncodedKey

	// Value is the payload written by DeltaSet. Unused otherwise.
	Value []byte

	// UpToVersion bounds a DeltaDrop: only entries with a version at or
	// below it are candidates for pruning. Zero means no bound.
	UpToVersion Version

	// KeepLast is the number of newest entries a DeltaDrop always
	// retains. Values below 1 are treated as 1, so a drop can never
	// delete a key's current visible entry.
	KeepLast int

	// Sequence orders deltas within their transaction for the change
	// feed. Assigned by the write transaction, not by callers.
	Sequence uint16
}

// NewSetDelta returns a Delta that writes value for key.
func NewSetDelta(key EncodedKey, value []byte) Delta {
	return Delta{Kind: DeltaSet, Key: key, Value: value}
}

// NewRemoveDelta returns a Delta that writes a tombstone for key.
func NewRemoveDelta(key EncodedKey) Delta {
	return Delta{Kind: DeltaRemove, Key: key}
}

// NewDropDelta returns a Delta that prunes key's history at or below
// upTo while retaining the newest keepLast entries.
func NewDropDelta(key EncodedKey, upTo Version, keepLast int) Delta {
	return Delta{Kind: DeltaDrop, Key: key, UpToVersion: upTo, KeepLast: keepLast}
}

// Validate checks that the delta is well formed.
func (d Delta) Validate() error {
	switch d.Kind {
	case DeltaSet, DeltaRemove, DeltaDrop:
	default:
		return fmt.Errorf("kind %d: %w", uint8(d.Kind), ErrInvalidDelta)
	}

	if len(d.Key) < OwnerPrefixSize {
		return fmt.Errorf("key of %d bytes: %w", len(d.Key), ErrShortKey)
	}

	return nil
}
