package storage

import (
	"bytes"
	"fmt"

	"github.com/strata-db/strata/internal/keycodec"
)

// Version is a global commit version. The transaction manager allocates
// versions from a strictly increasing counter; a version belongs to at
// most one transaction and is never reused.
type Version uint64

// TxID uniquely identifies a transaction within the process lifetime.
type TxID uint64

// EncodedKey is an order-preserving binary key. Comparing two encoded
// keys byte-wise is equivalent to comparing their logical values, which
// is what lets backends serve range scans with raw byte comparison.
//
// Keys built by the engine always begin with an encoded Owner prefix.
type EncodedKey []byte

// Compare returns -1, 0, or 1 depending on whether k sorts before,
// equal to, or after other.
func (k EncodedKey) Compare(other EncodedKey) int {
	return bytes.Compare(k, other)
}

// Equal returns true if k and other are byte-wise identical.
func (k EncodedKey) Equal(other EncodedKey) bool {
	return bytes.Equal(k, other)
}

// Clone returns an independent copy of the key.
func (k EncodedKey) Clone() EncodedKey {
	if k == nil {
		return nil
	}
	return append(EncodedKey(nil), k...)
}

// OwnerKind classifies the namespace an Owner partitions.
type OwnerKind uint8

// Owner kind constants. The engine treats kinds as opaque routing
// bytes; these names are the conventions the upper layers use.
const (
	// OwnerTable holds rows of a user table.
	OwnerTable OwnerKind = iota + 1

	// OwnerIndex holds entries of a secondary index.
	OwnerIndex

	// OwnerView holds materialized rows of a view.
	OwnerView

	// OwnerFlow holds operator state of a dataflow node.
	OwnerFlow

	// OwnerSystem holds engine-internal records.
	OwnerSystem
)

// String returns a human-readable name for the owner kind.
func (k OwnerKind) String() string {
	switch k {
	case OwnerTable:
		return "table"
	case OwnerIndex:
		return "index"
	case OwnerView:
		return "view"
	case OwnerFlow:
		return "flow"
	case OwnerSystem:
		return "system"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// OwnerPrefixSize is the encoded size of an Owner prefix: one kind byte
// followed by a big-endian uint64 id.
const OwnerPrefixSize = 1 + keycodec.Uint64Size

// Owner identifies one storage partition: a table, index, view,
// dataflow operator, or system namespace. Chains belonging to different
// owners never share a partition, so scans route directly to their
// partition without false sharing.
type Owner struct {
	// Kind classifies the namespace.
	Kind OwnerKind

	// ID distinguishes owners of the same kind.
	ID uint64
}

// AppendPrefix appends the owner's encoded key prefix to dst and
// returns the extended slice.
func (o Owner) AppendPrefix(dst []byte) []byte {
	dst = append(dst, byte(o.Kind))
	return keycodec.AppendUint64(dst, o.ID)
}

// Prefix returns the owner's encoded key prefix.
func (o Owner) Prefix() EncodedKey {
	return o.AppendPrefix(make([]byte, 0, OwnerPrefixSize))
}

// Key builds an encoded key inside this owner's partition from an
// already-encoded suffix.
func (o Owner) Key(suffix []byte) EncodedKey {
	dst := make([]byte, 0, OwnerPrefixSize+len(suffix))
	dst = o.AppendPrefix(dst)
	return append(dst, suffix...)
}

// Compare orders owners by kind, then id. This matches the byte order
// of their encoded prefixes.
func (o Owner) Compare(other Owner) int {
	switch {
	case o.Kind < other.Kind:
		return -1
	case o.Kind > other.Kind:
		return 1
	case o.ID < other.ID:
		return -1
	case o.ID > other.ID:
		return 1
	default:
		return 0
	}
}

// String returns a human-readable owner label.
func (o Owner) String() string {
	return fmt.Sprintf("%s/%d", o.Kind, o.ID)
}

// SplitOwner splits an encoded key into its owner prefix and the
// remaining suffix. The suffix aliases the input key.
func SplitOwner(key EncodedKey) (Owner, EncodedKey, error) {
	if len(key) < OwnerPrefixSize {
		return Owner{}, nil, fmt.Errorf("key of %d bytes: %w", len(key), ErrShortKey)
	}

	id, _, err := keycodec.DecodeUint64(key[1:OwnerPrefixSize])
	if err != nil {
		return Owner{}, nil, fmt.Errorf("owner id: %w", err)
	}

	return Owner{Kind: OwnerKind(key[0]), ID: id}, key[OwnerPrefixSize:], nil
}

// Versioned is one versioned element returned by a backend read or
// yielded by a backend iterator.
type Versioned struct {
	// Key is the full encoded key, including the owner prefix.
	Key EncodedKey

	// Version is the commit version that wrote this entry.
	Version Version

	// Value is the stored payload. Empty when Tombstone is true.
	Value []byte

	// Tombstone marks a removal: the key was deleted as of Version.
	// Backend iterators may yield tombstones; user-level scans in the
	// engine filter them out.
	Tombstone bool
}
