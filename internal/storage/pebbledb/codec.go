package pebbledb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/strata-db/strata/internal/storage"
	"github.com/strata-db/strata/internal/storage/mvcc"
)

// Namespace bytes. Each key written to pebble starts with one of
// these, keeping the versioned rows, the metadata records, and the
// commit checkpoint in disjoint key spaces.
const (
	rowSpace  byte = 'r'
	metaSpace byte = 'm'
	ckptSpace byte = 'c'
)

// checkpointKey holds the version of the most recent commit.
var checkpointKey = []byte{ckptSpace}

// Codec errors.
var (
	// ErrCorruptChain is returned when a stored chain encoding cannot
	// be decoded.
	ErrCorruptChain = errors.New("pebbledb: corrupt chain encoding")
)

// Chain entries are encoded oldest first as a fixed header followed by
// the payload: 8-byte big-endian version, 1 flag byte, 4-byte
// big-endian payload length.
const (
	entryHeaderSize = 13

	flagTombstone byte = 1 << 0
)

// spaceKey prefixes key with the namespace byte.
func spaceKey(space byte, key []byte) []byte {
	out := make([]byte, len(key)+1)
	out[0] = space
	copy(out[1:], key)
	return out
}

// spaceBounds returns the pebble iteration bounds covering r within
// the namespace. A nil range bound falls back to the namespace's own
// bound, so the scan can never leak into a neighboring space.
func spaceBounds(space byte, r storage.KeyRange) (lower, upper []byte) {
	if r.Start != nil {
		lower = spaceKey(space, r.Start)
	} else {
		lower = []byte{space}
	}
	if r.End != nil {
		upper = spaceKey(space, r.End)
	} else {
		upper = []byte{space + 1}
	}
	return lower, upper
}

// appendChain appends the chain's encoding to dst and returns the
// extended slice.
func appendChain(dst []byte, entries []mvcc.Entry) []byte {
	size := 0
	for i := range entries {
		size += entryHeaderSize + len(entries[i].Value)
	}
	if cap(dst)-len(dst) < size {
		grown := make([]byte, len(dst), len(dst)+size)
		copy(grown, dst)
		dst = grown
	}

	for i := range entries {
		e := &entries[i]
		dst = binary.BigEndian.AppendUint64(dst, uint64(e.Version))
		var flags byte
		if e.Tombstone {
			flags |= flagTombstone
		}
		dst = append(dst, flags)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(e.Value)))
		dst = append(dst, e.Value...)
	}
	return dst
}

// chainLen counts the entries in a stored chain without decoding
// payloads. Truncated trailing bytes are not counted.
func chainLen(data []byte) int {
	n := 0
	for len(data) >= entryHeaderSize {
		vlen := int(binary.BigEndian.Uint32(data[9:]))
		data = data[entryHeaderSize:]
		if vlen > len(data) {
			break
		}
		data = data[vlen:]
		n++
	}
	return n
}

// decodeChain decodes a stored chain. Payload bytes are copied out of
// data, so the result stays valid after pebble reclaims the buffer.
func decodeChain(data []byte) (mvcc.Chain, error) {
	if len(data) == 0 {
		return mvcc.Chain{}, nil
	}

	var entries []mvcc.Entry
	for len(data) > 0 {
		if len(data) < entryHeaderSize {
			return mvcc.Chain{}, fmt.Errorf("%d trailing bytes: %w", len(data), ErrCorruptChain)
		}
		version := storage.Version(binary.BigEndian.Uint64(data))
		flags := data[8]
		vlen := int(binary.BigEndian.Uint32(data[9:]))
		data = data[entryHeaderSize:]

		if vlen > len(data) {
			return mvcc.Chain{}, fmt.Errorf("payload of %d bytes exceeds remaining %d: %w", vlen, len(data), ErrCorruptChain)
		}
		var value []byte
		if vlen > 0 {
			value = append([]byte(nil), data[:vlen]...)
		}
		data = data[vlen:]

		entries = append(entries, mvcc.Entry{
			Version:   version,
			Value:     value,
			Tombstone: flags&flagTombstone != 0,
		})
	}
	return mvcc.NewChain(entries...), nil
}
