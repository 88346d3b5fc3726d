package storage

// KeyRange bounds a scan. Start is inclusive, End is exclusive; a nil
// bound leaves that side unbounded.
type KeyRange struct {
	// Start is the first key included in the range. Nil scans from the
	// beginning of the key space.
	Start EncodedKey

	// End is the first key excluded from the range. Nil scans to the
	// end of the key space.
	End EncodedKey
}

// NewKeyRange returns the range [start, end).
func NewKeyRange(start, end EncodedKey) KeyRange {
	return KeyRange{Start: start, End: end}
}

// FullRange returns the unbounded range covering the whole key space.
func FullRange() KeyRange {
	return KeyRange{}
}

// PrefixRange returns the range covering every key that begins with
// prefix.
func PrefixRange(prefix EncodedKey) KeyRange {
	return KeyRange{Start: prefix.Clone(), End: PrefixSuccessor(prefix)}
}

// OwnerRange returns the range covering owner's entire partition.
func OwnerRange(owner Owner) KeyRange {
	return PrefixRange(owner.Prefix())
}

// Contains reports whether key falls inside the range.
func (r KeyRange) Contains(key EncodedKey) bool {
	if r.Start != nil && key.Compare(r.Start) < 0 {
		return false
	}
	if r.End != nil && key.Compare(r.End) >= 0 {
		return false
	}
	return true
}

// Empty reports whether the range cannot contain any key.
func (r KeyRange) Empty() bool {
	return r.Start != nil && r.End != nil && r.Start.Compare(r.End) >= 0
}

// PrefixSuccessor returns the smallest key that is greater than every
// key beginning with prefix, or nil when no such key exists (the
// prefix is empty or all 0xFF bytes).
func PrefixSuccessor(prefix EncodedKey) EncodedKey {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xFF {
			succ := make(EncodedKey, i+1)
			copy(succ, prefix[:i+1])
			succ[i]++
			return succ
		}
	}
	return nil
}
