package cdc

import "github.com/strata-db/strata/internal/storage"

// Filter defines criteria for selecting commit events. A subscription
// receives the whole event when at least one of its entries matches.
type Filter struct {
	// Owners restricts matching to entries of these owners.
	// Empty matches all owners.
	Owners []storage.Owner
	// Kinds restricts matching by change kind. Empty matches all kinds.
	Kinds []ChangeKind
}

// Matches returns true if the event has at least one matching entry.
func (f *Filter) Matches(event *CommitEvent) bool {
	if event == nil {
		return false
	}
	if len(f.Owners) == 0 && len(f.Kinds) == 0 {
		return true
	}
	for i := range event.Entries {
		if f.matchesEntry(&event.Entries[i]) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesEntry(entry *ChangeEntry) bool {
	if len(f.Kinds) > 0 {
		matched := false
		for _, kind := range f.Kinds {
			if entry.Kind == kind {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Owners) == 0 {
		return true
	}
	for _, owner := range f.Owners {
		if entry.Owner == owner {
			return true
		}
	}
	return false
}

// MatchAll returns a filter that matches every event.
func MatchAll() Filter {
	return Filter{}
}

// MatchOwner returns a filter that matches events touching the given
// owner's partition.
func MatchOwner(owner storage.Owner) Filter {
	return Filter{Owners: []storage.Owner{owner}}
}

// MatchKinds returns a filter that matches events containing any of the
// given change kinds.
func MatchKinds(kinds ...ChangeKind) Filter {
	return Filter{Kinds: kinds}
}
