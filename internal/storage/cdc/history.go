package cdc

import (
	"sync"

	"github.com/strata-db/strata/internal/storage"
)

// historyBuffer is a fixed-size circular buffer of recent commit
// events, indexed by version. Events arrive in ascending version order
// from the serialized commit path; once the buffer is full the oldest
// event is overwritten.
type historyBuffer struct {
	events     []CommitEvent
	head       int
	tail       int
	size       int
	capacity   int
	minVersion storage.Version
	mu         sync.RWMutex
}

// newHistoryBuffer creates a history buffer with the given capacity.
func newHistoryBuffer(capacity int) *historyBuffer {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &historyBuffer{
		events:   make([]CommitEvent, capacity),
		capacity: capacity,
	}
}

// Push adds an event to the buffer, overwriting the oldest event when
// the buffer is full.
func (h *historyBuffer) Push(event CommitEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events[h.tail] = event
	h.tail = (h.tail + 1) % h.capacity

	if h.size < h.capacity {
		h.size++
		if h.size == 1 {
			h.minVersion = event.Version
		}
	} else {
		h.head = (h.head + 1) % h.capacity
		h.minVersion = h.events[h.head].Version
	}
}

// Between returns the buffered events with from <= Version <= to in
// ascending version order. A zero from means from the oldest buffered
// event; a zero to means up to the newest. ok is false when from is
// older than the oldest buffered event, meaning part of the requested
// range has been trimmed.
func (h *historyBuffer) Between(from, to storage.Version) ([]CommitEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.size == 0 {
		return []CommitEvent{}, true
	}

	if from > 0 && from < h.minVersion {
		return nil, false
	}

	var result []CommitEvent
	for i := 0; i < h.size; i++ {
		event := h.events[(h.head+i)%h.capacity]
		if event.Version < from {
			continue
		}
		if to > 0 && event.Version > to {
			break
		}
		result = append(result, event)
	}
	return result, true
}

// After returns up to limit buffered events with Version > v in
// ascending version order. A non-positive limit returns all of them.
func (h *historyBuffer) After(v storage.Version, limit int) []CommitEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []CommitEvent
	for i := 0; i < h.size; i++ {
		event := h.events[(h.head+i)%h.capacity]
		if event.Version <= v {
			continue
		}
		result = append(result, event)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// Len returns the number of buffered events.
func (h *historyBuffer) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// MinVersion returns the oldest buffered version, or 0 when empty.
func (h *historyBuffer) MinVersion() storage.Version {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return 0
	}
	return h.minVersion
}

// MaxVersion returns the newest buffered version, or 0 when empty.
func (h *historyBuffer) MaxVersion() storage.Version {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return 0
	}
	last := (h.tail - 1 + h.capacity) % h.capacity
	return h.events[last].Version
}
