package cdc

import (
	"sync/atomic"
	"time"
)

// SubscriptionID is a unique identifier for a subscription.
type SubscriptionID uint64

// Subscription represents a live change feed subscription.
type Subscription struct {
	// ID is the unique identifier for this subscription.
	ID SubscriptionID
	// Filter determines which events this subscription receives.
	Filter Filter
	// Events receives matching commit events.
	Events chan CommitEvent
	// Created is when the subscription was created.
	Created time.Time

	dropped atomic.Uint64
	closed  atomic.Bool
}

// NewSubscription creates a subscription with the given filter and
// buffer size.
func NewSubscription(id SubscriptionID, filter Filter, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Subscription{
		ID:      id,
		Filter:  filter,
		Events:  make(chan CommitEvent, bufferSize),
		Created: time.Now(),
	}
}

// Send attempts to deliver an event to the subscription. Returns true
// if the event was delivered, false if the buffer is full, in which
// case the event is counted as dropped rather than blocking the
// sender.
func (s *Subscription) Send(event CommitEvent) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.Events <- event:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close closes the subscription's channel. Safe to call multiple times.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.Events)
	}
}

// IsClosed returns true if the subscription has been closed.
func (s *Subscription) IsClosed() bool {
	return s.closed.Load()
}

// Dropped returns the number of events dropped because the
// subscription's buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}
