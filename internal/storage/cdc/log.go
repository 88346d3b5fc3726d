package cdc

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/strata-db/strata/internal/storage"
)

// Buffer size constants.
const (
	// DefaultHistorySize is the default capacity of the resume history.
	DefaultHistorySize = 4096

	// DefaultSubscriberBuffer is the default per-subscription buffer.
	DefaultSubscriberBuffer = 256
)

// Commit log errors.
var (
	// ErrLogClosed is returned when an operation runs against a closed
	// commit log.
	ErrLogClosed = errors.New("cdc: commit log closed")

	// ErrHistoryTrimmed is returned when a requested range starts below
	// the oldest event still held in the history buffer.
	ErrHistoryTrimmed = errors.New("cdc: change history trimmed past requested version")
)

// LogConfig configures a CommitLog.
type LogConfig struct {
	// HistorySize is the number of recent events retained for Range,
	// Scan, and resume.
	HistorySize int

	// SubscriberBuffer is the per-subscription channel capacity.
	SubscriberBuffer int

	// Logger receives feed diagnostics.
	Logger zerolog.Logger
}

// DefaultLogConfig returns a config with default sizes and a silent
// logger.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		HistorySize:      DefaultHistorySize,
		SubscriberBuffer: DefaultSubscriberBuffer,
		Logger:           zerolog.Nop(),
	}
}

// Validate normalizes non-positive sizes to their defaults.
func (c *LogConfig) Validate() error {
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}
	return nil
}

// CommitLog is the change feed of the engine. Append records the event
// in the history buffer and broadcasts it to subscriptions with a
// non-blocking send per subscriber, so a slow consumer loses events
// rather than stalling a commit.
//
// Commits are serialized, so events arrive in ascending version order.
type CommitLog struct {
	// history retains recent events for Range, Scan, and resume.
	history *historyBuffer

	// subscribers maps SubscriptionID to *Subscription.
	subscribers sync.Map

	// scanMu protects scanCursor.
	scanMu sync.Mutex

	// scanCursor is the version the polled consumer has seen up to.
	scanCursor storage.Version

	nextSubID       atomic.Uint64
	subscriberCount atomic.Int64
	appended        atomic.Uint64
	dropped         atomic.Uint64

	subBuffer int
	logger    zerolog.Logger

	closed atomic.Bool
}

// LogStats contains commit log statistics.
type LogStats struct {
	// Appended counts events recorded in the feed.
	Appended uint64

	// Dropped counts subscription deliveries discarded because a
	// subscriber's buffer was full.
	Dropped uint64

	// Subscribers is the number of active subscriptions.
	Subscribers int64

	// HistoryLen is the number of events in the history buffer.
	HistoryLen int

	// MinVersion is the oldest version still in history, 0 when empty.
	MinVersion storage.Version

	// MaxVersion is the newest version in history, 0 when empty.
	MaxVersion storage.Version
}

// NewCommitLog creates a commit log.
func NewCommitLog(cfg LogConfig) *CommitLog {
	_ = cfg.Validate()

	return &CommitLog{
		history:   newHistoryBuffer(cfg.HistorySize),
		subBuffer: cfg.SubscriberBuffer,
		logger:    cfg.Logger,
	}
}

// Append records an event and broadcasts it to matching subscriptions.
// Delivery is non-blocking per subscriber: a full subscription buffer
// drops the event for that subscriber and counts the drop. Returns
// false when the log is closed.
func (l *CommitLog) Append(event CommitEvent) bool {
	if l.closed.Load() {
		return false
	}

	l.history.Push(event)
	l.appended.Add(1)

	if l.subscriberCount.Load() == 0 {
		return true
	}

	l.subscribers.Range(func(_, value interface{}) bool {
		sub := value.(*Subscription)
		if sub.Filter.Matches(&event) && !sub.Send(event) {
			l.dropped.Add(1)
			l.logger.Debug().
				Uint64("version", uint64(event.Version)).
				Uint64("subscription", uint64(sub.ID)).
				Msg("subscriber buffer full, event dropped")
		}
		return true
	})

	return true
}

// Range returns the retained events with from <= Version <= to in
// ascending version order. A zero from starts at the oldest retained
// event; a zero to ends at the newest. Returns ErrHistoryTrimmed when
// from is older than the oldest retained event.
func (l *CommitLog) Range(from, to storage.Version) ([]CommitEvent, error) {
	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	events, ok := l.history.Between(from, to)
	if !ok {
		return nil, ErrHistoryTrimmed
	}
	return events, nil
}

// Scan returns up to limit events the polled consumer has not seen yet
// and advances the consumer cursor past them. A non-positive limit
// returns all unseen retained events. Events that aged out of the
// history buffer before being scanned are skipped.
func (l *CommitLog) Scan(limit int) ([]CommitEvent, error) {
	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	events := l.history.After(l.scanCursor, limit)
	if len(events) > 0 {
		l.scanCursor = events[len(events)-1].Version
	}
	return events, nil
}

// Subscribe creates a live subscription with the given filter.
func (l *CommitLog) Subscribe(filter Filter) (*Subscription, error) {
	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	id := SubscriptionID(l.nextSubID.Add(1))
	sub := NewSubscription(id, filter, l.subBuffer)
	l.subscribers.Store(id, sub)
	l.subscriberCount.Add(1)
	return sub, nil
}

// SubscribeFrom creates a subscription and replays retained events with
// Version > from into it before live delivery starts. Returns
// ErrHistoryTrimmed when from is older than the oldest retained event.
func (l *CommitLog) SubscribeFrom(filter Filter, from storage.Version) (*Subscription, error) {
	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	events, ok := l.history.Between(from+1, 0)
	if !ok {
		return nil, ErrHistoryTrimmed
	}

	sub, err := l.Subscribe(filter)
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		if filter.Matches(&event) {
			sub.Send(event)
		}
	}

	return sub, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (l *CommitLog) Unsubscribe(id SubscriptionID) {
	if value, ok := l.subscribers.LoadAndDelete(id); ok {
		sub := value.(*Subscription)
		sub.Close()
		l.subscriberCount.Add(-1)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (l *CommitLog) SubscriberCount() int64 {
	return l.subscriberCount.Load()
}

// Stats returns commit log statistics.
func (l *CommitLog) Stats() LogStats {
	return LogStats{
		Appended:    l.appended.Load(),
		Dropped:     l.dropped.Load(),
		Subscribers: l.subscriberCount.Load(),
		HistoryLen:  l.history.Len(),
		MinVersion:  l.history.MinVersion(),
		MaxVersion:  l.history.MaxVersion(),
	}
}

// Close closes every subscription and releases the log. Close is
// idempotent.
func (l *CommitLog) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	l.subscribers.Range(func(key, value interface{}) bool {
		sub := value.(*Subscription)
		sub.Close()
		l.subscribers.Delete(key)
		return true
	})
	l.subscriberCount.Store(0)

	l.logger.Debug().
		Uint64("appended", l.appended.Load()).
		Uint64("dropped", l.dropped.Load()).
		Msg("commit log closed")

	return nil
}
