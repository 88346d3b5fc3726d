package engine

import (
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/strata-db/strata/internal/storage/mvcc"
	"github.com/strata-db/strata/internal/storage/tx"
)

// Options configures a StrataDB engine.
type Options struct {
	// Path is the directory holding the on-disk backend. Empty runs
	// the engine fully in memory.
	Path string

	// SyncWrites syncs every commit batch to stable storage before it
	// is acknowledged. Disabling trades crash durability for commit
	// latency. Default: true.
	SyncWrites bool

	// CacheSize is the disk backend's block cache size in bytes.
	// Default: 64MB.
	CacheSize int64

	// GCEnabled starts the background garbage collector.
	// Default: true.
	GCEnabled bool

	// GCMaxDelay is the longest pause between collection passes.
	// Default: 30 seconds.
	GCMaxDelay time.Duration

	// GCBatchLimit is the maximum number of chain entries removed per
	// collection pass. Default: 4096.
	GCBatchLimit int

	// FeedHistorySize is the number of recent commit events retained
	// for polled consumers and resume. Default: 4096 events.
	FeedHistorySize int

	// SubscriberBuffer is the per-subscription event buffer.
	// Default: 256 events.
	SubscriberBuffer int

	// MaxPendingBytes caps a single write transaction's buffered
	// payload. Default: 64MB.
	MaxPendingBytes int

	// FS overrides the disk backend's filesystem. Nil uses the
	// operating system filesystem; tests pass vfs.NewMem().
	FS vfs.FS

	// Logger receives engine diagnostics. The zero value is silent.
	Logger zerolog.Logger
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		SyncWrites:      true,
		GCEnabled:       true,
		GCMaxDelay:      mvcc.DefaultGCMaxDelay,
		GCBatchLimit:    mvcc.DefaultGCBatchLimit,
		MaxPendingBytes: tx.DefaultMaxPendingBytes,
		Logger:          zerolog.Nop(),
	}
}

// Validate checks the options, filling unset tuning fields with their
// defaults. Sizes for the backend and feed are normalized by the
// components themselves.
func (o *Options) Validate() error {
	if o.GCMaxDelay <= 0 {
		o.GCMaxDelay = mvcc.DefaultGCMaxDelay
	}
	if o.GCBatchLimit <= 0 {
		o.GCBatchLimit = mvcc.DefaultGCBatchLimit
	}
	if o.MaxPendingBytes <= 0 {
		o.MaxPendingBytes = tx.DefaultMaxPendingBytes
	}
	return nil
}

// WithPath sets the database directory.
func (o Options) WithPath(path string) Options {
	o.Path = path
	return o
}

// WithSyncWrites enables or disables synced commits.
func (o Options) WithSyncWrites(sync bool) Options {
	o.SyncWrites = sync
	return o
}

// WithCacheSize sets the disk backend's block cache size.
func (o Options) WithCacheSize(size int64) Options {
	o.CacheSize = size
	return o
}

// WithGCEnabled enables or disables background garbage collection.
func (o Options) WithGCEnabled(enabled bool) Options {
	o.GCEnabled = enabled
	return o
}

// WithGCMaxDelay sets the longest pause between collection passes.
func (o Options) WithGCMaxDelay(d time.Duration) Options {
	o.GCMaxDelay = d
	return o
}

// WithFeedHistorySize sets the retained change feed history.
func (o Options) WithFeedHistorySize(n int) Options {
	o.FeedHistorySize = n
	return o
}

// WithMaxPendingBytes sets the write transaction size cap.
func (o Options) WithMaxPendingBytes(n int) Options {
	o.MaxPendingBytes = n
	return o
}

// WithLogger sets the engine logger.
func (o Options) WithLogger(logger zerolog.Logger) Options {
	o.Logger = logger
	return o
}
