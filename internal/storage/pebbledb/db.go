package pebbledb

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/strata-db/strata/internal/storage/bufpool"
)

// Default configuration values.
const (
	// DefaultCacheSize is the default block cache size in bytes.
	DefaultCacheSize = 64 << 20

	// DefaultMemTableSize is the default write buffer size in bytes.
	DefaultMemTableSize = 32 << 20

	// DefaultL0CompactionThreshold is the L0 file count that triggers
	// a compaction.
	DefaultL0CompactionThreshold = 4

	// DefaultL0StopWritesThreshold is the L0 file count that pauses
	// writes.
	DefaultL0StopWritesThreshold = 12
)

// Config holds configuration options for a pebble-backed database.
type Config struct {
	// Dir is the directory holding the database files.
	Dir string

	// CacheSize is the block cache size in bytes.
	// Default: 64MB.
	CacheSize int64

	// MemTableSize is the write buffer size in bytes.
	// Default: 32MB.
	MemTableSize uint64

	// L0CompactionThreshold is the number of L0 files before a
	// compaction starts. Default: 4.
	L0CompactionThreshold int

	// L0StopWritesThreshold is the number of L0 files that pauses
	// writes. Default: 12.
	L0StopWritesThreshold int

	// DisableSync skips WAL syncing on commits and metadata writes.
	// Testing only.
	DisableSync bool

	// FS overrides the filesystem. Nil uses the operating system
	// filesystem; tests pass vfs.NewMem().
	FS vfs.FS

	// Pool supplies scratch buffers for chain encoding, typically
	// shared with the engine. Nil creates a private pool.
	Pool *bufpool.Pool

	// Logger receives pebble's own diagnostics. The zero value is
	// silent.
	Logger zerolog.Logger
}

// DefaultConfig returns the default configuration for a database
// rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                   dir,
		CacheSize:             DefaultCacheSize,
		MemTableSize:          DefaultMemTableSize,
		L0CompactionThreshold: DefaultL0CompactionThreshold,
		L0StopWritesThreshold: DefaultL0StopWritesThreshold,
		Logger:                zerolog.Nop(),
	}
}

// Validate checks the configuration, filling unset tuning fields with
// their defaults.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("pebbledb: config requires a database directory")
	}

	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.MemTableSize == 0 {
		c.MemTableSize = DefaultMemTableSize
	}
	if c.L0CompactionThreshold <= 0 {
		c.L0CompactionThreshold = DefaultL0CompactionThreshold
	}
	if c.L0StopWritesThreshold <= 0 {
		c.L0StopWritesThreshold = DefaultL0StopWritesThreshold
	}
	return nil
}

// pebbleLogger adapts zerolog for pebble.
type pebbleLogger struct {
	logger zerolog.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf("[pebble] "+format, args...)
}

// DB is a pebble database hosting one versioned row store and one
// unversioned metadata store.
type DB struct {
	db     *pebble.DB
	logger zerolog.Logger

	// sync selects the write option for commits and metadata writes.
	sync *pebble.WriteOptions

	// closed makes Close idempotent.
	closed atomic.Bool

	rows *Store
	meta *MetaStore
}

// Open opens, creating if necessary, a pebble database under cfg.Dir.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cache := pebble.NewCache(cfg.CacheSize)
	defer cache.Unref() // the database holds its own reference

	opts := &pebble.Options{
		Cache:                 cache,
		MemTableSize:          cfg.MemTableSize,
		L0CompactionThreshold: cfg.L0CompactionThreshold,
		L0StopWritesThreshold: cfg.L0StopWritesThreshold,
		Logger:                &pebbleLogger{logger: cfg.Logger},
		// Bloom filters for faster point lookups (10 bits per key).
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)},
			{FilterPolicy: bloom.FilterPolicy(10)},
			{FilterPolicy: bloom.FilterPolicy(10)},
			{FilterPolicy: bloom.FilterPolicy(10)},
			{FilterPolicy: bloom.FilterPolicy(10)},
			{FilterPolicy: bloom.FilterPolicy(10)},
			{FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	if cfg.FS != nil {
		opts.FS = cfg.FS
	}

	pdb, err := pebble.Open(cfg.Dir, opts)
	if err != nil {
		return nil, fmt.Errorf("pebbledb: open %s: %w", cfg.Dir, err)
	}

	d := &DB{
		db:     pdb,
		logger: cfg.Logger,
		sync:   pebble.Sync,
	}
	if cfg.DisableSync {
		d.sync = pebble.NoSync
	}
	pool := cfg.Pool
	if pool == nil {
		pool = bufpool.NewPool(0, 0)
	}
	d.rows = &Store{db: d, pool: pool}
	d.meta = &MetaStore{db: d}

	d.logger.Debug().Str("dir", cfg.Dir).Msg("pebble database opened")
	return d, nil
}

// Rows returns the versioned row store view.
func (d *DB) Rows() *Store {
	return d.rows
}

// Meta returns the unversioned metadata store view.
func (d *DB) Meta() *MetaStore {
	return d.meta
}

// Close closes the database. Close is idempotent; closing either view
// closes the shared database as well.
func (d *DB) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.db.Close()
}
