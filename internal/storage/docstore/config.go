package docstore

import "log/slog"

// Config configures a Store.
type Config struct {
	// Dir is the storage directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory. Used by tests and ephemeral nodes.
	InMemory bool

	// Badger-specific configuration
	Badger BadgerConfig

	// Logger receives store and Badger log output.
	Logger *slog.Logger
}

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic value log GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// SyncWrites enables fsync after each write.
	// Default: true, rollback markers must survive a crash.
	SyncWrites bool

	// DetectConflicts enables transaction conflict detection.
	// Default: true
	DetectConflicts bool
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        64 << 20,  // 64MB
		ValueLogFileSize: 256 << 20, // 256MB
		NumMemtables:     2,
		SyncWrites:       true,
		DetectConflicts:  true,
	}
}
