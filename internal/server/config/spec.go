package config

import "time"

// Node roles.
const (
	RoleLeader   = "leader"
	RoleFollower = "follower"
)

// ServerConfig is the root configuration of docmesh-server.
type ServerConfig struct {
	Node        NodeSection        `koanf:"node"`
	Cluster     ClusterSection     `koanf:"cluster"`
	Storage     StorageSection     `koanf:"storage"`
	Replication ReplicationSection `koanf:"replication"`
	Metrics     MetricsSection     `koanf:"metrics"`
	Log         LogSection         `koanf:"log"`
}

// NodeSection identifies this node.
type NodeSection struct {
	// ID is the node identifier. Generated at startup when empty.
	ID string `koanf:"id"`
	// Role is "leader" or "follower". Leadership is static.
	Role string `koanf:"role"`
	// Term is the leader term written into new log entries.
	Term uint64 `koanf:"term"`
}

// ClusterSection configures the peer transport.
type ClusterSection struct {
	// Addr is the listen address of the peer RPC endpoint.
	Addr string `koanf:"addr"`
	// Peers are the followers a leader replicates to.
	Peers []PeerConfig `koanf:"peers"`
	// QueueSize is the outbound request queue per peer.
	QueueSize int `koanf:"queue_size"`
	// RedialBackoff is the wait between connection attempts.
	RedialBackoff time.Duration `koanf:"redial_backoff"`
}

// PeerConfig is one remote node.
type PeerConfig struct {
	ID  string `koanf:"id"`
	URL string `koanf:"url"`
}

// StorageSection configures the document store.
type StorageSection struct {
	DataDir string        `koanf:"data_dir"`
	Badger  BadgerSection `koanf:"badger"`
}

// BadgerSection tunes Badger.
type BadgerSection struct {
	GCInterval         time.Duration `koanf:"gc_interval"`
	GCThreshold        float64       `koanf:"gc_threshold"`
	CacheSizeMB        int64         `koanf:"cache_size_mb"`
	ValueLogFileSizeMB int64         `koanf:"value_log_file_size_mb"`
	NumMemtables       int           `koanf:"num_memtables"`
	SyncWrites         bool          `koanf:"sync_writes"`
}

// ReplicationSection configures both replication roles.
type ReplicationSection struct {
	// Leader
	Interval   time.Duration `koanf:"interval"`
	EntryBatch int           `koanf:"entry_batch"`
	MaxRounds  int           `koanf:"max_rounds"`

	// Follower
	Workers            int     `koanf:"workers"`
	ApplyBatch         int     `koanf:"apply_batch"`
	MaxBatchesPerRound int     `koanf:"max_batches_per_round"`
	RateLimit          float64 `koanf:"rate_limit"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path"`
}

// LogSection configures logging.
type LogSection struct {
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`
	Backend string `koanf:"backend"`
}
