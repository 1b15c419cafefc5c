package config

import "time"

// Default configuration values.
const (
	DefaultClusterAddr   = "127.0.0.1:7400"
	DefaultQueueSize     = 128
	DefaultRedialBackoff = time.Second

	DefaultDataDir = "/var/lib/docmesh/data"

	DefaultInterval           = time.Second
	DefaultEntryBatch         = 64
	DefaultMaxRounds          = 1024
	DefaultApplyBatch         = 256
	DefaultMaxBatchesPerRound = 16

	DefaultMetricsAddr = "127.0.0.1:9400"
	DefaultMetricsPath = "/metrics"

	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultLogBackend = "slog"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Node: NodeSection{
			Role: RoleFollower,
			Term: 1,
		},
		Cluster: ClusterSection{
			Addr:          DefaultClusterAddr,
			QueueSize:     DefaultQueueSize,
			RedialBackoff: DefaultRedialBackoff,
		},
		Storage: StorageSection{
			DataDir: DefaultDataDir,
			Badger: BadgerSection{
				GCInterval:         10 * time.Minute,
				GCThreshold:        0.5,
				CacheSizeMB:        64,
				ValueLogFileSizeMB: 256,
				NumMemtables:       2,
				SyncWrites:         true,
			},
		},
		Replication: ReplicationSection{
			Interval:           DefaultInterval,
			EntryBatch:         DefaultEntryBatch,
			MaxRounds:          DefaultMaxRounds,
			ApplyBatch:         DefaultApplyBatch,
			MaxBatchesPerRound: DefaultMaxBatchesPerRound,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
			Path:    DefaultMetricsPath,
		},
		Log: LogSection{
			Level:   DefaultLogLevel,
			Format:  DefaultLogFormat,
			Backend: DefaultLogBackend,
		},
	}
}
