package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/yndnr/docmesh-go/internal/cluster/follower"
	"github.com/yndnr/docmesh-go/internal/cluster/leader"
	"github.com/yndnr/docmesh-go/internal/storage/docstore"
	"github.com/yndnr/docmesh-go/internal/telemetry/logger"
)

// EnsureNodeID fills an empty node.id with a generated one.
func EnsureNodeID(cfg *ServerConfig) (bool, error) {
	if cfg.Node.ID != "" {
		return false, nil
	}
	id, err := generateNodeID()
	if err != nil {
		return false, err
	}
	cfg.Node.ID = id
	return true, nil
}

// generateNodeID returns "dmnode-" followed by 16 hex characters.
func generateNodeID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate node id: %w", err)
	}
	return "dmnode-" + hex.EncodeToString(buf), nil
}

// ToStoreConfig maps the storage section.
func ToStoreConfig(cfg *ServerConfig, l *slog.Logger) docstore.Config {
	b := cfg.Storage.Badger
	return docstore.Config{
		Dir: cfg.Storage.DataDir,
		Badger: docstore.BadgerConfig{
			GCInterval:       b.GCInterval.String(),
			GCThreshold:      b.GCThreshold,
			CacheSize:        b.CacheSizeMB << 20,
			ValueLogFileSize: b.ValueLogFileSizeMB << 20,
			NumMemtables:     b.NumMemtables,
			SyncWrites:       b.SyncWrites,
			DetectConflicts:  true,
		},
		Logger: l,
	}
}

// ToFollowerConfig maps the follower settings.
func ToFollowerConfig(cfg *ServerConfig) follower.Config {
	r := cfg.Replication
	return follower.Config{
		Workers: r.Workers,
		Applier: follower.ApplierConfig{
			BatchSize:          r.ApplyBatch,
			MaxBatchesPerRound: r.MaxBatchesPerRound,
			RateLimit:          r.RateLimit,
		},
	}
}

// ToLeaderConfig maps the leader settings.
func ToLeaderConfig(cfg *ServerConfig) leader.Config {
	return leader.Config{
		BatchSize: cfg.Replication.EntryBatch,
		MaxRounds: cfg.Replication.MaxRounds,
	}
}

// ToLoggerConfig maps the log section.
func ToLoggerConfig(cfg *ServerConfig) logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.Format = cfg.Log.Format
	lc.Backend = cfg.Log.Backend
	return lc
}
