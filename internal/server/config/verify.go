package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
)

// Verify reports every invalid setting of cfg.
func Verify(cfg *ServerConfig) error {
	var errs []error
	errs = append(errs, verifyNode(&cfg.Node)...)
	errs = append(errs, verifyCluster(&cfg.Cluster, cfg.Node.Role)...)
	errs = append(errs, verifyStorage(&cfg.Storage)...)
	errs = append(errs, verifyReplication(&cfg.Replication)...)
	errs = append(errs, verifyMetrics(&cfg.Metrics)...)
	errs = append(errs, verifyLog(&cfg.Log)...)
	return errors.Join(errs...)
}

func verifyNode(cfg *NodeSection) []error {
	var errs []error
	switch cfg.Role {
	case RoleLeader:
		if cfg.Term == 0 {
			errs = append(errs, errors.New("node.term must be at least 1 for a leader"))
		}
	case RoleFollower:
	default:
		errs = append(errs, fmt.Errorf("node.role %q must be %q or %q", cfg.Role, RoleLeader, RoleFollower))
	}
	return errs
}

func verifyCluster(cfg *ClusterSection, role string) []error {
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		errs = append(errs, fmt.Errorf("cluster.addr: %w", err))
	}
	if cfg.QueueSize < 1 {
		errs = append(errs, errors.New("cluster.queue_size must be positive"))
	}
	if cfg.RedialBackoff <= 0 {
		errs = append(errs, errors.New("cluster.redial_backoff must be positive"))
	}
	if role == RoleLeader && len(cfg.Peers) == 0 {
		errs = append(errs, errors.New("cluster.peers is required for a leader"))
	}

	var seen []string
	for i, p := range cfg.Peers {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("cluster.peers[%d].id is required", i))
		} else if slices.Contains(seen, p.ID) {
			errs = append(errs, fmt.Errorf("cluster.peers[%d].id %q is duplicated", i, p.ID))
		}
		seen = append(seen, p.ID)

		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("cluster.peers[%d].url %q must be an http(s) URL", i, p.URL))
		}
	}
	return errs
}

func verifyStorage(cfg *StorageSection) []error {
	var errs []error
	if cfg.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	if cfg.Badger.GCThreshold <= 0 || cfg.Badger.GCThreshold >= 1 {
		errs = append(errs, errors.New("storage.badger.gc_threshold must be between 0 and 1"))
	}
	if cfg.Badger.GCInterval < 0 {
		errs = append(errs, errors.New("storage.badger.gc_interval must not be negative"))
	}
	return errs
}

func verifyReplication(cfg *ReplicationSection) []error {
	var errs []error
	if cfg.Interval <= 0 {
		errs = append(errs, errors.New("replication.interval must be positive"))
	}
	if cfg.EntryBatch < 1 {
		errs = append(errs, errors.New("replication.entry_batch must be positive"))
	}
	if cfg.MaxRounds < 1 {
		errs = append(errs, errors.New("replication.max_rounds must be positive"))
	}
	if cfg.ApplyBatch < 1 {
		errs = append(errs, errors.New("replication.apply_batch must be positive"))
	}
	if cfg.MaxBatchesPerRound < 0 || cfg.Workers < 0 || cfg.RateLimit < 0 {
		errs = append(errs, errors.New("replication limits must not be negative"))
	}
	return errs
}

func verifyMetrics(cfg *MetricsSection) []error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		errs = append(errs, fmt.Errorf("metrics.addr: %w", err))
	}
	if len(cfg.Path) == 0 || cfg.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", cfg.Path))
	}
	return errs
}

func verifyLog(cfg *LogSection) []error {
	var errs []error
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is invalid", cfg.Level))
	}
	if !slices.Contains([]string{"json", "text"}, cfg.Format) {
		errs = append(errs, fmt.Errorf("log.format %q is invalid", cfg.Format))
	}
	if !slices.Contains([]string{"slog", "zap"}, cfg.Backend) {
		errs = append(errs, fmt.Errorf("log.backend %q is invalid", cfg.Backend))
	}
	return errs
}
