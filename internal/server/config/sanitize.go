package config

import "github.com/yndnr/docmesh-go/internal/telemetry/logger"

// Sanitize returns a copy of cfg that is safe to log. Peer URL credentials
// are masked.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Cluster.Peers = make([]PeerConfig, len(cfg.Cluster.Peers))
	for i, p := range cfg.Cluster.Peers {
		p.URL = logger.RedactURLs(p.URL)
		sanitized.Cluster.Peers[i] = p
	}
	return &sanitized
}
