// Package metric provides Prometheus metrics for docmesh.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: the replication and transport metric registry
//
// Metrics include:
//
//   - Rollback rounds by outcome
//   - Documents removed and update records applied during rollback
//   - Log entries applied by forward replication
//   - Peer requests by kind and unanswered requests
//
// Storage sizes are registered by the document store itself.
// Metrics are exposed at /metrics in Prometheus format.
package metric
