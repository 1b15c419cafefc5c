package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docmesh"

// Rollback round outcomes.
const (
	OutcomeContinue = "continue"
	OutcomeUpdate   = "update"
	OutcomeMatch    = "match"
	OutcomeAbstain  = "abstain"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Follower metrics
	RollbackRounds           *prometheus.CounterVec
	RollbackDocumentsDeleted prometheus.Counter
	RollbackUpdatesApplied   prometheus.Counter
	EntriesApplied           prometheus.Counter

	// Leader metrics
	SyncsTotal *prometheus.CounterVec

	// Transport metrics
	RequestsTotal   *prometheus.CounterVec
	NoResponses     prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with every docmesh metric and the Go
// runtime collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		RollbackRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follower",
			Name:      "rollback_rounds_total",
			Help:      "Rollback rounds by outcome",
		}, []string{"outcome"}),
		RollbackDocumentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follower",
			Name:      "rollback_documents_deleted_total",
			Help:      "Speculative documents deleted by rollback",
		}),
		RollbackUpdatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follower",
			Name:      "rollback_updates_applied_total",
			Help:      "Update records applied to undo speculative changes",
		}),
		EntriesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follower",
			Name:      "entries_applied_total",
			Help:      "Log entries applied by forward replication",
		}),

		SyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leader",
			Name:      "syncs_total",
			Help:      "Follower synchronizations by result",
		}, []string{"result"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "Peer requests by kind and mode",
		}, []string{"kind", "mode"}),
		NoResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "no_responses_total",
			Help:      "Peer requests that resolved without a response",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Time from enqueueing a request to receiving its response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.RollbackRounds,
		r.RollbackDocumentsDeleted,
		r.RollbackUpdatesApplied,
		r.EntriesApplied,
		r.SyncsTotal,
		r.RequestsTotal,
		r.NoResponses,
		r.RequestDuration,
	)

	return r
}

// Registerer returns the underlying registry for components that register
// their own collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer returns the underlying registry for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns an HTTP handler for the /metrics endpoint of the
// process-wide registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Recording helpers. A nil *Registry discards every observation so that
// components can run without metrics.

// RecordRollbackRound counts one rollback round with its outcome.
func (r *Registry) RecordRollbackRound(outcome string) {
	if r == nil {
		return
	}
	r.RollbackRounds.WithLabelValues(outcome).Inc()
}

// AddRollbackDocumentsDeleted counts speculative documents deleted.
func (r *Registry) AddRollbackDocumentsDeleted(n int) {
	if r == nil {
		return
	}
	r.RollbackDocumentsDeleted.Add(float64(n))
}

// AddRollbackUpdatesApplied counts update records applied during rollback.
func (r *Registry) AddRollbackUpdatesApplied(n int) {
	if r == nil {
		return
	}
	r.RollbackUpdatesApplied.Add(float64(n))
}

// AddEntriesApplied counts log entries applied by forward replication.
func (r *Registry) AddEntriesApplied(n int) {
	if r == nil {
		return
	}
	r.EntriesApplied.Add(float64(n))
}

// RecordSync counts one follower synchronization by the leader.
func (r *Registry) RecordSync(result string) {
	if r == nil {
		return
	}
	r.SyncsTotal.WithLabelValues(result).Inc()
}

// RecordRequest counts one peer request. mode is "send" or "dispatch".
func (r *Registry) RecordRequest(kind, mode string) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(kind, mode).Inc()
}

// IncNoResponse counts a request that resolved without a response.
func (r *Registry) IncNoResponse() {
	if r == nil {
		return
	}
	r.NoResponses.Inc()
}

// ObserveRequestDuration records the round trip of one request.
func (r *Registry) ObserveRequestDuration(kind string, seconds float64) {
	if r == nil {
		return
	}
	r.RequestDuration.WithLabelValues(kind).Observe(seconds)
}
