package follower

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yndnr/docmesh-go/internal/cluster/rpc"
	"github.com/yndnr/docmesh-go/internal/core/domain"
	"github.com/yndnr/docmesh-go/internal/storage/docstore"
	"github.com/yndnr/docmesh-go/internal/telemetry/logger"
	"github.com/yndnr/docmesh-go/internal/telemetry/metric"
)

// Config configures a Follower.
type Config struct {
	// Workers is the storage worker pool size. Zero uses GOMAXPROCS.
	Workers int
	Applier ApplierConfig
}

// DefaultConfig returns the default follower configuration.
func DefaultConfig() Config {
	return Config{Applier: DefaultApplierConfig()}
}

// Follower applies the leader's replication stream to a Store.
type Follower struct {
	store   Store
	pool    *WorkerPool
	applier *Applier
	logger  *slog.Logger
	metrics *metric.Registry

	mu    sync.Mutex
	state State
}

// New creates a follower in the Synchronized state. Call Recover before
// serving requests to resume a persisted rollback.
func New(store Store, cfg Config, logger *slog.Logger, metrics *metric.Registry) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "follower")
	pool := NewWorkerPool(cfg.Workers)
	return &Follower{
		store:   store,
		pool:    pool,
		applier: NewApplier(store, pool, cfg.Applier, logger, metrics),
		logger:  logger,
		metrics: metrics,
	}
}

// log returns the follower logger tagged with the request id of ctx.
func (f *Follower) log(ctx context.Context) *slog.Logger {
	return logger.L(ctx, f.logger)
}

// State returns the current in-memory state.
func (f *Follower) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Recover loads the next persisted rollback marker into the follower
// state. It returns Synchronized when no marker is pending.
func (f *Follower) Recover(ctx context.Context) (State, error) {
	rc, ok, err := f.store.NextRollbackChange(ctx)
	if err != nil {
		return State{}, err
	}
	state := Synchronized()
	if ok {
		state = Rollback(rc.AccountID, rc.Collection, rc.Changes, nil)
		f.log(ctx).Info("resuming rollback",
			"account_id", rc.AccountID, "collection", rc.Collection.String())
	}
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
	return state, nil
}

// Handle serves one request for the rpc server. Rounds are serialized.
func (f *Follower) Handle(ctx context.Context, req rpc.Request) rpc.Response {
	if req.Kind != rpc.RequestAppendEntries || req.AppendEntries == nil {
		return rpc.Response{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	state, resp, ok := f.HandleAppendEntries(ctx, f.state, *req.AppendEntries)
	if !ok {
		return rpc.Response{}
	}
	f.state = state
	return resp
}

// HandleAppendEntries answers one AppendEntries request given the current
// state and returns the next state. The flag is false when the follower
// abstains; the state is then unchanged.
func (f *Follower) HandleAppendEntries(ctx context.Context, state State, req rpc.AppendEntriesRequest) (State, rpc.Response, bool) {
	if ok, err := f.observeTerm(ctx, req.Term); err != nil {
		f.log(ctx).Error("failed to read term", "error", err)
		return State{}, rpc.Response{}, false
	} else if !ok {
		f.log(ctx).Warn("ignoring request from stale leader", "term", req.Term)
		return State{}, rpc.Response{}, false
	}

	switch req.Kind {
	case rpc.AppendSynchronize:
		return f.synchronize(ctx, state, req.LastLog)
	case rpc.AppendLogEntries:
		return f.appendEntries(ctx, state, req.Entries)
	case rpc.AppendRollbackUpdates:
		target := domain.Target{AccountID: req.AccountID, Collection: req.Collection}
		if !state.IsRollback() || state.Target() != target {
			f.log(ctx).Warn("rollback updates for unexpected target",
				"account_id", req.AccountID,
				"collection", req.Collection.String(),
				"mode", state.Mode.String(),
				"error", domain.ErrTargetMismatch)
			return State{}, rpc.Response{}, false
		}
		updates := make([]Update, 0, len(state.Pending)+len(req.Updates))
		updates = append(updates, state.Pending...)
		updates = append(updates, req.Updates...)
		return f.HandleRollbackUpdates(ctx, state.AccountID, state.Collection, state.Changes.Clone(), updates)
	default:
		f.log(ctx).Warn("unknown append entries kind", "kind", uint8(req.Kind))
		return State{}, rpc.Response{}, false
	}
}

func (f *Follower) synchronize(ctx context.Context, state State, leaderLast domain.LogPosition) (State, rpc.Response, bool) {
	if state.IsRollback() {
		pending := append([]Update(nil), state.Pending...)
		return f.HandleRollbackUpdates(ctx, state.AccountID, state.Collection, state.Changes.Clone(), pending)
	}

	if next, resp, ok, found := f.resumeMarker(ctx); found {
		return next, resp, ok
	}

	last, _, err := f.store.GetLastLog(ctx)
	if err != nil {
		f.log(ctx).Error("synchronize: failed to read last log", "error", err)
		return State{}, rpc.Response{}, false
	}
	if last.Index <= leaderLast.Index {
		return Synchronized(), rpc.MatchResponse(last), true
	}

	targets, err := f.store.Diverge(ctx, leaderLast)
	if err != nil {
		f.log(ctx).Error("synchronize: failed to truncate divergent log", "error", err)
		return State{}, rpc.Response{}, false
	}
	f.log(ctx).Info("log diverged from leader",
		"local_last", last.String(),
		"leader_last", leaderLast.String(),
		"targets", len(targets))

	if next, resp, ok, found := f.resumeMarker(ctx); found {
		return next, resp, ok
	}
	last, _, err = f.store.GetLastLog(ctx)
	if err != nil {
		f.log(ctx).Error("synchronize: failed to read last log", "error", err)
		return State{}, rpc.Response{}, false
	}
	return Synchronized(), rpc.MatchResponse(last), true
}

// resumeMarker starts a rollback round for the next persisted marker.
// found is false when no marker is pending.
func (f *Follower) resumeMarker(ctx context.Context) (state State, resp rpc.Response, ok, found bool) {
	rc, found, err := f.store.NextRollbackChange(ctx)
	if err != nil {
		f.log(ctx).Error("failed to read rollback marker", "error", err)
		return State{}, rpc.Response{}, false, true
	}
	if !found {
		return State{}, rpc.Response{}, false, false
	}
	state, resp, ok = f.HandleRollbackUpdates(ctx, rc.AccountID, rc.Collection, rc.Changes, nil)
	return state, resp, ok, true
}

func (f *Follower) appendEntries(ctx context.Context, state State, entries []rpc.LogUpdates) (State, rpc.Response, bool) {
	if state.IsRollback() {
		f.log(ctx).Warn("ignoring log entries during rollback",
			"account_id", state.AccountID, "collection", state.Collection.String())
		return State{}, rpc.Response{}, false
	}

	last, _, err := f.store.GetLastLog(ctx)
	if err != nil {
		f.log(ctx).Error("entries: failed to read last log", "error", err)
		return State{}, rpc.Response{}, false
	}

	applied, failed := 0, false
	for _, entry := range entries {
		if entry.Position.Index <= last.Index {
			continue
		}
		b := docstore.NewWriteBatch(0)
		for _, u := range entry.Updates {
			b.ForAccount(u.AccountID)
			switch u.Kind {
			case UpdatePut:
				b.PutDocument(u.Collection, u.DocumentID, u.Document)
			case UpdateRemove:
				b.DeleteDocument(u.Collection, u.DocumentID)
			}
		}
		b.AppendLog(entry.Position)

		err := f.pool.Run(ctx, func(ctx context.Context) error {
			_, err := f.store.Write(ctx, b)
			return err
		})
		if err != nil {
			f.log(ctx).Error("entries: failed to apply log entry",
				"position", entry.Position.String(), "error", err)
			failed = true
			break
		}
		last = entry.Position
		applied++
	}
	f.metrics.AddEntriesApplied(applied)

	if failed && applied == 0 {
		return State{}, rpc.Response{}, false
	}
	return Synchronized(), rpc.MatchResponse(last), true
}

// observeTerm records a newer leader term. It returns false for a term
// older than the current one.
func (f *Follower) observeTerm(ctx context.Context, term uint64) (bool, error) {
	current, err := f.store.CurrentTerm(ctx)
	if err != nil {
		return false, err
	}
	switch {
	case term < current:
		return false, nil
	case term > current:
		return true, f.store.SetTerm(ctx, term)
	default:
		return true, nil
	}
}
