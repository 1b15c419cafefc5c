package leader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/docmesh-go/internal/cluster/changes"
	"github.com/yndnr/docmesh-go/internal/cluster/rpc"
	"github.com/yndnr/docmesh-go/internal/core/domain"
	"github.com/yndnr/docmesh-go/internal/storage/docstore"
	"github.com/yndnr/docmesh-go/internal/telemetry/logger"
	"github.com/yndnr/docmesh-go/internal/telemetry/metric"
)

// Sync results recorded in metrics.
const (
	resultOK         = "ok"
	resultNoResponse = "no_response"
	resultError      = "error"
)

// Store is the storage used by the leader. *docstore.Store implements it.
type Store interface {
	Write(ctx context.Context, b *docstore.WriteBatch) ([]changes.Event, error)
	GetDocument(ctx context.Context, account domain.AccountID, collection domain.Collection, id domain.DocumentID) (domain.Document, error)

	GetLastLog(ctx context.Context) (domain.LogPosition, bool, error)
	HasLogPosition(ctx context.Context, pos domain.LogPosition) (bool, error)
	LogPositionBefore(ctx context.Context, index uint64) (domain.LogPosition, bool, error)
	LogEntriesAfter(ctx context.Context, after domain.LogPosition, limit int) ([]docstore.LogEntry, error)

	CurrentTerm(ctx context.Context) (uint64, error)
	SetTerm(ctx context.Context, term uint64) error
}

var _ Store = (*docstore.Store)(nil)

// Peer is a follower reachable over the cluster transport. *rpc.Peer
// implements it.
type Peer interface {
	ID() string
	SendRequest(ctx context.Context, req rpc.Request) rpc.Response
}

// Config configures a Replicator.
type Config struct {
	// BatchSize is the number of log entries per Entries request.
	BatchSize int
	// MaxRounds bounds the request/response exchanges of one Sync.
	MaxRounds int
}

// DefaultConfig returns the default replicator configuration.
func DefaultConfig() Config {
	return Config{BatchSize: 64, MaxRounds: 1024}
}

// Replicator drives followers towards the leader's log.
type Replicator struct {
	store   Store
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Registry

	// writeMu orders log appends.
	writeMu sync.Mutex
}

// New creates a replicator over store.
func New(store Store, cfg Config, logger *slog.Logger, metrics *metric.Registry) *Replicator {
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = def.MaxRounds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replicator{
		store:   store,
		cfg:     cfg,
		logger:  logger.With("component", "leader"),
		metrics: metrics,
	}
}

// Start records term as the leader's term. The term never goes back.
func (r *Replicator) Start(ctx context.Context, term uint64) error {
	current, err := r.store.CurrentTerm(ctx)
	if err != nil {
		return err
	}
	if term > current {
		return r.store.SetTerm(ctx, term)
	}
	return nil
}

// Write applies b locally and appends it to the log at the current term.
func (r *Replicator) Write(ctx context.Context, b *docstore.WriteBatch) ([]changes.Event, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	term, err := r.store.CurrentTerm(ctx)
	if err != nil {
		return nil, err
	}
	last, _, err := r.store.GetLastLog(ctx)
	if err != nil {
		return nil, err
	}
	b.AppendLog(domain.LogPosition{Term: max(term, last.Term, 1), Index: last.Index + 1})
	return r.store.Write(ctx, b)
}

// Sync brings one follower in line with the local log and returns the
// position it matched.
func (r *Replicator) Sync(ctx context.Context, peer Peer) (domain.LogPosition, error) {
	ctx = logger.WithRequestID(ctx, logger.NewRequestID())
	pos, err := r.sync(ctx, peer)
	switch {
	case err == nil:
		r.metrics.RecordSync(resultOK)
	case errors.Is(err, domain.ErrNoResponse):
		r.metrics.RecordSync(resultNoResponse)
	default:
		r.metrics.RecordSync(resultError)
	}
	return pos, err
}

func (r *Replicator) sync(ctx context.Context, peer Peer) (domain.LogPosition, error) {
	log := logger.L(ctx, r.logger).With("peer", peer.ID())

	term, err := r.store.CurrentTerm(ctx)
	if err != nil {
		return domain.LogPosition{}, err
	}
	last, _, err := r.store.GetLastLog(ctx)
	if err != nil {
		return domain.LogPosition{}, err
	}

	req := rpc.NewSynchronize(term, last)
	for round := 0; round < r.cfg.MaxRounds; round++ {
		resp, ok := peer.SendRequest(ctx, req).UnwrapAppendEntries()
		if !ok {
			if err := ctx.Err(); err != nil {
				return domain.LogPosition{}, err
			}
			return domain.LogPosition{}, domain.ErrNoResponse.WithDetails(peer.ID())
		}

		switch resp.Kind {
		case rpc.AppendMatch:
			matched, err := r.store.HasLogPosition(ctx, resp.MatchLog)
			if err != nil {
				return domain.LogPosition{}, err
			}
			if !matched {
				prev, _, err := r.store.LogPositionBefore(ctx, resp.MatchLog.Index)
				if err != nil {
					return domain.LogPosition{}, err
				}
				log.Info("follower log diverged",
					"follower_last", resp.MatchLog.String(), "retry_from", prev.String())
				req = rpc.NewSynchronize(term, prev)
				continue
			}
			if resp.MatchLog == last {
				log.Debug("follower synchronized", "last_log", last.String())
				return last, nil
			}
			entries, err := r.store.LogEntriesAfter(ctx, resp.MatchLog, r.cfg.BatchSize)
			if err != nil {
				return domain.LogPosition{}, err
			}
			if len(entries) == 0 {
				return resp.MatchLog, nil
			}
			updates, err := r.entryUpdates(ctx, entries)
			if err != nil {
				return domain.LogPosition{}, err
			}
			req = rpc.NewEntries(term, updates)

		case rpc.AppendUpdate:
			if !resp.IsRollback {
				return domain.LogPosition{}, domain.ErrUnexpectedResponse.WithDetails("update outside rollback")
			}
			cs, err := changes.Deserialize(resp.Changes)
			if err != nil {
				return domain.LogPosition{}, fmt.Errorf("follower %s change set: %w", peer.ID(), err)
			}
			records, err := r.rollbackRecords(ctx, resp.AccountID, resp.Collection, cs)
			if err != nil {
				return domain.LogPosition{}, err
			}
			log.Debug("sending rollback updates",
				"account_id", resp.AccountID,
				"collection", resp.Collection.String(),
				"records", len(records))
			req = rpc.NewRollbackUpdates(term, resp.AccountID, resp.Collection, records)

		case rpc.AppendContinue:
			ae := req.AppendEntries
			if ae == nil || ae.Kind != rpc.AppendRollbackUpdates {
				return domain.LogPosition{}, domain.ErrUnexpectedResponse.WithDetails("continue outside rollback")
			}
			req = rpc.NewRollbackUpdates(term, ae.AccountID, ae.Collection, nil)

		default:
			return domain.LogPosition{}, domain.ErrUnexpectedResponse.WithDetails(resp.Kind.String())
		}
	}
	return domain.LogPosition{}, fmt.Errorf("follower %s not synchronized after %d rounds", peer.ID(), r.cfg.MaxRounds)
}

// entryUpdates carries the current state of every document an entry
// touched.
func (r *Replicator) entryUpdates(ctx context.Context, entries []docstore.LogEntry) ([]rpc.LogUpdates, error) {
	out := make([]rpc.LogUpdates, 0, len(entries))
	for _, entry := range entries {
		seen := make(map[changes.Event]struct{}, len(entry.Events))
		updates := make([]rpc.Update, 0, len(entry.Events))
		for _, e := range entry.Events {
			key := changes.Event{AccountID: e.AccountID, Collection: e.Collection, DocumentID: e.DocumentID}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if e.Collection.IsChangeTrackingOnly() {
				kind := rpc.UpdatePut
				if e.Kind == changes.KindDelete {
					kind = rpc.UpdateRemove
				}
				updates = append(updates, rpc.Update{Kind: kind, AccountID: e.AccountID, Collection: e.Collection, DocumentID: e.DocumentID})
				continue
			}
			u, err := r.documentUpdate(ctx, e.AccountID, e.Collection, e.DocumentID)
			if err != nil {
				return nil, err
			}
			updates = append(updates, u)
		}
		out = append(out, rpc.LogUpdates{Position: entry.Position, Updates: updates})
	}
	return out, nil
}

// rollbackRecords carries the current state of every updated or deleted id
// of cs.
func (r *Replicator) rollbackRecords(ctx context.Context, account domain.AccountID, collection domain.Collection, cs *changes.MergedChanges) ([]rpc.Update, error) {
	ids := make([]domain.DocumentID, 0, len(cs.Updates)+len(cs.Deletes))
	ids = append(ids, cs.Updates.Sorted()...)
	ids = append(ids, cs.Deletes.Sorted()...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	records := make([]rpc.Update, 0, len(ids))
	for _, id := range ids {
		u, err := r.documentUpdate(ctx, account, collection, id)
		if err != nil {
			return nil, err
		}
		records = append(records, u)
	}
	return records, nil
}

func (r *Replicator) documentUpdate(ctx context.Context, account domain.AccountID, collection domain.Collection, id domain.DocumentID) (rpc.Update, error) {
	u := rpc.Update{AccountID: account, Collection: collection, DocumentID: id}
	doc, err := r.store.GetDocument(ctx, account, collection, id)
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		u.Kind = rpc.UpdateRemove
	case err != nil:
		return rpc.Update{}, err
	default:
		u.Kind = rpc.UpdatePut
		u.Document = doc
	}
	return u, nil
}

// Run syncs every peer each interval until ctx is done. Failures are
// logged and retried on the next tick.
func (r *Replicator) Run(ctx context.Context, peers []Peer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range peers {
			g.Go(func() error {
				if _, err := r.Sync(gctx, p); err != nil && gctx.Err() == nil {
					r.logger.Warn("follower sync failed", "peer", p.ID(), "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
