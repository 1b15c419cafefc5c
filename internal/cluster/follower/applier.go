package follower

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/docmesh-go/internal/core/domain"
	"github.com/yndnr/docmesh-go/internal/storage/docstore"
	"github.com/yndnr/docmesh-go/internal/telemetry/logger"
	"github.com/yndnr/docmesh-go/internal/telemetry/metric"
)

// ApplierConfig bounds the work of one rollback round.
type ApplierConfig struct {
	// BatchSize is the number of records written per batch.
	BatchSize int
	// MaxBatchesPerRound stops a round after that many batches. Zero means
	// no limit.
	MaxBatchesPerRound int
	// RateLimit is the number of records applied per second. Zero means
	// unlimited.
	RateLimit float64
	// Burst is the limiter burst. It is raised to BatchSize when smaller.
	Burst int
}

// DefaultApplierConfig returns the default applier limits.
func DefaultApplierConfig() ApplierConfig {
	return ApplierConfig{
		BatchSize:          256,
		MaxBatchesPerRound: 16,
	}
}

// Applier applies the leader's rollback records to local storage.
type Applier struct {
	store   Store
	pool    *WorkerPool
	cfg     ApplierConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metric.Registry
}

// NewApplier returns an applier writing to store through pool.
func NewApplier(store Store, pool *WorkerPool, cfg ApplierConfig, logger *slog.Logger, metrics *metric.Registry) *Applier {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultApplierConfig().BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, cfg.BatchSize)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Applier{
		store:   store,
		pool:    pool,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

// ApplyRollbackUpdates applies records from the tail of queue. It returns
// true once the queue is empty, and false when the round's limits stop it
// with records left in queue.
func (a *Applier) ApplyRollbackUpdates(ctx context.Context, queue *[]Update) (bool, error) {
	q := *queue
	defer func() { *queue = q }()

	for batches := 0; len(q) > 0; batches++ {
		if a.cfg.MaxBatchesPerRound > 0 && batches >= a.cfg.MaxBatchesPerRound {
			return false, nil
		}
		n := min(a.cfg.BatchSize, len(q))
		if !a.limiter.AllowN(time.Now(), n) {
			logger.L(ctx, a.logger).Debug("rollback apply throttled", "remaining", len(q))
			return false, nil
		}

		batch := q[len(q)-n:]
		if err := a.pool.Run(ctx, func(ctx context.Context) error {
			return a.apply(ctx, batch)
		}); err != nil {
			return false, err
		}
		q = q[:len(q)-n]
		a.metrics.AddRollbackUpdatesApplied(n)
	}
	q = nil
	return true, nil
}

// apply writes batch last record first, one atomic write per account.
func (a *Applier) apply(ctx context.Context, batch []Update) error {
	var (
		order   []domain.AccountID
		batches = make(map[domain.AccountID]*docstore.WriteBatch)
	)
	for i := len(batch) - 1; i >= 0; i-- {
		u := batch[i]
		b, ok := batches[u.AccountID]
		if !ok {
			b = docstore.NewWriteBatch(u.AccountID)
			batches[u.AccountID] = b
			order = append(order, u.AccountID)
		}
		switch u.Kind {
		case UpdatePut:
			b.PutDocument(u.Collection, u.DocumentID, u.Document)
		case UpdateRemove:
			b.DeleteDocument(u.Collection, u.DocumentID)
		default:
			return fmt.Errorf("apply rollback update %d/%s/%d: unknown kind %d",
				u.AccountID, u.Collection, u.DocumentID, u.Kind)
		}
	}
	for _, account := range order {
		if _, err := a.store.Write(ctx, batches[account]); err != nil {
			return fmt.Errorf("apply rollback updates for account %d: %w", account, err)
		}
	}
	return nil
}
