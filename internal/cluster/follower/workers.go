package follower

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds the number of storage batches running at once.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool returns a pool of size workers. A size below one uses
// GOMAXPROCS.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size))}
}

// Run executes fn on a pool worker and waits for it. ctx bounds the wait
// for a free worker only: once started, fn runs to completion.
func (p *WorkerPool) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn(context.WithoutCancel(ctx))
	}()
	return <-done
}
