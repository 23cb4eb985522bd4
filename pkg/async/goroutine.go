package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/taskflow/pkg/observability"
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown
	ErrPoolClosed = errors.New("worker pool shut down")
	// ErrQueueFull is returned by Submit when every queue slot is taken
	ErrQueueFull = errors.New("worker pool queue full")
)

// SafeGo runs fn in a goroutine with panic recovery and a timeout. The
// goroutine keeps parent's values (logger, request id) but not its
// cancellation, so work started after a commit outlives the request.
// Errors are logged, never returned.
//
//	async.SafeGo(r.Context(), 5*time.Second, "activity log", func(ctx context.Context) error {
//	    return recorder.Insert(ctx, entry)
//	})
func SafeGo(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	go func() {
		defer cancel()
		logger := observability.FromContext(ctx).WithField("task", taskName)
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

type job struct {
	ctx context.Context
	fn  func(context.Context) error
}

// WorkerPool runs submitted jobs on a fixed number of workers with a bounded
// queue. Submit never blocks: a full queue is reported to the caller.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	jobs     chan job
	onError  func(error)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorkerPool starts workers goroutines consuming a queue of queueSize jobs.
// Each job gets its own timeout. onError, if non-nil, sees every job error
// and recovered panic.
//
//	pool := async.NewWorkerPool(4, 100, "webhook delivery", 10*time.Second, nil)
//	defer pool.Shutdown(ctx)
func NewWorkerPool(workers, queueSize int, taskName string, timeout time.Duration, onError func(error)) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		jobs:     make(chan job, queueSize),
		onError:  onError,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues fn. ctx supplies values only; its cancellation is ignored.
func (p *WorkerPool) Submit(ctx context.Context, fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job{ctx: context.WithoutCancel(ctx), fn: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish, or for
// ctx to end
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: shutdown interrupted: %w", p.taskName, ctx.Err())
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *WorkerPool) run(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, p.timeout)
	defer cancel()

	logger := observability.FromContext(ctx).WithField("task", p.taskName)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.WithError(err).Error("Worker job panicked")
			p.report(err)
		}
	}()

	if err := j.fn(ctx); err != nil {
		logger.WithError(err).Warn("Worker job failed")
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	if p.onError != nil {
		p.onError(err)
	}
}
