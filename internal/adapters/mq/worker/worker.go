// Package worker runs retrain jobs pulled from the queue.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/meeple/internal/adapters/mq/queue"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/lifecycle"
	"github.com/okian/meeple/pkg/logger"
	"github.com/okian/meeple/pkg/metrics"
)

const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 30 * time.Second
)

// active counts workers currently running a job, across pools.
var active atomic.Int64

// Job is what workers read off the queue.
type Job = queue.Job

// Retrainer retrains a tier when its model is stale.
type Retrainer interface {
	RetrainIfStale(ctx context.Context, t model.Tier, maxAge time.Duration) (lifecycle.RetrainResult, error)
}

// Releaser frees the pending slot a job held, so the next request for the
// same tier is queued instead of coalesced. It returns the max age the job
// runs with, which requests coalesced behind it may have lowered.
type Releaser interface {
	Release(ctx context.Context, key string, maxAge time.Duration) time.Duration
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until its context ends, the pool shuts down or the
// queue closes.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	retrainer Retrainer
	releaser  Releaser
	name      string
	observe   func(Job, lifecycle.RetrainResult, error)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, r Retrainer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		retrainer: r,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "retrain job failed", logger.String("job", j.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j Job) error {
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(active.Add(1)))
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		metrics.UpdateWorkerActiveCount(int(active.Add(-1)))
	}()

	// Released before training so a request arriving mid-run queues a
	// follow-up job.
	maxAge := j.MaxAge
	if w.releaser != nil {
		maxAge = w.releaser.Release(ctx, j.Key(), j.MaxAge)
	}

	ctx = logger.WithRequestID(ctx, j.ID)
	res, err := w.retrainer.RetrainIfStale(ctx, j.Tier, maxAge)
	if w.observe != nil {
		w.observe(j, res, err)
	}
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "retrain_error")
		return fmt.Errorf("retrain %s: %w", j.Tier, err)
	}

	fields := []logger.Field{
		logger.String("tier", res.Tag),
		logger.Bool("retrained", res.Retrained),
		logger.Int("corpus_size", res.CorpusSize),
	}
	if !j.EnqueuedAt.IsZero() {
		fields = append(fields, logger.Duration("queued_for", start.Sub(j.EnqueuedAt)))
	}
	w.logger.Info(ctx, "retrain job done", fields...)
	return nil
}

// Pool manages a fixed set of workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. opts apply to every worker.
func NewPool(workerCount int, q Queue, r Retrainer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, r, wopts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for every worker to finish its
// current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
