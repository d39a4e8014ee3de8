package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Runner executes one pipeline item. Implemented by the orchestrator.
type Runner interface {
	Run(ctx context.Context, itemID uuid.UUID) error
}

// Pool is a bounded worker pool for pipeline items. Enqueue never blocks:
// when the queue is full the caller gets QueueFullError and can surface it.
type Pool struct {
	runner  Runner
	workers int
	jobs    chan uuid.UUID
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given concurrency and queue capacity.
func NewPool(runner Runner, workers, queueSize int, logger *slog.Logger, metrics *Metrics) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Pool{
		runner:  runner,
		workers: workers,
		jobs:    make(chan uuid.UUID, queueSize),
		logger:  logger,
		metrics: metrics,
	}
}

// Start launches the workers. The context bounds every run; cancelling it
// makes in-flight runs wind down at their next blocking call.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *Pool) work(ctx context.Context, worker int) {
	defer p.wg.Done()
	for itemID := range p.jobs {
		p.metrics.QueueDepth.Dec()
		if ctx.Err() != nil {
			p.logger.Warn("dropping queued item, pool context done", "item_id", itemID, "worker", worker)
			continue
		}
		if err := p.runner.Run(ctx, itemID); err != nil {
			p.logger.Error("item run finished with error", "item_id", itemID, "worker", worker, "error", err)
		}
	}
}

// Enqueue submits an item for execution. The mutex is held across the send so
// Shutdown cannot close the channel between the closed check and the send;
// the send itself never blocks, so the critical section stays short.
func (p *Pool) Enqueue(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &QueueFullError{}
	}

	select {
	case p.jobs <- id:
		p.metrics.QueueDepth.Inc()
		return nil
	default:
		return &QueueFullError{}
	}
}

// Shutdown stops intake and waits for in-flight and queued items to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
