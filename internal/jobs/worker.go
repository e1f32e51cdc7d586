package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Handler processes one task.
type Handler interface {
	Handle(ctx context.Context, eventID int64) error
}

// WorkerPool consumes a Queue with a fixed number of workers.
type WorkerPool struct {
	queue   Queue
	handler Handler
	workers int
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewWorkerPool creates a pool. workers <= 0 means one worker.
func NewWorkerPool(queue Queue, handler Handler, workers int, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		queue:   queue,
		handler: handler,
		workers: workers,
		logger:  logger.With("component", "worker_pool"),
	}
}

// Start launches the workers. They stop when ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("starting enrichment workers", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, worker int) {
	defer p.wg.Done()
	for {
		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			p.logger.Error("failed to dequeue task", "worker", worker, "error", err)
			continue
		}

		// Failures are recorded on the event; the sweep decides on retries.
		if err := p.handler.Handle(ctx, task.EventID); err != nil {
			p.logger.Warn("task failed",
				"worker", worker,
				"task_id", task.ID,
				"event_id", task.EventID,
				"error", err,
			)
		}
	}
}

// Drain handles queued tasks, waiting for delayed ones, until the queue is
// empty. It returns how many were handled without error.
func Drain(ctx context.Context, queue Queue, handler Handler) (int, error) {
	processed := 0
	for {
		n, err := queue.Len(ctx)
		if err != nil {
			return processed, err
		}
		if n == 0 {
			return processed, nil
		}
		task, err := queue.Dequeue(ctx)
		if err != nil {
			return processed, err
		}
		if err := handler.Handle(ctx, task.EventID); err == nil {
			processed++
		}
	}
}
