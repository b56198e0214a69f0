// Package dispatcher fans queued runs out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// Runner consumes runs until ctx ends or its queue closes.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher runs a fixed worker pool over one queue.
type Dispatcher struct {
	queue   digest.Queue
	workers []Runner
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue digest.Queue, workers []Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, workers: workers, logger: logger}
}

// Run starts all workers and blocks until every worker has returned, which
// happens when ctx ends or the queue closes. A panicking worker is logged
// and dropped from the pool; the rest keep draining.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher starting", zap.Int("workers", len(d.workers)))
	var wg sync.WaitGroup
	for i, w := range d.workers {
		wg.Add(1)
		go func(index int, r Runner) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					d.logger.Error("worker panicked", zap.Int("index", index), zap.Any("panic", rec))
				}
			}()
			r.Run(ctx)
		}(i, w)
	}
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Enqueue hands a run to the shared queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req digest.RunRequest) error {
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
