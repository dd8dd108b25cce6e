package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Task is a unit of fire-and-forget work, typically a persistence call.
type Task func(ctx context.Context)

// Pool is a bounded task queue drained by a fixed set of workers. When
// the queue is full, Submit rejects the task instead of growing without
// bound.
type Pool struct {
	tasks   chan Task
	size    int
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewPool creates a worker pool with size workers and a queue of depth.
func NewPool(size, depth int, logger *slog.Logger) *Pool {
	return &Pool{
		tasks:  make(chan Task, depth),
		size:   size,
		logger: logger,
	}
}

// Submit queues a task without blocking. Returns false when the queue is
// full; the task is dropped and counted.
func (p *Pool) Submit(t Task) bool {
	select {
	case p.tasks <- t:
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warn("worker queue full, dropping task",
			slog.Int64("dropped_total", p.dropped.Load()),
		)
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled and all
// workers have finished their in-flight task.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-p.tasks:
					t(ctx)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Dropped reports how many tasks were rejected due to a full queue.
func (p *Pool) Dropped() int64 {
	return p.dropped.Load()
}
