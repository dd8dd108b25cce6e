package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/attitudes-vip/event-gateway/internal/domain"
)

// FlushFunc receives a flushed group of events for one wedding.
type FlushFunc func(weddingID string, events []domain.Event)

// BatcherConfig holds batching pipeline tuning.
type BatcherConfig struct {
	// Interval is the maximum time an enqueued event waits for a flush.
	Interval time.Duration

	// MaxBatch is the queue length that triggers an early flush.
	MaxBatch int

	// Ceiling is the hard per-queue bound; beyond it the oldest queued
	// event is dropped. Urgent events never pass through here.
	Ceiling int
}

// Batcher buffers high-volume, low-urgency events and flushes them in
// bounded time/size windows. One queue per event type; a queue flushes
// when the interval elapses or it reaches MaxBatch, whichever is first.
// Events of the same type keep their relative order within a flush.
type Batcher struct {
	cfg    BatcherConfig
	flush  FlushFunc
	logger *slog.Logger

	mu     sync.Mutex
	queues map[domain.EventType][]domain.Event
}

// NewBatcher creates a batching pipeline that hands flushed groups to flush.
func NewBatcher(cfg BatcherConfig, flush FlushFunc, logger *slog.Logger) *Batcher {
	return &Batcher{
		cfg:    cfg,
		flush:  flush,
		logger: logger,
		queues: make(map[domain.EventType][]domain.Event),
	}
}

// Enqueue validates and queues a normal-priority event. An invalid
// event is dropped and logged, and its validation error is returned so
// the caller may notify the sender. Reaching MaxBatch flushes the queue
// immediately.
func (b *Batcher) Enqueue(ev domain.Event) error {
	if err := ev.Validate(); err != nil {
		b.logger.Debug("dropping invalid event",
			slog.String("event_type", string(ev.Type)),
			slog.String("wedding_id", ev.WeddingID),
			slog.String("error", err.Error()),
		)
		return err
	}

	var full []domain.Event

	b.mu.Lock()
	q := b.queues[ev.Type]
	if len(q) >= b.cfg.Ceiling {
		// Backpressure: the oldest queued normal event is the least
		// important unit of work and is rejected first.
		b.logger.Warn("batch queue at ceiling, dropping oldest event",
			slog.String("event_type", string(ev.Type)),
		)
		q = q[1:]
	}
	q = append(q, ev)
	if len(q) >= b.cfg.MaxBatch {
		full = q
		q = nil
	}
	b.queues[ev.Type] = q
	b.mu.Unlock()

	if full != nil {
		b.flushByWedding(full)
	}
	return nil
}

// Run drives the interval flush loop until ctx is cancelled, then
// performs one final drain so shutdown never strands queued events.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.FlushAll()
			return nil
		case <-ticker.C:
			b.FlushAll()
		}
	}
}

// FlushAll drains every queue and forwards the events grouped by wedding.
func (b *Batcher) FlushAll() {
	b.mu.Lock()
	pending := make([][]domain.Event, 0, len(b.queues))
	for t, q := range b.queues {
		if len(q) == 0 {
			continue
		}
		pending = append(pending, q)
		b.queues[t] = nil
	}
	b.mu.Unlock()

	for _, q := range pending {
		b.flushByWedding(q)
	}
}

// flushByWedding groups queued events by tenant to minimize redundant
// fan-out work, preserving per-type relative order.
func (b *Batcher) flushByWedding(events []domain.Event) {
	grouped := make(map[string][]domain.Event)
	order := make([]string, 0)
	for _, ev := range events {
		if _, ok := grouped[ev.WeddingID]; !ok {
			order = append(order, ev.WeddingID)
		}
		grouped[ev.WeddingID] = append(grouped[ev.WeddingID], ev)
	}
	for _, weddingID := range order {
		b.flush(weddingID, grouped[weddingID])
	}
}

// QueueDepth reports the current depth of one event type's queue.
func (b *Batcher) QueueDepth(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[t])
}
