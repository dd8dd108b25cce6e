package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/attitudes-vip/event-gateway/internal/auth"
	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/observability"
)

// MetricsSnapshot is one sample of gateway health, computed from the
// rolling counters. Snapshots are never persisted.
type MetricsSnapshot struct {
	ActiveConnections int
	PeakConnections   int64
	TotalConnections  int64
	EventsPerSecond   float64
	ErrorsPerSecond   float64
	HeapBytes         uint64
}

// SupervisorConfig holds the supervisor's cadence tuning.
type SupervisorConfig struct {
	// MetricsInterval is the live-metrics sampling cadence.
	MetricsInterval time.Duration

	// CleanupInterval is the structural cleanup sweep cadence.
	CleanupInterval time.Duration

	Clock domain.Clock
}

// Supervisor periodically samples gateway health metrics into the
// operational sink and purges stale bookkeeping: expired rate-limit
// buckets, expired reconnect-token entries, expired identity cache
// entries, and orphaned connection metadata.
type Supervisor struct {
	registry  *Registry
	admission *Admission
	identity  *IdentityCache
	issuer    *auth.ReconnectIssuer
	pool      *Pool
	stats     *Stats
	cfg       SupervisorConfig
	logger    *slog.Logger

	lastEvents int64
	lastErrors int64
	lastSample time.Time

	activeGauge  metric.Int64Gauge
	peakGauge    metric.Int64Gauge
	eventsGauge  metric.Float64Gauge
	errorsGauge  metric.Float64Gauge
	heapGauge    metric.Int64Gauge
	sweepCounter metric.Int64Counter
}

// NewSupervisor creates the metrics and cleanup supervisor.
func NewSupervisor(registry *Registry, admission *Admission, identity *IdentityCache, issuer *auth.ReconnectIssuer, pool *Pool, stats *Stats, cfg SupervisorConfig, logger *slog.Logger) (*Supervisor, error) {
	meter := observability.Meter("gateway")

	activeGauge, err := meter.Int64Gauge("gateway.connections.active")
	if err != nil {
		return nil, fmt.Errorf("create active connections gauge: %w", err)
	}
	peakGauge, err := meter.Int64Gauge("gateway.connections.peak")
	if err != nil {
		return nil, fmt.Errorf("create peak connections gauge: %w", err)
	}
	eventsGauge, err := meter.Float64Gauge("gateway.events.per_second")
	if err != nil {
		return nil, fmt.Errorf("create events rate gauge: %w", err)
	}
	errorsGauge, err := meter.Float64Gauge("gateway.errors.per_second")
	if err != nil {
		return nil, fmt.Errorf("create error rate gauge: %w", err)
	}
	heapGauge, err := meter.Int64Gauge("gateway.memory.heap_bytes")
	if err != nil {
		return nil, fmt.Errorf("create heap gauge: %w", err)
	}
	sweepCounter, err := meter.Int64Counter("gateway.cleanup.evicted_total")
	if err != nil {
		return nil, fmt.Errorf("create cleanup counter: %w", err)
	}

	return &Supervisor{
		registry:     registry,
		admission:    admission,
		identity:     identity,
		issuer:       issuer,
		pool:         pool,
		stats:        stats,
		cfg:          cfg,
		logger:       logger,
		lastSample:   cfg.Clock.Now(),
		activeGauge:  activeGauge,
		peakGauge:    peakGauge,
		eventsGauge:  eventsGauge,
		errorsGauge:  errorsGauge,
		heapGauge:    heapGauge,
		sweepCounter: sweepCounter,
	}, nil
}

// Run drives the metrics and cleanup cadences until ctx is cancelled.
func (sv *Supervisor) Run(ctx context.Context) error {
	metricsTicker := time.NewTicker(sv.cfg.MetricsInterval)
	defer metricsTicker.Stop()
	cleanupTicker := time.NewTicker(sv.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-metricsTicker.C:
			snap := sv.Sample()
			sv.record(ctx, snap)
		case <-cleanupTicker.C:
			sv.Cleanup()
		}
	}
}

// Sample computes one metrics snapshot from the rolling counters.
func (sv *Supervisor) Sample() MetricsSnapshot {
	now := sv.cfg.Clock.Now()
	elapsed := now.Sub(sv.lastSample).Seconds()
	if elapsed <= 0 {
		elapsed = sv.cfg.MetricsInterval.Seconds()
	}

	events := sv.stats.EventsIn.Load()
	errs := sv.stats.Errors.Load()

	snap := MetricsSnapshot{
		ActiveConnections: sv.registry.ActiveConnections(),
		PeakConnections:   sv.stats.PeakConnections.Load(),
		TotalConnections:  sv.stats.TotalConnections.Load(),
		EventsPerSecond:   float64(events-sv.lastEvents) / elapsed,
		ErrorsPerSecond:   float64(errs-sv.lastErrors) / elapsed,
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	snap.HeapBytes = mem.HeapInuse

	sv.lastEvents = events
	sv.lastErrors = errs
	sv.lastSample = now
	return snap
}

func (sv *Supervisor) record(ctx context.Context, snap MetricsSnapshot) {
	sv.activeGauge.Record(ctx, int64(snap.ActiveConnections))
	sv.peakGauge.Record(ctx, snap.PeakConnections)
	sv.eventsGauge.Record(ctx, snap.EventsPerSecond)
	sv.errorsGauge.Record(ctx, snap.ErrorsPerSecond)
	sv.heapGauge.Record(ctx, int64(snap.HeapBytes))
}

// Cleanup runs one structural sweep and returns the number of evicted
// entries across all bookkeeping tables.
func (sv *Supervisor) Cleanup() int {
	now := sv.cfg.Clock.Now()

	evicted := sv.admission.SweepExpired(now)
	evicted += sv.identity.Sweep(now)
	evicted += sv.issuer.Sweep(now)
	evicted += sv.registry.SweepOrphans()

	if evicted > 0 {
		sv.logger.Debug("cleanup sweep finished",
			slog.Int("evicted", evicted),
		)
	}
	sv.sweepCounter.Add(context.Background(), int64(evicted))
	return evicted
}
