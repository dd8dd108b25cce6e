// Package server provides the service lifecycle runner.
// cmd/gateway delegates to server.Run for signal handling, config
// loading, observability init, component wiring, health checks, and
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/attitudes-vip/event-gateway/internal/auth"
	"github.com/attitudes-vip/event-gateway/internal/config"
	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/dynamo"
	"github.com/attitudes-vip/event-gateway/internal/gateway"
	"github.com/attitudes-vip/event-gateway/internal/observability"
	redisclient "github.com/attitudes-vip/event-gateway/internal/redis"
	"github.com/attitudes-vip/event-gateway/internal/store"
	"github.com/attitudes-vip/event-gateway/pkg/protocol"
)

// Params configures the lifecycle runner.
type Params struct {
	// Name identifies the service in logs, traces, and health output.
	Name string
}

// Run executes the full service lifecycle: signal handling, config
// loading, observability initialization, gateway wiring, HTTP server
// with health checks, and graceful shutdown. If ln is non-nil, it is
// used instead of creating a new listener from config (enables port-0
// testing).
func Run(ctx context.Context, p Params, ln net.Listener) error {
	// Signal-based cancellation: ctx.Done() closes on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// --- Startup order: tracer -> metrics -> components -> HTTP server ---

	tracerProvider, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    p.Name,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}

	metricsProvider, err := observability.InitMetrics(ctx, observability.MetricsConfig{
		ServiceName:    p.Name,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	// --- Infrastructure clients ---

	redisClient := redisclient.NewClient(redisclient.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			logger.Error("close redis client", slog.String("error", closeErr.Error()))
		}
	}()

	dynamoEndpoint := cfg.DynamoDB.Endpoint
	if dynamoEndpoint == "" {
		dynamoEndpoint = cfg.AWS.Endpoint
	}
	dynamoClient, err := dynamo.NewClient(ctx, dynamo.Config{
		Endpoint: dynamoEndpoint,
		Region:   cfg.AWS.Region,
		Timeout:  cfg.DynamoDB.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create dynamodb client: %w", err)
	}

	users := store.NewUserStore(dynamoClient.DB, cfg.DynamoDB.UsersTable)
	eventLog := store.NewEventLog(dynamoClient.DB, cfg.DynamoDB.EventsTable)

	// --- Gateway components ---

	clock := domain.RealClock{}
	instanceID := uuid.NewString()
	stats := &gateway.Stats{}

	validator := auth.NewValidator(auth.ValidatorConfig{
		Secret:   cfg.Gateway.SigningSecret,
		Issuer:   "attitudes.vip",
		Audience: "event-gateway",
		Clock:    clock,
	})
	issuer := auth.NewReconnectIssuer(auth.ReconnectIssuerConfig{
		Secret:   cfg.Gateway.SigningSecret,
		TTL:      cfg.Gateway.ReconnectTokenTTL,
		Issuer:   "attitudes.vip",
		Audience: "event-gateway",
		Clock:    clock,
	})

	identity := gateway.NewIdentityCache(validator, users, gateway.IdentityCacheConfig{
		CredentialTTL: domain.CredentialCacheTTL,
		UserRecordTTL: domain.UserRecordCacheTTL,
		Clock:         clock,
	})

	admission := gateway.NewAdmission(gateway.AdmissionConfig{
		EventRateLimit:        cfg.Gateway.EventRateLimit,
		EventRateWindow:       cfg.Gateway.EventRateWindow,
		MaxConnections:        cfg.Gateway.MaxConnections,
		MaxConnectionsPerAddr: cfg.Gateway.MaxConnectionsPerIP,
		Clock:                 clock,
	})

	// The registry's presence callback reaches the hub, and the hub needs
	// the registry to fan out; the closure breaks the construction cycle.
	var hub *gateway.Hub
	registry := gateway.NewRegistry(cfg.Gateway.PresenceGrace,
		func(weddingID string, member protocol.Member, online bool, excludeConnID string) {
			hub.PresenceChanged(weddingID, member, online, excludeConnID)
		})

	pool := gateway.NewPool(cfg.Gateway.WorkerPoolSize, cfg.Gateway.WorkerQueueDepth, logger)
	backplane := gateway.NewBackplane(redisClient, cfg.Gateway.BackplaneChannel, logger)

	hub = gateway.NewHub(gateway.HubConfig{
		Registry:   registry,
		Admission:  admission,
		Publisher:  backplane,
		Audit:      eventLog,
		Pool:       pool,
		Stats:      stats,
		Clock:      clock,
		Logger:     logger,
		InstanceID: instanceID,
	}, gateway.BatcherConfig{
		Interval: cfg.Gateway.BatchInterval,
		MaxBatch: cfg.Gateway.BatchMaxSize,
		Ceiling:  domain.BatchQueueCeiling,
	})
	backplane.SetHandler(hub.DeliverEnvelope)

	supervisor, err := gateway.NewSupervisor(registry, admission, identity, issuer, pool, stats, gateway.SupervisorConfig{
		MetricsInterval: cfg.Gateway.MetricsInterval,
		CleanupInterval: cfg.Gateway.CleanupInterval,
		Clock:           clock,
	}, logger)
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	// --- Structured concurrency via errgroup ---
	g, ctx := errgroup.WithContext(ctx)

	wsHandler := gateway.NewHandler(hub, identity, issuer, admission, registry, stats, clock, logger, gateway.HandlerConfig{
		AllowedOrigins:    cfg.Gateway.AllowedOrigins,
		HandshakeTimeout:  cfg.Gateway.HandshakeTimeout,
		HeartbeatInterval: cfg.Gateway.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Gateway.HeartbeatTimeout,
	}, ctx.Done())

	// Health check shutdown coordination via atomic flag.
	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":%q,"timestamp":%d}`, p.Name, domain.NowUTCMillis(clock))
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q,"timestamp":%d}`, p.Name, domain.NowUTCMillis(clock))
	})

	// Bind listener (use injected listener or create from config).
	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", cfg.Gateway.HTTPPort))
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: WebSocket connections outlive any fixed bound.
		IdleTimeout: 60 * time.Second,
	}

	g.Go(func() error { return backplane.Run(ctx) })
	g.Go(func() error { return hub.Batcher().Run(ctx) })
	g.Go(func() error { return pool.Run(ctx) })
	g.Go(func() error { return supervisor.Run(ctx) })

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", ln.Addr().String()),
			slog.String("instance_id", instanceID),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	// Shutdown trigger: waits for context cancellation, then drains.
	// Shutdown order is the explicit reverse of startup: HTTP server,
	// then metrics, then tracer. Connected clients receive a
	// connection_closing frame from their write pump when ctx closes.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		// 1. Mark shutting down so health checks return 503.
		shuttingDown.Store(true)

		// 2. Drain delay lets the load balancer propagate endpoint removal.
		time.Sleep(domain.ShutdownDrainDelay)

		// 3. Drain the HTTP server (started last, stops first).
		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		// 4. Flush OTEL (reverse: metrics first, then tracer).
		otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer otelCancel()
		if shutdownErr := metricsProvider.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown metrics", slog.String("error", shutdownErr.Error()))
		}
		if shutdownErr := tracerProvider.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", shutdownErr.Error()))
		}

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}
