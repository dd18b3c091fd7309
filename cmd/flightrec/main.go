package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shelfline/flightrec/internal/config"
	"github.com/shelfline/flightrec/internal/ingest"
	"github.com/shelfline/flightrec/internal/observability"
	"github.com/shelfline/flightrec/internal/query"
	"github.com/shelfline/flightrec/internal/recorder"
	"github.com/shelfline/flightrec/internal/store"
	"github.com/shelfline/flightrec/internal/transport"
	"github.com/shelfline/flightrec/internal/workflow"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// 1. Configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// 2. Logging.
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting flightrec",
		zap.String("version", observability.Version),
		zap.String("commit", observability.Commit),
		zap.String("system", cfg.Recorder.System),
		zap.String("environment", cfg.Recorder.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing.
	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "flightrec", observability.Version)
	if err != nil {
		logger.Error("failed to initialize tracing", zap.Error(err))
		return 1
	}

	// 4. Metrics.
	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// 5. Workflow templates.
	loader := workflow.NewLoader()
	templates, err := loader.LoadAll(cfg.Templates.Directories)
	if err != nil {
		logger.Error("failed to load workflow templates", zap.Error(err))
		return 1
	}
	if verrs := workflow.NewValidator().Validate(templates); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("invalid workflow template",
				zap.String("path", ve.Path),
				zap.String("code", ve.Code),
				zap.String("message", ve.Message),
			)
		}
		return 1
	}
	registry := workflow.NewRegistry(templates)
	metrics.SetTemplatesLoaded(float64(registry.Len()))
	logger.Info("workflow templates loaded",
		zap.Int("count", registry.Len()),
		zap.String("checksum", registry.Checksum()),
	)

	// 6. Tracking store.
	trackingStore, storeCloser, err := buildTrackingStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize tracking store", zap.Error(err))
		return 1
	}
	defer storeCloser()

	// 7. Dedupe store.
	dedupeStore, dedupeCloser, err := buildDedupeStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dedupe store", zap.Error(err))
		return 1
	}
	defer dedupeCloser()

	// 8. Recorder and query service.
	rec := recorder.New(trackingStore, logger,
		recorder.WithSystem(cfg.Recorder.System),
		recorder.WithEnvironment(cfg.Recorder.Environment),
		recorder.WithBuffer(cfg.Recorder.FlushSize, cfg.Recorder.FlushInterval),
		recorder.WithObserver(&observability.RecorderObserver{Metrics: metrics}),
	)
	queries := query.NewService(trackingStore, logger)

	// 9. Dashboard authentication.
	var authenticate func(http.Handler) http.Handler
	if cfg.Identity.Enabled {
		jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)
		authenticate = transport.JWTAuthenticator(cfg.Identity, jwks)
	} else {
		logger.Warn("identity disabled, dashboard API is unauthenticated")
	}

	// 10. Readiness checks.
	checks := observability.ReadinessChecks{
		TemplatesLoaded: func() bool { return registry.Len() > 0 },
	}
	if hc, ok := trackingStore.(observability.HealthChecker); ok {
		checks.TrackingStore = hc
	}
	if hc, ok := dedupeStore.(observability.HealthChecker); ok {
		checks.DedupeStore = hc
	}

	// 11. Router.
	router := transport.NewRouter(transport.Dependencies{
		Config:         cfg,
		Recorder:       rec,
		Query:          queries,
		Templates:      registry,
		DedupeStore:    dedupeStore,
		Metrics:        metrics,
		WebhookSecret:  cfg.WebhookSecret(),
		Authenticate:   authenticate,
		HealthHandler:  observability.HandleHealth(),
		ReadyHandler:   observability.HandleReady(checks),
		MetricsHandler: observability.Handler(),
	})

	handler := metrics.MetricsMiddleware(observability.TracingMiddleware(router))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 12. Background reconciler.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	if cfg.Reconcile.Enabled && rec.Enabled() {
		reconciler := recorder.NewReconciler(trackingStore, logger, cfg.Reconcile.DanglingAfter)
		reconciler.OnClosed = metrics.RecordDanglingTraceClosed
		go reconciler.Run(bgCtx, cfg.Reconcile.CheckInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
		return 1
	}

	// Graceful shutdown: stop accepting requests, then drain the detail
	// buffer so terminal writes are not lost, then close dependencies.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	bgCancel()
	rec.Flush(shutdownCtx)
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildTrackingStore wires the configured store driver. A missing DSN is not
// fatal: the recorder falls back to local-only mode and the dashboard API
// serves empty results.
func buildTrackingStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	noop := func() {}

	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory tracking store, traces are lost on restart")
		return store.NewMemoryStore(), noop, nil

	case "postgres":
		dsn := cfg.StoreDSN()
		if dsn == "" {
			logger.Warn("tracking store DSN not configured, recorder running local-only",
				zap.String("dsn_env", cfg.Store.DSNEnv),
			)
			return nil, noop, nil
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("parse postgres dsn: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Store.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.Store.MinIdleConns)
		poolCfg.MaxConnLifetime = cfg.Store.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, noop, fmt.Errorf("create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("ping postgres: %w", err)
		}
		pg := store.NewPgStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		logger.Info("connected to postgres tracking store")
		return pg, pool.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildDedupeStore wires webhook delivery deduplication. Disabled dedupe
// returns a nil store, which the transport layer treats as a passthrough.
func buildDedupeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ingest.DedupeStore, func(), error) {
	noop := func() {}

	if !cfg.Ingest.Dedupe.Enabled {
		return nil, noop, nil
	}

	switch cfg.Ingest.Dedupe.Driver {
	case "memory":
		return ingest.NewMemoryDedupeStore(), noop, nil

	case "redis":
		addr := cfg.DedupeAddr()
		if addr == "" {
			return nil, noop, fmt.Errorf("dedupe driver is redis but %s is not set", cfg.Ingest.Dedupe.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   cfg.Ingest.Dedupe.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("connected to redis dedupe store", zap.String("addr", addr))
		return ingest.NewRedisDedupeStore(client), func() { _ = client.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown dedupe driver %q", cfg.Ingest.Dedupe.Driver)
	}
}
