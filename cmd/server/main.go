// Package main is the entry point for the docflow workflow server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/internal/analytics"
	"github.com/Bhavik-SSBDigital/docflow/internal/config"
	"github.com/Bhavik-SSBDigital/docflow/internal/directory"
	"github.com/Bhavik-SSBDigital/docflow/internal/inbox"
	"github.com/Bhavik-SSBDigital/docflow/internal/notify"
	"github.com/Bhavik-SSBDigital/docflow/internal/observability"
	"github.com/Bhavik-SSBDigital/docflow/internal/process"
	"github.com/Bhavik-SSBDigital/docflow/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "docflow", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Open stores.
	procStore, dir, inboxStore, storeCloser, err := buildStores(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if storeCloser != nil {
		defer storeCloser()
	}

	// Step 5: Analytics sink.
	sink, sinkCloser := buildAnalyticsSink(cfg.Analytics, logger)
	if sinkCloser != nil {
		defer sinkCloser()
	}

	// Step 6: Outbound mail.
	var dispatcher notify.Dispatcher
	if cfg.Mail.Enabled {
		dispatcher = notify.NewSMTPDispatcher(cfg.Mail, os.Getenv(cfg.Mail.PasswordEnv))
		logger.Info("mail enabled", zap.String("host", cfg.Mail.Host))
	} else {
		dispatcher = notify.NewLogDispatcher(logger)
	}

	// Step 7: Inbox service and workflow engine.
	inboxSvc := inbox.NewService(inboxStore, metrics, logger)
	engine := process.NewEngine(procStore, dir, inboxSvc, dispatcher, process.NoopAccessGranter{}, sink, metrics, logger, cfg.Engine)

	// Step 8: Build HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	readiness := observability.ReadinessChecks{
		ProcessStore: procStore,
		InboxStore:   inboxStore,
	}
	if hc, ok := sink.(observability.HealthChecker); ok {
		readiness.AnalyticsSink = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Engine:       engine,
		Inbox:        inboxSvc,
		Metrics:      metrics,
		Logger:       logger,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Readiness:    readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start the pending-item sweep.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	sweeper := inbox.NewSweeper(inboxStore, cfg.Engine.PendingAlertAfter, cfg.Engine.SweepInterval, metrics, logger)
	go sweeper.Run(bgCtx)

	// Step 10: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store", cfg.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStores opens the process store, directory, and inbox store on the
// configured driver. The memory driver serves local development and tests.
func buildStores(
	ctx context.Context,
	cfg config.StoreConfig,
	logger *zap.Logger,
) (process.Store, directory.Service, inbox.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		return process.NewMemoryStore(), directory.NewMemoryDirectory(), inbox.NewMemoryStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, nil, nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("store: ping: %w", err)
		}

		return process.NewPgStore(pool), directory.NewPgDirectory(pool), inbox.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildAnalyticsSink creates the daily-counter sink. Disabled or
// misconfigured analytics degrade to a no-op, never a startup failure.
func buildAnalyticsSink(cfg config.AnalyticsConfig, logger *zap.Logger) (analytics.Sink, func()) {
	if !cfg.Enabled {
		return analytics.NoopSink{}, nil
	}

	addr := os.Getenv(cfg.AddrEnv)
	if addr == "" {
		logger.Warn("analytics enabled but address not configured, counters disabled",
			zap.String("env", cfg.AddrEnv))
		return analytics.NoopSink{}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
	logger.Info("analytics sink enabled", zap.String("addr", addr))
	return analytics.NewRedisSink(client), func() { client.Close() }
}
