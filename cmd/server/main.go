// Command server starts the document ingestion platform.
//
// The server exposes the ingestion job API (trigger, status, listing, retry,
// cancel), the worker status webhook, document retrieval, and admin key
// management. Depending on configuration it dispatches jobs to an external
// processing service over HTTP or runs a local timer-driven simulation.
//
// Usage:
//
//	go run ./cmd/server [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/docuflow/docuflow/internal/api"
	"github.com/docuflow/docuflow/internal/auth/apikey"
	"github.com/docuflow/docuflow/internal/auth/ratelimit"
	"github.com/docuflow/docuflow/internal/document"
	"github.com/docuflow/docuflow/internal/ingest"
	"github.com/docuflow/docuflow/pkg/config"
	"github.com/docuflow/docuflow/pkg/health"
	"github.com/docuflow/docuflow/pkg/logger"
	"github.com/docuflow/docuflow/pkg/metrics"
	"github.com/docuflow/docuflow/pkg/postgres"
	"github.com/docuflow/docuflow/pkg/redis"
	"github.com/docuflow/docuflow/pkg/resilience"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion server",
		"port", cfg.Server.Port,
		"worker_mode", cfg.Worker.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	m := metrics.New()
	m.MustRegister()

	simulated := cfg.Worker.Mode == config.WorkerModeSimulated

	// Storage. Remote mode is backed by postgres; simulated mode runs
	// entirely in memory so the server can start without infrastructure.
	var (
		jobs      ingest.JobStore
		docs      document.Store
		validator *apikey.Validator
	)
	if simulated {
		memDocs := document.NewMemStore()
		docs = memDocs
		jobs = ingest.NewMemStore(memDocs)
		slog.Info("using in-memory stores")
	} else {
		var db *postgres.Client
		err := connectWithRetry(ctx, "postgres", func() error {
			var cerr error
			db, cerr = postgres.New(cfg.Postgres)
			return cerr
		})
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to postgres")

		checker.Register("postgres", health.PingCheck(db.Ping))
		docs = document.NewPGStore(db)
		jobs = ingest.NewPGStore(db)
		validator = apikey.NewValidator(db)
	}

	// Redis status cache, optional.
	var cache *ingest.StatusCache
	if cfg.Redis.Addr != "" {
		var rdb *redis.Client
		err := connectWithRetry(ctx, "redis", func() error {
			var cerr error
			rdb, cerr = redis.NewClient(cfg.Redis)
			return cerr
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)

		checker.Register("redis", health.PingCheck(rdb.Ping))
		cache = ingest.NewStatusCache(rdb, cfg.Redis.CacheTTL, m)
	}

	// Worker adapter.
	var (
		worker ingest.Worker
		sim    *ingest.SimulatedWorker
	)
	if simulated {
		sim = ingest.NewSimulatedWorker(cfg.Worker.Simulated, jobs)
		worker = sim
	} else {
		worker = ingest.NewRemoteWorker(cfg.Worker.Remote)
	}

	// Seed the active-jobs gauge from persisted state: jobs left queued or
	// processing by a previous run still occupy their documents.
	if active, err := jobs.CountActive(ctx); err == nil {
		m.ActiveJobs.Set(float64(active))
	}

	svc := ingest.NewService(ingest.ServiceConfig{
		MaxRetries: cfg.Worker.Simulated.MaxRetries,
	}, jobs, docs, worker, cache, m)

	if sim != nil {
		sim.Bind(svc)
		sim.StartCleanup(ctx)
	}

	h := api.New(api.Config{
		WebhookSecret: cfg.Webhook.Secret,
		SimulatedMode: simulated,
	}, svc, docs, validator)

	routerCfg := api.RouterConfig{
		Metrics: m,
		Checker: checker,
		Timeout: cfg.Server.RequestTimeout,
	}
	if validator != nil {
		routerCfg.Validator = validator
		routerCfg.Limiter = ratelimit.New(time.Minute)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(h, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("ingestion server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
		slog.Info("metrics server listening", "port", cfg.Metrics.Port)
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion server stopped")
}

// connectWithRetry retries startup connections with backoff so the server
// survives infrastructure coming up slightly after it.
func connectWithRetry(ctx context.Context, name string, connect func() error) error {
	return resilience.Retry(ctx, name, resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, connect)
}
