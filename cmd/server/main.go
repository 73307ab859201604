package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/qualityhub/internal/app"
	"github.com/yourorg/qualityhub/internal/handler"
	"github.com/yourorg/qualityhub/internal/infrastructure/logger"
	"github.com/yourorg/qualityhub/internal/infrastructure/redis"
	"github.com/yourorg/qualityhub/internal/observability/tracing"
	"github.com/yourorg/qualityhub/internal/repository"
	"github.com/yourorg/qualityhub/internal/repository/memory"
	"github.com/yourorg/qualityhub/internal/security/audit"
	"github.com/yourorg/qualityhub/internal/security/resolver"
	"github.com/yourorg/qualityhub/internal/security/token"
	"github.com/yourorg/qualityhub/internal/service"
	"github.com/yourorg/qualityhub/internal/worker"
	"github.com/yourorg/qualityhub/pkg/config"
	"github.com/yourorg/qualityhub/pkg/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "qualityhub: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting qualityhub server",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.Storage),
	)
	if cfg.GeneratedSecret {
		log.Warn("JWT_SECRET not set; using a random per-process secret, tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 4. Storage
	probes := map[string]handler.Probe{}
	var repos app.Repositories
	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn("using in-memory storage; data is lost on exit")
		store := memory.NewStore()
		repos = app.Repositories{
			Tenants:    store.Tenants(),
			Users:      store.Users(),
			Deviations: store.Deviations(),
			Checklists: store.Checklists(),
			WorkOrders: store.WorkOrders(),
		}
	default:
		pool, err := database.NewConnectionPool(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool.GetDB(), log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		db := pool.GetDB()
		repos = app.Repositories{
			Tenants:    repository.NewPostgresTenantRepository(db, log),
			Users:      repository.NewPostgresUserRepository(db, log),
			Deviations: repository.NewPostgresDeviationRepository(db, log),
			Checklists: repository.NewPostgresChecklistRepository(db, log),
			WorkOrders: repository.NewPostgresWorkOrderRepository(db, log),
		}
		probes["database"] = pool.Health
	}

	// 5. Optional Redis tenant cache
	var shared resolver.SharedCache
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		shared = redis.NewTenantCache(client, cfg.TenantCacheTTL, log)
		probes["redis"] = client.Ping
	}

	// 6. Security components
	tokens, err := token.NewManager(token.Options{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	application, err := app.New(app.Deps{
		Config:      cfg,
		Repos:       repos,
		Tokens:      tokens,
		SharedCache: shared,
		Probes:      probes,
		Logger:      log,
		AuditLogger: log.With(slog.String("component", "audit")),
		ActivityHub: audit.NewHub(64),
	})
	if err != nil {
		return err
	}
	defer application.Close()

	// 7. Demo data
	if cfg.SeedDemo {
		if cfg.SeedPassword == "" {
			log.Warn("SEED_DEMO is on but SEED_PASSWORD is empty; skipping demo data")
		} else if err := service.Seed(ctx, repos.Tenants, repos.Users, application.Auth, cfg.SeedPassword, service.DemoTenants, log); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	// 8. Background sweeper for in-memory caches and throttles
	go worker.NewSweeper(application.SweepTasks(), log, time.Minute).Start(ctx)

	// 9. Start HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           application.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			slog.Int("port", cfg.ServerPort),
			slog.Int("rate_limit", cfg.RateLimitPerMinute),
			slog.Bool("host_fallback", cfg.HostFallback.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
	return nil
}
