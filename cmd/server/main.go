// Package main is the entry point for the memcore memory service.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oprina-ai/memcore/internal/api"
	internalcache "github.com/oprina-ai/memcore/internal/cache"
	"github.com/oprina-ai/memcore/internal/config"
	"github.com/oprina-ai/memcore/internal/coordinator"
	"github.com/oprina-ai/memcore/internal/healthcheck"
	"github.com/oprina-ai/memcore/internal/history"
	"github.com/oprina-ai/memcore/internal/mcp"
	"github.com/oprina-ai/memcore/internal/metrics"
	"github.com/oprina-ai/memcore/internal/observability"
	"github.com/oprina-ai/memcore/internal/pattern"
	"github.com/oprina-ai/memcore/internal/postgres"
	"github.com/oprina-ai/memcore/internal/secret"
	"github.com/oprina-ai/memcore/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// Bootstrap logger for startup errors, replaced once config is loaded.
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfgManager, err := config.NewManager(*configPath, bootLogger)
	if err != nil {
		bootLogger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting memcore", "version", version, "backend", cfg.Storage.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	secrets, err := secret.NewManagerFromConfig(cfg.Secrets)
	if err != nil {
		logger.Error("failed to initialize secret manager", "error", err)
		os.Exit(1)
	}
	defer secrets.Close()

	resolve := func(name, value string) string {
		if value == "" {
			return ""
		}
		resolved, err := secrets.Get(ctx, value)
		if err != nil {
			logger.Error("failed to resolve secret", "name", name, "error", err)
			os.Exit(1)
		}
		return resolved
	}

	// Tracing
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}()

	// Durable stores
	var (
		sessions session.Store
		hist     history.Store
		patStore pattern.Store
		db       *sql.DB
	)
	switch cfg.Storage.Backend {
	case "postgres":
		pgCfg := cfg.Storage.Postgres
		pgCfg.Password = resolve("postgres password", pgCfg.Password)

		db, err = postgres.Open(pgCfg)
		if err != nil {
			logger.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		sessStore := session.NewPostgresStore(db, cfg.Storage.InactivityWindow)
		histStore := history.NewPostgresStore(db)
		pStore := pattern.NewPostgresStore(db)
		for name, ensure := range map[string]func(context.Context) error{
			"session": sessStore.EnsureSchema,
			"history": histStore.EnsureSchema,
			"pattern": pStore.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				logger.Error("failed to ensure schema", "store", name, "error", err)
				os.Exit(1)
			}
		}

		if cfg.Archive.Enabled {
			arCfg := cfg.Archive
			arCfg.SecretKey = resolve("archive secret key", arCfg.SecretKey)
			archiver, err := history.NewS3Archiver(arCfg)
			if err != nil {
				logger.Error("failed to initialize archiver", "error", err)
				os.Exit(1)
			}
			histStore.SetArchiver(archiver)
			logger.Info("transcript archival enabled", "bucket", arCfg.BucketName)
		}

		sessions, hist, patStore = sessStore, histStore, pStore
	default:
		memHist := history.NewMemoryStore()
		if cfg.Archive.Enabled {
			arCfg := cfg.Archive
			arCfg.SecretKey = resolve("archive secret key", arCfg.SecretKey)
			archiver, err := history.NewS3Archiver(arCfg)
			if err != nil {
				logger.Error("failed to initialize archiver", "error", err)
				os.Exit(1)
			}
			memHist.SetArchiver(archiver)
		}
		sessions = session.NewMemoryStore(cfg.Storage.InactivityWindow)
		hist = memHist
		patStore = pattern.NewMemoryStore()
	}

	// Cache tier
	cacheCfg := cfg.Cache
	cacheCfg.Redis.Password = resolve("redis password", cacheCfg.Redis.Password)
	c, err := internalcache.New(cacheCfg)
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	engine := pattern.NewEngine(patStore, logger)

	co := coordinator.New(sessions, hist, engine, c, logger, coordinator.Config{
		RecentMessageLimit: cfg.Learning.RecentMessageLimit,
		LearnBufferSize:    cfg.Learning.BufferSize,
		LearnEventsPerSec:  cfg.Learning.EventsPerSec,
	})
	defer co.Close()

	checker := healthcheck.NewChecker(healthcheck.Config{
		Enabled:  cfg.Health.Enabled,
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Health.Timeout,
	}, c, sessions, hist, engine, logger)
	checker.Start(ctx)

	// HTTP surface
	handler := api.NewHandler(co, checker, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	var httpHandler http.Handler = metrics.Middleware(mux)
	httpHandler = observability.RequestIDMiddleware(httpHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Agent-facing MCP surface over stdio.
	if cfg.MCP.Enabled {
		go func() {
			logger.Info("mcp server listening on stdio")
			if err := mcp.ServeStdio(mcp.NewServer(co)); err != nil {
				logger.Error("mcp server error", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	cfgManager.Close()
	logger.Info("server stopped")
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var redactor *observability.Redactor
	if cfg.Redact {
		redactor = observability.NewRedactor()
	}

	return observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stdout,
		JSONFormat: cfg.Format != "text",
	}, redactor).Slog()
}
