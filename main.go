package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/config"
	"github.com/radiusdt/flowlens/internal/database"
	"github.com/radiusdt/flowlens/internal/httpserver"
	"github.com/radiusdt/flowlens/internal/metrics"
	"github.com/radiusdt/flowlens/internal/middleware"
	"github.com/radiusdt/flowlens/internal/similarity"
	"github.com/radiusdt/flowlens/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to standard log
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting Flowlens",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("source", cfg.Source.Backend),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics("flowlens")
	}

	// Initialize the record source backend
	var source storage.RecordSource
	switch cfg.Source.Backend {
	case "postgres":
		pg, err := storage.NewPostgresSource(ctx, storage.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pg.Close()
		source = pg
		if m != nil {
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						m.UpdateDBStats(pg.Stat())
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	case "clickhouse":
		ch, err := storage.NewClickHouseSource(ctx, storage.ClickHouseConfig{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			User:     cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
			Timeout:  cfg.ClickHouse.Timeout,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		defer ch.Close()
		source = ch
	default:
		source = storage.NewMemorySource()
	}

	// Initialize the similarity scorer, Redis-cached when available
	var scorer similarity.Scorer
	if cfg.Similarity.Enabled {
		client := similarity.NewClient(similarity.Config{
			BaseURL: cfg.Similarity.BaseURL,
			APIKey:  cfg.Similarity.APIKey,
			Model:   cfg.Similarity.Model,
			Timeout: cfg.Similarity.Timeout,
		}, logger)
		client.SetMetrics(m)
		scorer = client

		redisDB, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, similarity scores will not be cached", zap.Error(err))
		} else {
			defer redisDB.Close()
			cache := similarity.NewCache(redisDB.Client, cfg.Similarity.CacheTTL, logger)
			cache.SetMetrics(m)
			scorer = similarity.NewCachedScorer(client, cache)
		}
	}

	// Build dependencies
	deps := &httpserver.Dependencies{
		Source:  source,
		Uploads: storage.NewMemorySource(),
		Scorer:  scorer,
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	// Create HTTP server with all middlewares
	handler := httpserver.NewServer(deps)

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit (global, then per-IP) -> Auth -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimitMW.SetMetrics(m)
	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				rateLimitMW.HandlerPerIP(
					authMW.Handler(handler),
				),
			),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Start rate limiter cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rateLimitMW.CleanupIPLimiters()
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Cancel main context to stop background goroutines
	cancel()

	logger.Info("server stopped")
}
