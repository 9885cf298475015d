package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/logofresh/studio-renderer/internal/ai"
	"github.com/logofresh/studio-renderer/internal/config"
	"github.com/logofresh/studio-renderer/internal/handlers"
	"github.com/logofresh/studio-renderer/internal/redis"
	"github.com/logofresh/studio-renderer/internal/studio"
	"github.com/logofresh/studio-renderer/pkg/models"
)

const janitorInterval = time.Minute

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	occasions := models.NewOccasionRegistry()
	if err := occasions.Load(cfg.Occasions.Path); err != nil {
		logger.Fatal("Failed to load occasions", zap.Error(err))
	}

	decoder := studio.NewDecoder(nil)
	if cfg.Studio.AllowPrivateFetch {
		decoder = studio.NewDecoder(&http.Client{Timeout: 30 * time.Second})
	}

	deps := studio.Dependencies{
		Renderer: studio.NewCanvasRenderer(),
		Decoder:  decoder,
		Options:  studio.OptionsFromConfig(&cfg.Studio),
		Logger:   logger,
		IdleTTL:  cfg.Studio.SessionIdleTTL,
	}

	var variations handlers.VariationGenerator
	if cfg.GenAI.APIKey != "" {
		aiClient, err := ai.NewClient(ctx, cfg.GenAI, logger)
		if err != nil {
			logger.Fatal("Failed to initialize AI client", zap.Error(err))
		}
		deps.Remover = aiClient
		variations = aiClient
	} else {
		logger.Warn("GENAI_API_KEY not set, background removal and variations are disabled")
	}

	// Redis backs session persistence, image change events and the export stream
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory session store", zap.Error(err))
		}
	}
	if redisClient != nil {
		deps.Store = studio.NewRedisStoreFromClient(redisClient.Redis(), cfg.Redis.StoreTTL)
		deps.Publisher = redisClient
		defer redisClient.Close()
	} else {
		deps.Store = studio.NewMemoryStoreWithTTL(cfg.Redis.StoreTTL)
	}

	sessions := studio.NewSessions(deps)
	go sessions.RunJanitor(ctx, janitorInterval)

	pool := studio.NewWorkerPool(cfg.Studio.Workers, sessions, cfg.Studio.ExportTimeout, logger)
	pool.Start()

	var consumer *redis.Consumer
	if redisClient != nil {
		consumer = redis.NewConsumer(redisClient, handlers.NewEventHandler(pool, logger), logger)
		go func() {
			if err := consumer.Start(); err != nil {
				logger.Error("Redis consumer failed", zap.Error(err))
			}
		}()
	}

	// Create HTTP server for the studio API
	mux := http.NewServeMux()
	studioHandler := handlers.NewStudioHandler(sessions, pool, occasions, variations, logger)
	studioHandler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.Int("hard_limit_bytes", cfg.Studio.HardLimitBytes),
		zap.Int("workers", cfg.Studio.Workers),
		zap.Int("occasions", occasions.Len()),
		zap.Bool("redis", redisClient != nil))

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	if consumer != nil {
		consumer.Stop()
	}
	pool.Stop()
	cancel()

	logger.Info("Server shutdown complete")
}
