package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/abxy/internal/api"
	"github.com/eldtechnologies/abxy/internal/config"
	"github.com/eldtechnologies/abxy/internal/crypto"
	"github.com/eldtechnologies/abxy/internal/logging"
	"github.com/eldtechnologies/abxy/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger := logging.New(cfg.Env, os.Stdout)

	ctx := context.Background()

	// Initialize the data store: PostgreSQL when configured, SQLite otherwise
	var data store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		data = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		data = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer data.Close()

	// Initialize the session store: Redis when configured, memory otherwise
	var sessions store.SessionStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		sessions = redisStore
		redisClient = redisStore.Client()
		logger.Info().Msg("connected to Redis")
	} else {
		sessions = store.NewMemorySessionStore()
		logger.Warn().Msg("REDIS_URL not set: sessions are in memory and rate limiting is off")
	}

	// Create router
	router := api.NewRouter(api.Deps{
		Logger:    logger,
		Data:      data,
		Sessions:  sessions,
		Tokens:    crypto.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Redis:     redisClient,
		Whitelist: cfg.RateLimitWhitelist,
		AutoBlock: cfg.AutoBlock,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting abxy server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
