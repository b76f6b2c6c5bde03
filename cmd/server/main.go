package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/api"
	"github.com/parleychat/parley/internal/assistant"
	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/handlers"
	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/store"
	"github.com/parleychat/parley/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Run migrations
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Initialize the primary store: PostgreSQL when configured, SQLite as
	// the development fallback
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer dataStore.Close()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Domain services
	registry := chat.NewRegistry(dataStore)
	messageLog := chat.NewMessageLog(dataStore)
	invites := chat.NewInvites(dataStore, registry)

	// Fan-out hub, bridged across instances when Redis is available
	var bridgePub hub.Publisher
	if redisStore != nil {
		bridgePub = redisStore
	}
	eventHub := hub.NewHub(logger, bridgePub)

	bridgeCtx, stopBridge := context.WithCancel(ctx)
	defer stopBridge()
	if redisStore != nil {
		bridge := hub.NewBridge(redisStore, eventHub, logger)
		go bridge.Run(bridgeCtx)
	}

	// Assistant proxy
	var assistantClient *assistant.Client
	if cfg.AssistantURL != "" {
		assistantClient = assistant.NewClient(cfg.AssistantURL, cfg.AssistantAPIKey)
		logger.Info().Msg("assistant backend configured")
	}

	// HTTP and WebSocket layers
	h := handlers.NewHandler(dataStore, redisStore, registry, messageLog, invites, eventHub, assistantClient, cfg, logger)
	wsServer := ws.NewServer(dataStore, redisStore, eventHub, messageLog, logger)
	router := api.NewRouter(logger, cfg, dataStore, redisStore, h, wsServer)

	// Create server. No global read/write timeouts: WebSocket sessions are
	// long-lived and manage their own deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting Parley server")

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
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
