package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivamkadam692/WorkConnect/internal/api"
	"github.com/Shivamkadam692/WorkConnect/internal/api/middleware"
	"github.com/Shivamkadam692/WorkConnect/internal/config"
	"github.com/Shivamkadam692/WorkConnect/internal/handlers"
	"github.com/Shivamkadam692/WorkConnect/internal/lifecycle"
	"github.com/Shivamkadam692/WorkConnect/internal/notify"
	"github.com/Shivamkadam692/WorkConnect/internal/presence"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

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

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db := openStore(ctx, cfg, logger)
	defer db.Close()

	// Redis is optional outside production: no rate limiting and a local-only hub.
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// The hub dispatches inbound events to the lifecycle, which in turn
	// broadcasts through the hub.
	var dispatcher *handlers.SocketDispatcher
	hubOpts := presence.HubOptions{
		Logger:      logger,
		CheckOrigin: originChecker(cfg.CORSAllowedOrigins),
		OnMessage: func(ctx context.Context, conn *presence.Conn, env presence.Envelope) {
			dispatcher.Handle(ctx, conn, env)
		},
	}
	if redisStore != nil {
		hubOpts.Relay = redisStore
	}
	hub := presence.NewHub(hubOpts)

	notifications := notify.NewService(db, notify.Options{Pusher: hub, Logger: logger})
	requests := lifecycle.NewService(db, lifecycle.Options{
		Notifier: notifications,
		Hub:      hub,
		Logger:   logger,
	})
	dispatcher = handlers.NewSocketDispatcher(requests, logger)

	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("presence relay stopped")
		}
	}()

	sweeper := notify.NewSweeper(db, notify.SweeperOptions{
		Interval:  cfg.SweepInterval,
		Retention: cfg.ReadNotificationRetention,
		Logger:    logger,
	})
	go sweeper.Run(ctx)

	if cfg.PaymentWebhookSecret == "" {
		logger.Warn().Msg("PAYMENT_WEBHOOK_SECRET not set, payment callbacks will be rejected")
	}

	// Create router
	router := api.NewRouter(api.Options{
		Logger: logger,
		Handler: handlers.NewHandler(handlers.Deps{
			DB:            db,
			Redis:         redisStore,
			Requests:      requests,
			Notifications: notifications,
			Hub:           hub,
			Logger:        logger,
		}),
		Redis: redisStore,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PaymentSecret:      cfg.PaymentWebhookSecret,
	})

	// Create server. No WriteTimeout: websocket connections are long-lived
	// and the hub sets its own write deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Bool("postgres", cfg.UsePostgres()).
			Bool("redis", redisStore != nil).
			Msg("starting WorkConnect server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	stop()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	hub.Shutdown()

	logger.Info().Msg("server stopped")
}

// openStore connects to PostgreSQL when configured, running migrations first,
// and falls back to the embedded SQLite store.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) store.DataStore {
	if !cfg.UsePostgres() {
		db, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
		return db
	}

	logger.Info().Msg("running database migrations...")
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("migrations completed")

	db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	logger.Info().Msg("connected to PostgreSQL")
	return db
}

// originChecker allows websocket upgrades from the configured CORS origins.
// With none configured, any origin is accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
