package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nowplaying/backend/internal/broker"
	"github.com/nowplaying/backend/internal/cache"
	"github.com/nowplaying/backend/internal/config"
	"github.com/nowplaying/backend/internal/database"
	"github.com/nowplaying/backend/internal/db"
	"github.com/nowplaying/backend/internal/logging"
	"github.com/nowplaying/backend/internal/router"
	"github.com/nowplaying/backend/internal/sentry"
	"github.com/nowplaying/backend/internal/services"
)

const etagTTL = 24 * time.Hour

func main() {
	// Load configuration (and .env) first so the log settings apply
	cfg := config.Load()
	logging.Initialize(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server failed", slog.Any("error", logging.WithStack(err)))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Error channel
	enabled, err := sentry.Init(cfg.SentryDSN, cfg.SentryEnvironment)
	if err != nil {
		return err
	}
	if enabled {
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database
	sqlDB, err := database.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(sqlDB); err != nil {
		return err
	}

	queries := db.New(sqlDB)

	// ETag store: Redis when configured, otherwise in-process
	var etags cache.Store = cache.NewMemoryStore()
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(ctx, cfg.RedisURL, etagTTL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		etags = redisStore
		slog.Info("using redis etag store")
	}

	// Services
	authService := services.NewAuthService(cfg.JWTSecret, cfg.AdminTokenDuration)
	adminService := services.NewAdminService(queries, authService)
	statusService := services.NewStatusService(queries, etags)
	spotifyService := services.NewSpotifyService(services.SpotifyConfig{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		RefreshToken: cfg.SpotifyRefreshToken,
		RedirectURI:  cfg.SpotifyRedirectURI,
		AccountsURL:  cfg.SpotifyAccountsURL,
		APIURL:       cfg.SpotifyAPIURL,
		Timeout:      cfg.UpstreamTimeout,
	})

	if err := adminService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminID); err != nil {
		return err
	}
	if err := statusService.EnsureDefaults(ctx); err != nil {
		return err
	}

	// Broadcast hub
	registry := broker.NewRegistry(cfg.MaxConnections, nil)
	hub := broker.NewHub(registry, spotifyService, broker.Options{
		PollInterval:   cfg.PollInterval,
		FetchTimeout:   cfg.UpstreamTimeout,
		SweepInterval:  cfg.SweepInterval,
		StaleThreshold: cfg.StaleThreshold,
		Production:     cfg.Production,
	})

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go hub.Run(hubCtx)
	if cfg.Production {
		go hub.RunSweeper(hubCtx)
	}

	rt := router.New(cfg, router.Deps{
		Hub:      hub,
		Tracks:   spotifyService,
		Status:   statusService,
		Admins:   adminService,
		Auth:     authService,
		Reporter: sentry.Reporter{},
	})
	defer rt.Close()

	// No WriteTimeout: streams are long-lived and set per-write deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           rt,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	// Streams admitted while the listener closes.
	srv.RegisterOnShutdown(func() { hub.Shutdown() })

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			slog.String("addr", srv.Addr),
			slog.String("environment", cfg.Environment()),
			slog.Int("max_stream_connections", cfg.MaxConnections),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	cancelHub()
	closed := hub.Shutdown()
	slog.Info("closed stream connections", slog.Int("count", closed))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
