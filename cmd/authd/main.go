package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xstarmail/authd/internal/account"
	"github.com/xstarmail/authd/internal/config"
	"github.com/xstarmail/authd/internal/database"
	"github.com/xstarmail/authd/internal/oauth"
	"github.com/xstarmail/authd/internal/oauth/store"
	"github.com/xstarmail/authd/internal/web/handler"
	"github.com/xstarmail/authd/internal/web/middleware"
)

func main() {
	ctx := context.Background()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var rateLimiter middleware.RateLimiter
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rateLimiter = middleware.NewRedisRateLimiter(redisClient)
		logger.Info("Using redis rate limiter", "addr", cfg.Redis.Addr)
	}

	accountService := account.NewService(st)
	registry := oauth.NewRegistry(st)
	oauthService := oauth.NewService(st, logger,
		cfg.OAuth.CodeTTL, cfg.OAuth.AccessTokenTTL, cfg.OAuth.RefreshTokenTTL,
		cfg.Database.QueryTimeout)

	sweeper := store.NewSweeper(st, cfg.OAuth.SweepInterval, logger)
	go sweeper.Run(ctx)

	mux := http.NewServeMux()

	oauthHandler := handler.NewOAuthHandler(&cfg, logger, registry, oauthService, accountService, st, rateLimiter)
	oauthHandler.RegisterRoutes(mux)

	userInfoHandler := handler.NewUserInfoHandler(logger, oauthService)
	userInfoHandler.RegisterRoutes(mux)

	uiHandler := handler.NewUIHandler(&cfg, logger, st, accountService, registry, oauthHandler)
	uiHandler.RegisterRoutes(mux)

	healthHandler := handler.NewHealthHandler(st)
	healthHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        mux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("Listening and serving", "addr", server.Addr, "base_url", cfg.GetBaseURL())
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}

		logger.Info("Shutdown completed")
	}

	return nil
}

// newStore selects the backing store: Postgres when DB_URL is set, the
// in-memory store otherwise.
func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DB_URL not set, using in-memory store; state is lost on restart")
		return store.NewMemory(), nil
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Connected to database")
	return store.NewPostgres(db), nil
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.Server.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
