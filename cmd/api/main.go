// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/heirloom-restoration/workshop/internal/backend"
	"github.com/heirloom-restoration/workshop/internal/cache"
	"github.com/heirloom-restoration/workshop/internal/config"
	"github.com/heirloom-restoration/workshop/internal/events"
	"github.com/heirloom-restoration/workshop/internal/handler"
	"github.com/heirloom-restoration/workshop/internal/query"
	"github.com/heirloom-restoration/workshop/internal/ratelimit"
	"github.com/heirloom-restoration/workshop/internal/retry"
	"github.com/heirloom-restoration/workshop/internal/service"
	"github.com/heirloom-restoration/workshop/pkg/logger"
	"github.com/heirloom-restoration/workshop/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.Env == "development" {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info("starting API server",
		zap.String("backend", cfg.BackendDriver),
		zap.String("rate_limit_store", cfg.RateLimitStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "heirloom-workshop", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	b, err := newBackend(cfg)
	if err != nil {
		return err
	}

	bus, err := newBus(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	store, closeStore, err := newRateLimitStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	limiter := ratelimit.New(store, log)

	// Query optimizer
	c := cache.New()
	go c.Run(ctx, cfg.CacheSweepInterval)
	optimizer := query.New(b, c, query.Config{
		Retry:     retry.Config{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay},
		BatchWait: cfg.BatchWindow,
		MaxBatch:  cfg.BatchMaxSize,
	}, log)

	// Initialize services
	conversationSvc := service.NewConversationService(b, optimizer, bus, log)
	messageSvc := service.NewMessageService(b, conversationSvc, optimizer, bus, log)
	chatSvc := service.NewChatService(conversationSvc, messageSvc)

	// Initialize handlers
	handlers := handler.Handlers{
		Health:        handler.NewHealthHandler(bus),
		Session:       handler.NewSessionHandler(b, log),
		Portfolio:     handler.NewPortfolioHandler(service.NewPortfolioService(b, optimizer, log), log),
		Team:          handler.NewTeamHandler(service.NewTeamService(b, optimizer), log),
		Conversations: handler.NewConversationHandler(conversationSvc, messageSvc, log),
		Stream:        handler.NewStreamHandler(bus, conversationSvc, log),
		Chat: handler.NewChatHandler(chatSvc, messageSvc, limiter, ratelimit.Options{
			Limit:      cfg.ChatStartLimit,
			Window:     cfg.ChatStartWindow,
			Identifier: "chat-start",
		}, log),
		Dashboard: handler.NewDashboardHandler(
			service.NewDashboardService(optimizer),
			service.NewCustomerService(optimizer),
			optimizer,
			log,
		),
		Uploads: handler.NewUploadHandler(service.NewUploadService(b, log), log),
	}

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		AdminRole:         cfg.AdminRole,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		ChatMessageLimit: ratelimit.Options{
			Limit:      cfg.ChatMessageLimit,
			Window:     cfg.ChatMessageWindow,
			Identifier: "chat-message",
		},
	}, handlers, limiter, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func newBackend(cfg *config.Config) (backend.Backend, error) {
	if cfg.BackendDriver == config.DriverMemory {
		return backend.NewMemory(), nil
	}
	return backend.NewSupabase(backend.SupabaseConfig{
		URL:    cfg.SupabaseURL,
		APIKey: cfg.SupabaseKey,
	})
}

func newBus(ctx context.Context, cfg *config.Config, log *logger.Logger) (events.Bus, error) {
	if cfg.NATSURL == "" {
		log.Info("NATS_URL not set, chat events stay in process")
		return events.NewLocalBus(), nil
	}

	client, err := events.Connect(events.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	bus, err := events.NewNATSBus(ctx, client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}
	return bus, nil
}

func newRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func(), error) {
	if cfg.RateLimitStore == config.StoreRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		store := ratelimit.NewRedisStore(redis.NewClient(opts))
		return store, func() { _ = store.Close() }, nil
	}

	store := ratelimit.NewMemoryStore()
	go store.Run(ctx, cfg.RateLimitSweepTick)
	return store, func() {}, nil
}
