package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orrn/printfarm/internal/api"
	"github.com/orrn/printfarm/internal/api/middleware"
	"github.com/orrn/printfarm/internal/cache"
	"github.com/orrn/printfarm/internal/config"
	"github.com/orrn/printfarm/internal/core"
	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/live"
	"github.com/orrn/printfarm/internal/logging"
	"github.com/orrn/printfarm/internal/notify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "printfarm: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return err
	}
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		return err
	}
	defer db.Close()
	store := db.NewStore(db.GetDB())

	hub := live.NewHub()
	hub.Start()
	defer hub.Stop()

	webhooks := notify.NewWebhookSink(store, cfg.Notifications.Timeout)
	dispatcher := notify.NewDispatcher(notify.Config{
		WorkerCount: cfg.Notifications.WorkerCount,
		QueueSize:   cfg.Notifications.QueueSize,
		RetryCount:  cfg.Notifications.RetryCount,
		RetryDelay:  cfg.Notifications.RetryDelay,
		Timeout:     cfg.Notifications.Timeout,
	}, notify.NewStoreSink(store), webhooks, hub)

	if cfg.AMQP.URL != "" {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		defer conn.Close()

		sink, err := notify.NewAMQPSink(conn, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		dispatcher.AddSink(sink)
		log.WithField("exchange", cfg.AMQP.Exchange).Info("publishing notifications to rabbitmq")
	}

	dispatcher.Start()
	defer dispatcher.Stop()

	tracker := core.NewTracker(store, core.NewStorePreferences(store), dispatcher).UseBroadcaster(hub)

	var metricsLimiter gin.HandlerFunc
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cache.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer client.Close()

		tracker.UseCache(cache.NewStatusCache(client, cfg.Redis.StatusTTL))
		metricsLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RedisClient: client,
			Limit:       cfg.Redis.RateLimit,
			Window:      cfg.Redis.RateWindow,
			KeyPrefix:   "printfarm:rl:metrics:",
			Extractor:   metricsKey,
		})
		log.WithField("addr", cfg.Redis.Addr).Info("redis status cache enabled")
	}

	auth, err := middleware.NewAuthMiddleware(ctx, store, cfg.Auth.Enabled)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Services{
		Config:         cfg,
		Store:          store,
		Registry:       core.NewRegistry(store),
		Queue:          core.NewQueue(store, core.NewStoreApprovals(store), dispatcher),
		Jobs:           core.NewJobs(store, dispatcher, cfg.Jobs.EstimatedTimeBuffer),
		Tracker:        tracker,
		Hub:            hub,
		Webhooks:       webhooks,
		Auth:           auth,
		MetricsLimiter: metricsLimiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	log.Info("shutdown complete")
	return nil
}

// metricsKey counts telemetry per client and status record.
func metricsKey(c *gin.Context) string {
	return middleware.ClientIP(c) + ":" + c.Param("id")
}
