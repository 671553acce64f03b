package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/api"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/config"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/engine"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/health"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/mail"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/metrics"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/queue"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/scheduler"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/store"
	ws "github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/websocket"
	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	q := queue.New(redisClient, logger)
	m := metrics.New()

	// WebSocket hub for live delivery events
	hub := ws.NewHub(logger)
	go hub.Run()

	// Engine
	defaults := engine.Defaults{
		BatchSize:   cfg.DefaultBatchSize,
		BatchDelay:  cfg.DefaultBatchDelay,
		MaxAttempts: cfg.MaxAttempts,
	}
	dispatcher := engine.NewDispatcher(pgStore, pgStore, q, defaults, logger)
	control := engine.NewControlPlane(pgStore, pgStore, q, dispatcher, logger)
	abTests := engine.NewABTestManager(pgStore, pgStore, pgStore, dispatcher, logger)
	limiter := engine.NewRateLimiter(logger)
	defer limiter.Stop()

	// Workers
	transport := mail.NewSMTPTransport(cfg.SMTPHelloName, logger)
	sender := worker.NewSender(pgStore, q, transport, limiter, abTests, hub, m, worker.Config{
		SendTimeout:     cfg.SendTimeout,
		Backoff:         cfg.Backoff,
		TrackingBaseURL: cfg.TrackingBaseURL,
	}, logger)
	pool := worker.NewPool(cfg.NumWorkers, sender, logger)
	poller := worker.NewPoller(q, pool, logger)

	runCtx, stopWorkers := context.WithCancel(ctx)
	pool.Start(runCtx)
	go poller.Start(runCtx)
	logger.Info("worker pool started", "workers", cfg.NumWorkers)

	// Health monitor and scheduler
	monitor := health.NewMonitor(q, pgStore, poller, m, logger)
	go monitor.Run(runCtx, 15*time.Second)

	sched := scheduler.New(pgStore, dispatcher, logger)
	if err := sched.Start(runCtx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// Setup router
	router := api.NewRouter(pgStore, q, dispatcher, control, abTests, monitor, poller, hub, m, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop pulling new jobs, wait for the poller to exit, then drain
	// in-flight sends. Closing the pool while the poller can still submit
	// would panic on the closed jobs channel.
	stopWorkers()
	poller.Wait()
	pool.Stop()

	logger.Info("server stopped")
}
