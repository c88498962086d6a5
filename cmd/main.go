/**
 * @description
 * This is the main entry point for the donation-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the Redis job queue, the provider gateway, message brokers,
 * repositories, the core application service, the in-process scheduler, and the
 * HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for the job queue and rate limiting.
 * - internal/api, internal/app, internal/config, internal/queue, internal/store: Internal packages.
 * - pkg/alerts, pkg/providerclient, pkg/rabbitmq: Alerting, exchange gateway and event bus clients.
 */

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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/resgateprime/donation-service/internal/api"
	"github.com/resgateprime/donation-service/internal/app"
	"github.com/resgateprime/donation-service/internal/config"
	"github.com/resgateprime/donation-service/internal/queue"
	"github.com/resgateprime/donation-service/internal/store"
	"github.com/resgateprime/donation-service/pkg/alerts"
	"github.com/resgateprime/donation-service/pkg/providerclient"
	rmrabbit "github.com/resgateprime/donation-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config validation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("starting donation-service", "port", cfg.ServerPort, "provider", cfg.ProviderName)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database url parse failed", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// Redis backs the job queue and webhook rate limiting. It is optional:
	// without it jobs run inline and rate limiting is disabled.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; running without queue", "error", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				logger.Warn("redis ping failed; running without queue", "error", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				logger.Info("redis connected")
			}
			cancelPing()
		}
	} else {
		logger.Warn("redis url missing; jobs will run inline and rate limiting is disabled")
	}

	// Initialize the RabbitMQ producer to publish lifecycle events.
	var eventProducer rmrabbit.Publisher
	producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.EventExchange, logger)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		eventProducer = &rmrabbit.EventProducerFallback{Logger: logger}
	} else {
		defer producer.Close()
		eventProducer = producer
		logger.Info("rabbitmq producer connected", "exchange", cfg.EventExchange)
	}

	// Initialize the provider gateway for order placement and withdrawals.
	gateway, err := providerclient.New(cfg.ProviderName, cfg.ProviderAPIURL, cfg.ProviderAPIKey, cfg.ProviderAPISecret)
	if err != nil {
		logger.Error("provider gateway init failed", "error", err)
		os.Exit(1)
	}

	notifier := alerts.New(cfg.SlackWebhookURL, logger)

	// The queue's inline fallback runs jobs through the service, which in turn
	// enqueues new jobs, so the runner is bound after the service exists.
	var donationService *app.Service
	jobQueue := queue.NewWithRedis(redisClient, func(ctx context.Context, job *queue.Job) error {
		return donationService.HandleJob(ctx, job)
	}, logger)

	repository := store.NewPostgresRepository(dbpool)
	donationService = app.NewService(repository, gateway, jobQueue, notifier, eventProducer, cfg, logger)

	// Start the in-process scheduler for worker and reconcile runs.
	scheduler := app.NewScheduler(donationService, logger, cfg)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// Initialize the API handlers and router. A nil limiter allows all
	// webhook traffic.
	var limiter *app.RedisRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, "")
	}
	handlers := api.NewDonationHandlers(donationService, limiter, cfg, logger)
	router := api.NewRouter(handlers, api.RouterConfig{
		InternalAPISecret:  cfg.InternalAPISecret,
		CronSecret:         cfg.CronSecret,
		DashboardJWTSecret: cfg.DashboardJWTSecret,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
}
