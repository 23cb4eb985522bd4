package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/taskflow/pkg/api"
	"github.com/platinummonkey/taskflow/pkg/config"
	"github.com/platinummonkey/taskflow/pkg/database"
	"github.com/platinummonkey/taskflow/pkg/notify"
	"github.com/platinummonkey/taskflow/pkg/observability"
	"github.com/platinummonkey/taskflow/pkg/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("TASKFLOW_CONFIG_FILE"), "Path to YAML config file")
	flag.Parse()

	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
	if err := run(*configPath, logger); err != nil {
		logger.WithError(err).Error("taskflow exited with error")
		os.Exit(1)
	}
}

func run(configPath string, logger *observability.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(observability.ParseLogLevel(cfg.Observability.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = observability.WithLogger(ctx, logger)

	otel, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db.Primary(), db.Driver(), logger); err != nil {
		db.Close()
		return err
	}

	redisClient, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return err
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
		go reportDBStats(ctx, db, metrics)
	}

	blobs, err := storage.New(ctx, cfg.Storage, metrics)
	if err != nil {
		db.Close()
		return err
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	var webhook *notify.WebhookNotifier
	if cfg.Notify.WebhookURL != "" {
		webhook = notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:     cfg.Notify.WebhookURL,
			Secret:  cfg.Notify.WebhookSecret,
			Workers: cfg.Notify.Workers,
			Timeout: cfg.Notify.Timeout,
		}, metrics)
		notifier = webhook
		logger.WithField("url", cfg.Notify.WebhookURL).Info("Webhook notifications enabled")
	}

	server, err := api.NewServer(ctx, api.Dependencies{
		DB:       db.Primary(),
		Reader:   db.Reader(),
		Redis:    redisClient,
		Blobs:    blobs,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		Registry: registry,
		Server:   cfg.Server,
		Auth:     cfg.Auth,
		Version:  version,
	})
	if err != nil {
		db.Close()
		return err
	}

	var handler http.Handler = server
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(server, "taskflow")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otel, logger)
	})
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	if webhook != nil {
		shutdown.Register("notifications", webhook.Close)
	}

	if configPath != "" {
		go watchConfig(ctx, configPath, logger)
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    httpServer.Addr,
			"version": version,
		}).Info("Starting taskflow API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	return shutdown.WaitForShutdown(ctx)
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// watchConfig applies log level changes from the config file without a restart
func watchConfig(ctx context.Context, path string, logger *observability.Logger) {
	defer observability.RecoverPanic(logger, "config watcher")

	err := config.Watch(ctx, path, func(cfg *config.Config) {
		level := observability.ParseLogLevel(cfg.Observability.LogLevel)
		if level != logger.Level() {
			logger.SetLevel(level)
			logger.WithField("level", level.String()).Info("Log level changed")
		}
	}, func(err error) {
		logger.WithError(err).Warn("Ignoring invalid config change")
	})
	if err != nil {
		logger.WithError(err).Warn("Config watcher stopped")
	}
}

func reportDBStats(ctx context.Context, db *database.Manager, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(db.Primary().Stats())
		}
	}
}
