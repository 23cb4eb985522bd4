package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/taskflow/pkg/config"
	"github.com/platinummonkey/taskflow/pkg/database"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

var (
	configPath = flag.String("config", os.Getenv("TASKFLOW_CONFIG_FILE"), "Path to YAML config file")
	runOnce    = flag.Bool("run-once", false, "Run every job once and exit")
)

func main() {
	flag.Parse()

	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	logger.SetLevel(observability.ParseLogLevel(cfg.Observability.LogLevel))

	ctx := observability.WithLogger(context.Background(), logger)

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	j := newJanitor(db.Primary(), cfg.Janitor.ActivityRetention, logger)

	if *runOnce {
		if err := j.runAll(ctx); err != nil {
			logger.WithError(err).Error("Maintenance failed")
			os.Exit(1)
		}
		logger.Info("Maintenance completed")
		return
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{logger})))
	if _, err := c.AddFunc(cfg.Janitor.PurgeSchedule, func() { j.purgeActivity(ctx) }); err != nil {
		logger.WithError(err).Error("Failed to schedule activity purge")
		os.Exit(1)
	}
	if _, err := c.AddFunc(cfg.Janitor.LockoutSchedule, func() { j.clearLockouts(ctx) }); err != nil {
		logger.WithError(err).Error("Failed to schedule lockout cleanup")
		os.Exit(1)
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"purge_schedule":     cfg.Janitor.PurgeSchedule,
		"lockout_schedule":   cfg.Janitor.LockoutSchedule,
		"activity_retention": cfg.Janitor.ActivityRetention.String(),
	}).Info("taskflow janitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully")

	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("Janitor stopped")
}
