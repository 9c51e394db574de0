package main

import (
	"context"
	"os"
	"time"

	"mentorledger/internal/amqp"
	"mentorledger/internal/backend"
	"mentorledger/internal/cache"
	"mentorledger/internal/cli"
	applog "mentorledger/internal/log"
	"mentorledger/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting overdue-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend != string(backend.SQLiteBackend) {
		logger.Error("overdue-worker needs the sqlite backend to read ledgers", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("overdue-worker needs AMQP_URL to publish reminders")
		os.Exit(1)
	}

	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	be := cli.OpenBackend(context.Background(), logger, &storeCfg)
	defer be.Cleanup()

	// A broker outage at startup is fatal here; the server tolerates it.
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	processor := services.NewOverdueProcessor(be.Store, amqpClient, cfg.ReminderTTL)

	caches := cache.NewManager()
	caches.Register("overdue_reminders", processor.Sent())
	caches.StartCleanup(time.Hour)
	defer caches.Stop()

	logger.Info("Overdue processor configured",
		"interval", cfg.OverdueInterval,
		"reminder_ttl", cfg.ReminderTTL,
		"sqlite_db", cfg.SQLiteDBPath)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	run := func(now time.Time) {
		count, err := processor.Process(ctx, now)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("Overdue scan failed", "error", err)
			}
			return
		}
		logger.Info("Overdue scan complete",
			"reminders_published", count,
			"next_check", now.Add(cfg.OverdueInterval).Format("15:04:05"))
	}

	run(time.Now())

	ticker := time.NewTicker(cfg.OverdueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
