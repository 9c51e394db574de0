package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"mentorledger/internal/amqp"
	"mentorledger/internal/backend"
	"mentorledger/internal/cli"
	"mentorledger/internal/core"
	applog "mentorledger/internal/log"
	"mentorledger/internal/services"
	"mentorledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend != string(backend.SQLiteBackend) {
		logger.Error("ledger-worker needs the sqlite backend to read ledgers", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Events are consumed here, so the backend gets no publisher of its own.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	be := cli.OpenBackend(context.Background(), logger, &storeCfg)
	defer be.Cleanup()

	mirror, err := cli.OpenMirror(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize ledger mirror", "error", err)
		os.Exit(1)
	}

	ledgers := services.NewLedgerService(be.Store, be.Store, nil,
		services.WithDefaultCurrency(core.CurrencyCode(cfg.DefaultCurrency)))
	syncWorker := worker.NewSheetsSyncWorker(ledgers, mirror, worker.SyncConfig{ResyncInterval: cfg.SyncInterval})

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - mirror is refreshed by periodic resync only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeEvents(gctx, syncWorker.HandleEvent)
		})
	}
	g.Go(func() error {
		if err := syncWorker.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return syncWorker.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ledger-worker stopped with error", "error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
