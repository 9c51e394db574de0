package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"mentorledger/internal/cli"
	"mentorledger/internal/core"
	apphttp "mentorledger/internal/http"
	applog "mentorledger/internal/log"
	"mentorledger/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	be := cli.OpenBackend(context.Background(), logger, cfg)

	ledgers := services.NewLedgerService(be.Store, be.Store, be.Publisher,
		services.WithDefaultCurrency(core.CurrencyCode(cfg.DefaultCurrency)),
		services.WithBalanceEnforcement(cfg.EnforceBalance),
	)

	srv, err := apphttp.NewServer(":"+cfg.Port, ledgers, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
		Readiness:          be.Readiness,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		_ = be.Cleanup()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting mentorledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"default_currency", cfg.DefaultCurrency,
		"events_enabled", be.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = be.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
