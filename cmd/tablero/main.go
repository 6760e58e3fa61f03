package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"tablero/internal/cli"
	apphttp "tablero/internal/http"
	applog "tablero/internal/log"
	"tablero/internal/middleware/ratelimit"
	"tablero/internal/services"
)

func main() {
	cli.LoadEnvFile()

	settings, err := cli.LoadSettings()
	if err != nil {
		cli.SetupLogger("info", "text", applog.ComponentApp).Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	cfg := settings.Config
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentApp)

	result, err := cli.InitBackend(context.Background(), logger, settings)
	cli.MustStart(logger, "backend", err)

	fairs := services.NewFairService(result.Backend, result.Backend, services.FairOptions{
		Years:        cfg.FeriasYears,
		Venues:       settings.Venues,
		FixedPeriods: cfg.FixedPeriods(),
		Logger:       logger,
	})
	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = cfg.RateLimitPerMinute

	srv, err := apphttp.NewServer(net.JoinHostPort("", cfg.Port), apphttp.Options{
		Applications:   services.NewApplicationService(result.Backend, logger),
		Fairs:          fairs,
		Imports:        result.Imports,
		Ready:          result.Ready,
		DefaultYear:    cfg.SelectedYear(),
		UploadMaxBytes: cfg.UploadMaxBytes,
		RateLimit:      rl,
		Logger:         logger,
	})
	cli.MustStart(logger, "http", err)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownGrace, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", "error", err)
			}
		}
	})

	logger.Info("Starting tablero server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"years", cfg.FeriasYears,
		"venues", len(settings.Venues),
		"imports_enabled", result.Imports != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
