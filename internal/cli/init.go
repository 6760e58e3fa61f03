// Package cli provides the startup steps shared by cmd/tablero,
// cmd/import-worker and the tableroctl commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tablero/internal/backend"
	"tablero/internal/config"
	"tablero/internal/core"
	applog "tablero/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT values and
// makes it the slog default.
func SetupLogger(level, format, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Format:    applog.ParseFormat(format),
		Output:    os.Stdout,
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// Settings is the validated configuration of a process.
type Settings struct {
	Config *config.Config
	Venues []core.Venue
}

// LoadSettings reads the environment and the venue catalog.
func LoadSettings() (Settings, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	venues, err := config.LoadVenues(cfg.VenuesFile)
	if err != nil {
		return Settings{}, err
	}
	return Settings{Config: cfg, Venues: venues}, nil
}

// InitBackend creates the configured data backend.
func InitBackend(ctx context.Context, logger *applog.Logger, s Settings) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(s.Config, s.Venues)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bc.Type, err)
	}
	return result, nil
}

// MustStart logs err and exits. Used by the long-running commands during startup.
func MustStart(logger *applog.Logger, step string, err error) {
	if err == nil {
		return
	}
	logger.Error("Startup failed",
		applog.FieldOperation, applog.OpStartup,
		"step", step,
		applog.FieldError, err.Error())
	os.Exit(1)
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. After the
// signal, cleanup runs with a context bounded by timeout; done closes when it
// returns.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached", applog.FieldOperation, applog.OpShutdown)
			return
		}
		logger.Info("Shutdown complete", applog.FieldOperation, applog.OpShutdown)
	}()

	return ctx, done
}
