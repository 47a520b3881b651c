// Package cli provides common CLI initialization utilities and the
// finassist command tree. The initialization helpers are shared by
// cmd/finassist and cmd/finassist-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"finassist/internal/config"
	applog "finassist/internal/log"
	"finassist/internal/storage"
)

// SetupLogger initializes structured logging at level, writing to out.
// Returns the configured logger and sets it as the default logger. An
// unknown level falls back to info.
func SetupLogger(level string, out io.Writer) *applog.Logger {
	lvl, err := applog.ParseLevel(level)
	logger := applog.New(applog.Config{Level: lvl, Output: out, Component: applog.ComponentApp})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", level)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitSQLite initializes a SQLite repository with the given path.
func InitSQLite(logger *applog.Logger, dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		return nil, fmt.Errorf("init sqlite at %s: %w", dbPath, err)
	}
	return repo, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup,
// when set, runs before the context is cancelled. The returned stop func
// releases the signal handler.
func GracefulShutdown(logger *applog.Logger, cleanup func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received",
				applog.FieldOperation, applog.OpShutdown,
				"signal", sig.String())
			if cleanup != nil {
				cleanup()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
