package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"finassist/internal/cli"
	applog "finassist/internal/log"
	"finassist/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger("info", os.Stdout).Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, os.Stdout).WithComponent(applog.ComponentWorker)
	logger.Info("Starting finassist-worker", applog.FieldOperation, applog.OpStartup)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx, stop := cli.GracefulShutdown(logger, nil)
	defer stop()

	app, err := cli.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		logger.Error("AMQP broker unreachable", "url", cfg.AMQPURL)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	consumers := 0
	if cfg.AIEnabled() {
		ingest := worker.NewIngestWorker(app.Expenses)
		g.Go(func() error {
			return app.Queue.ConsumeIngestRequests(gctx, ingest.HandleIngestRequest)
		})
		consumers++
	} else {
		logger.Warn("GOOGLE_CLOUD_PROJECT not set, ingest requests stay queued until AI is configured",
			"queue", cfg.AMQPQueue)
	}

	if cfg.SheetsEnabled() {
		mirror, err := cli.NewSheetsMirror(ctx, cfg)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		logger.Info("Google Sheets mirror enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"queue", cfg.AMQPMirrorQueue)

		mirrorWorker := worker.NewMirrorWorker(app.Repo, mirror)
		g.Go(func() error {
			return app.Queue.ConsumeExpenseRecorded(gctx, cfg.AMQPMirrorQueue, mirrorWorker.HandleExpenseRecorded)
		})
		consumers++
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	if consumers == 0 {
		logger.Error("Nothing to consume: configure GOOGLE_CLOUD_PROJECT or GOOGLE_SPREADSHEET_ID")
		app.Close()
		os.Exit(1)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		app.Close()
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", applog.FieldOperation, applog.OpShutdown)
}
