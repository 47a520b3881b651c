package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"finassist/internal/cli"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand(cli.OpenFromEnv).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
