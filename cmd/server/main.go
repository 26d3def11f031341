package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nicktill/tinynotes/pkg/config"
	"github.com/nicktill/tinynotes/pkg/logging"
	"github.com/nicktill/tinynotes/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tinynotes: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	logger.Info().
		Str("version", server.Version).
		Str("storage", cfg.Backend).
		Str("port", cfg.Port).
		Msg("Starting tinynotes server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize server")
		return err
	}

	return app.Run(ctx)
}
