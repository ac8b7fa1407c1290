package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "dispatch",
	Short:   "NSJ Express Dispatch - shipment fulfilment orchestration service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and dispatch server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(ctx)
	}

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("Starting NSJ Express Dispatch",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("carrier", cfg.Carrier),
	)

	if err := app.Server.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
