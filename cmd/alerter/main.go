// filename: cmd/alerter/main.go
// MyHouse Alerter Service - Entry Point

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/myhouse/alerter/internal/alerter/service"
	"github.com/myhouse/alerter/internal/common/config"
	"github.com/myhouse/alerter/internal/common/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		panic(err)
	}

	logger.WithField("module", cfg.Alerter.Module).Info("Starting MyHouse Alerter Service")

	alerterService, err := service.NewService(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize alerter service")
	}

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := alerterService.Start(ctx); err != nil {
		logger.WithError(err).Error("Alerter service error")
		stop()
		os.Exit(1)
	}

	logger.Info("Alerter service exited")
}
