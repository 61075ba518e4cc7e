// Package main provides the HTTP trigger service. A scheduler (cron, Cloud
// Scheduler) POSTs /run to acquire all configured report types, or a single
// type with ?type=.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/report-harvester/internal/api"
	"github.com/report-harvester/internal/bootstrap"
	"github.com/report-harvester/internal/config"
	"github.com/report-harvester/internal/logging"
	"github.com/report-harvester/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	engine, err := bootstrap.BuildEngine(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize acquisition engine")
		os.Exit(1)
	}
	defer engine.Close()

	harvester := service.NewHarvester(engine.Registry, engine.Acquirer, engine.Sink, cfg.Harvest.MaxConcurrency)

	server := api.NewServer(&api.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, harvester)

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		}).Info("Server starting")
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	case <-sigCh:
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Graceful shutdown failed")
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}
