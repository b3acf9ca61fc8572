package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/Procura/internal/app"
	"github.com/markdave123-py/Procura/internal/config"
	"github.com/markdave123-py/Procura/internal/core/pipeline"
	"github.com/markdave123-py/Procura/internal/logger"
	"github.com/markdave123-py/Procura/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()
	logger.Init(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	shutdownMetrics, err := telemetry.Init(ctx)
	if err != nil {
		log.Fatalf("metrics init failed: %v", err)
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Fatalf("metrics init failed: %v", err)
	}

	application, err := app.NewApp(ctx, cfg, metrics)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer application.Close()

	go application.Server.Start()
	go application.Reaper.Run(ctx)
	application.Converter.StartSweeper(ctx, 10*time.Minute)

	// Poll loop: drain the queue on a fixed interval. A run still in
	// flight just skips the tick.
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := application.Orchestrator.ProcessQueued(ctx)
				if err != nil {
					if !errors.Is(err, pipeline.ErrRunInProgress) {
						logger.Error(ctx, "scheduled run failed", "error", err)
					}
					continue
				}
				if res.Total > 0 {
					logger.Info(ctx, "scheduled run finished",
						"batch_id", res.BatchID,
						"total", res.Total,
						"succeeded", res.Succeeded,
						"failed", res.Failed)
				}
			}
		}
	}()

	logger.Info(ctx, "Procura is running; DB connected and bootstrapped")
	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown error", "error", err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "metrics shutdown error", "error", err)
	}
}
