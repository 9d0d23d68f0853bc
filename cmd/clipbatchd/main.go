package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"clipbatch/internal/batch"
	"clipbatch/internal/config"
	"clipbatch/internal/daemon"
	"clipbatch/internal/logging"
	"clipbatch/internal/processor"
	"clipbatch/internal/queue"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return
	}

	registry := processor.NewRegistry()
	registerProcessors(registry, logger)

	manager := batch.NewManager(cfg, store, registry, logger)

	d, err := daemon.New(cfg, store, manager, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	if err := d.Wait(ctx); err != nil {
		logger.Error("daemon exited", logging.Error(err))
	}
	logger.Info("clipbatchd shutting down")
}
