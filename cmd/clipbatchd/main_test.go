package main

import (
	"context"
	"testing"

	"clipbatch/internal/logging"
	"clipbatch/internal/processor"
	"clipbatch/internal/queue"
	"clipbatch/internal/testsupport"
)

func TestRegisterProcessors(t *testing.T) {
	registry := processor.NewRegistry()
	registerProcessors(registry, logging.NewNop())

	fn, err := registry.Lookup("noop")
	if err != nil {
		t.Fatalf("noop processor not registered: %v", err)
	}

	var lastPercent float64
	item := &queue.Item{ID: 1, VideoRef: "clip-a"}
	err = fn(context.Background(), item, func(_ context.Context, percent float64, _ string) error {
		lastPercent = percent
		return nil
	})
	if err != nil {
		t.Fatalf("noop processor failed: %v", err)
	}
	if lastPercent != 100 {
		t.Fatalf("final progress = %v, want 100", lastPercent)
	}
}

func TestNewLoggerUsesConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"

	logger, err := newLogger(cfg)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger")
	}
}
