package testsupport

import (
	"path/filepath"
	"testing"

	"clipbatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithConcurrency overrides the queue concurrency on the test config.
func WithConcurrency(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.Concurrency = n
	}
}

// WithRetryBaseDelayMS overrides the retry backoff base on the test config.
func WithRetryBaseDelayMS(ms int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.RetryBaseDelayMS = ms
	}
}
