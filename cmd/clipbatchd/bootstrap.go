package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"clipbatch/internal/config"
	"clipbatch/internal/logging"
	"clipbatch/internal/processor"
	"clipbatch/internal/queue"
)

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "clipbatchd.log"),
		},
	})
}

// registerProcessors binds the processors this deployment supports. Real
// workloads (transcription, metadata generation) live in external services
// that register here; the built-in noop processor stays available for
// smoke-testing queue behavior end to end.
func registerProcessors(registry *processor.Registry, logger *slog.Logger) {
	procLogger := logging.NewComponentLogger(logger, "processor")

	if err := registry.Register("noop", func(ctx context.Context, item *queue.Item, update processor.ProgressFunc) error {
		if err := update(ctx, 50, "Validating"); err != nil {
			return err
		}
		procLogger.Info("noop processor ran",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("video_ref", item.VideoRef),
		)
		return update(ctx, 100, "Done")
	}); err != nil {
		procLogger.Warn("register noop processor", logging.Error(err))
	}
}
