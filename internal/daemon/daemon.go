package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"clipbatch/internal/batch"
	"clipbatch/internal/config"
	"clipbatch/internal/httpapi"
	"clipbatch/internal/logging"
	"clipbatch/internal/queue"
)

const shutdownGrace = 10 * time.Second

// Daemon coordinates the background services and enforces single-instance
// execution via a file lock in the data directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	manager *batch.Manager
	api     *httpapi.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	apiErr  chan error
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, manager *batch.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, manager, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "clipbatchd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		manager:  manager,
		api:      httpapi.NewServer(cfg, store, manager, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and brings up the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipbatch daemon instance is already running")
	}

	d.apiErr = make(chan error, 1)
	go func() {
		d.apiErr <- d.api.Start()
	}()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()),
		logging.String("bind", d.cfg.Paths.APIBind),
	)
	return nil
}

// Wait blocks until ctx is cancelled or the HTTP API fails.
func (d *Daemon) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-d.apiErr:
		if err != nil {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	}
}

// Stop shuts down the HTTP API, drains the batch manager, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := d.api.Shutdown(ctx); err != nil {
		d.logger.Warn("http api shutdown", logging.Error(err))
	}
	d.manager.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the queue store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether the daemon has been started and not yet stopped.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockPath returns the single-instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
