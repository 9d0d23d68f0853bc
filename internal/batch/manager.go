package batch

import (
	"log/slog"
	"sync"
	"time"

	"clipbatch/internal/config"
	"clipbatch/internal/logging"
	"clipbatch/internal/processor"
	"clipbatch/internal/queue"
)

// Manager orchestrates batch job processing: item selection, dispatch under
// the concurrency limit, retry scheduling, and status aggregation. The store
// remains the source of truth; the only in-memory state is the semaphore and
// a best-effort in-flight set that short-circuits duplicate dispatch before
// the store-level claim decides authoritatively.
type Manager struct {
	store    *queue.Store
	registry *processor.Registry
	logger   *slog.Logger
	sem      *semaphore
	backoff  BackoffPolicy

	mu       sync.Mutex
	inflight map[int64]struct{}

	retryWG   sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	concurrency int
	backoff     *BackoffPolicy
}

// WithConcurrency overrides the configured processing-slot count.
func WithConcurrency(n int) ManagerOption {
	return func(o *managerOptions) {
		o.concurrency = n
	}
}

// WithBackoff overrides the configured retry backoff policy.
func WithBackoff(policy BackoffPolicy) ManagerOption {
	return func(o *managerOptions) {
		o.backoff = &policy
	}
}

// NewManager constructs a queue manager from application configuration.
func NewManager(cfg *config.Config, store *queue.Store, registry *processor.Registry, logger *slog.Logger, opts ...ManagerOption) *Manager {
	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	concurrency := options.concurrency
	if concurrency <= 0 && cfg != nil {
		concurrency = cfg.Queue.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 3
	}

	backoff := DefaultBackoff
	if options.backoff != nil {
		backoff = *options.backoff
	} else if cfg != nil && cfg.Queue.RetryBaseDelayMS > 0 {
		backoff = BackoffPolicy{Base: time.Duration(cfg.Queue.RetryBaseDelayMS) * time.Millisecond}
	}

	return &Manager{
		store:    store,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "batch-manager"),
		sem:      newSemaphore(concurrency),
		backoff:  backoff,
		inflight: make(map[int64]struct{}),
		closed:   make(chan struct{}),
	}
}

// Close cancels retry timers that have not fired and waits for scheduled
// retries to wind down. In-flight processing attempts are not interrupted.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		close(m.closed)
		m.mu.Unlock()
	})
	m.retryWG.Wait()
}

func (m *Manager) markInflight(itemID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.inflight[itemID]; exists {
		return false
	}
	m.inflight[itemID] = struct{}{}
	return true
}

func (m *Manager) clearInflight(itemID int64) {
	m.mu.Lock()
	delete(m.inflight, itemID)
	m.mu.Unlock()
}
