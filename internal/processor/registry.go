package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"clipbatch/internal/queue"
)

// ErrNotRegistered indicates a batch job references a job type with no processor.
var ErrNotRegistered = errors.New("no processor registered")

// ProgressFunc reports item progress back to the queue manager. Percent is
// clamped to [0,100] before persisting; stage is an optional display label.
type ProgressFunc func(ctx context.Context, percent float64, stage string) error

// Func performs the work for one queue item. Implementations should call
// update zero or more times and honor ctx cancellation for long-running work.
type Func func(ctx context.Context, item *queue.Item, update ProgressFunc) error

// Registry maps job-type strings to processor functions. It is safe for
// concurrent use and is injected into the queue manager so tests can use
// isolated registries instead of process-global state.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds fn to jobType. Exactly one processor may exist per job type;
// registering a duplicate or an empty binding is an error.
func (r *Registry) Register(jobType string, fn Func) error {
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return errors.New("job type must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("processor for %q must not be nil", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[jobType]; exists {
		return fmt.Errorf("processor for %q already registered", jobType)
	}
	r.funcs[jobType] = fn
	return nil
}

// Lookup returns the processor for jobType or ErrNotRegistered.
func (r *Registry) Lookup(jobType string) (Func, error) {
	r.mu.RLock()
	fn, ok := r.funcs[strings.TrimSpace(jobType)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for job type %q", ErrNotRegistered, jobType)
	}
	return fn, nil
}

// Types returns the sorted list of registered job types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.funcs))
	for jobType := range r.funcs {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}
