package batch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipbatch/internal/batch"
	"clipbatch/internal/config"
	"clipbatch/internal/logging"
	"clipbatch/internal/processor"
	"clipbatch/internal/queue"
	"clipbatch/internal/testsupport"
)

const testOwner = "owner-1"

func newManager(t *testing.T, cfg *config.Config, store *queue.Store, registry *processor.Registry, opts ...batch.ManagerOption) *batch.Manager {
	t.Helper()
	manager := batch.NewManager(cfg, store, registry, logging.NewNop(), opts...)
	t.Cleanup(manager.Close)
	return manager
}

func mustRegister(t *testing.T, registry *processor.Registry, jobType string, fn processor.Func) {
	t.Helper()
	if err := registry.Register(jobType, fn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartProcessingCompletesBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var processed atomic.Int32
	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(ctx context.Context, item *queue.Item, update processor.ProgressFunc) error {
		if err := update(ctx, 50, "Encoding"); err != nil {
			return err
		}
		processed.Add(1)
		return nil
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 3, 2))
	manager := newManager(t, cfg, store, registry)

	if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if got := processed.Load(); got != 3 {
		t.Fatalf("expected 3 processed items, got %d", got)
	}

	updated, err := store.GetBatchJob(ctx, testOwner, job.ID)
	if err != nil {
		t.Fatalf("GetBatchJob failed: %v", err)
	}
	if updated.Status != queue.JobCompleted {
		t.Fatalf("expected job completed, got %s", updated.Status)
	}
	if updated.CompletedItems != 3 || updated.FailedItems != 0 {
		t.Fatalf("unexpected counts: %d completed, %d failed", updated.CompletedItems, updated.FailedItems)
	}
	if updated.StartedAt == nil || updated.CompletedAt == nil {
		t.Fatal("expected started and completed timestamps to be set")
	}
	if got := updated.ProgressPercent(); got != 100 {
		t.Fatalf("expected 100%% progress, got %v", got)
	}

	items, err := store.ListItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	for _, item := range items {
		if item.Status != queue.ItemCompleted {
			t.Fatalf("item %d status = %s, want completed", item.ID, item.Status)
		}
		if item.ProgressPercent != 100 {
			t.Fatalf("item %d progress = %v, want 100", item.ID, item.ProgressPercent)
		}
		if item.ProgressStage != "Encoding" {
			t.Fatalf("item %d stage = %q, want Encoding", item.ID, item.ProgressStage)
		}
		if item.StartedAt == nil || item.CompletedAt == nil {
			t.Fatalf("item %d missing timestamps", item.ID)
		}
	}
}

func TestStartProcessingUnknownJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, cfg, store, processor.NewRegistry())

	err := manager.StartProcessing(context.Background(), testOwner, 42)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStartProcessingOtherOwnersJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(context.Context, *queue.Item, processor.ProgressFunc) error {
		return nil
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 1, 0))
	manager := newManager(t, cfg, store, registry)

	err := manager.StartProcessing(context.Background(), "intruder", job.ID)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestStartProcessingWithoutEligibleItemsIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewBatchJob(t, store, queue.NewBatchJobSpec{
		OwnerID: testOwner,
		Name:    "empty batch",
		JobType: "encode",
	})
	manager := newManager(t, cfg, store, processor.NewRegistry())

	if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	updated, err := store.GetBatchJob(ctx, testOwner, job.ID)
	if err != nil {
		t.Fatalf("GetBatchJob failed: %v", err)
	}
	if updated.Status != queue.JobPending {
		t.Fatalf("expected pending job after no-op dispatch, got %s", updated.Status)
	}
	if updated.StartedAt != nil {
		t.Fatal("expected no started timestamp after no-op dispatch")
	}
}

func TestStartProcessingUnregisteredTypeFailsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "transcribe", 1, 0))
	manager := newManager(t, cfg, store, processor.NewRegistry())

	err := manager.StartProcessing(ctx, testOwner, job.ID)
	if !errors.Is(err, processor.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}

	updated, err := store.GetBatchJob(ctx, testOwner, job.ID)
	if err != nil {
		t.Fatalf("GetBatchJob failed: %v", err)
	}
	if updated.Status != queue.JobFailed {
		t.Fatalf("expected failed job, got %s", updated.Status)
	}
	if updated.ErrorMessage == "" {
		t.Fatal("expected error message on failed job")
	}
}

func TestItemWithoutRetriesFailsDirectly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(context.Context, *queue.Item, processor.ProgressFunc) error {
		return errors.New("source unreadable")
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 1, 0))
	manager := newManager(t, cfg, store, registry)

	if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	items, err := store.ListItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if items[0].Status != queue.ItemFailed {
		t.Fatalf("expected failed item, got %s", items[0].Status)
	}
	if items[0].RetryCount != 0 {
		t.Fatalf("expected zero retries, got %d", items[0].RetryCount)
	}
	if items[0].ErrorMessage != "source unreadable" {
		t.Fatalf("unexpected error message %q", items[0].ErrorMessage)
	}

	updated, err := store.GetBatchJob(ctx, testOwner, job.ID)
	if err != nil {
		t.Fatalf("GetBatchJob failed: %v", err)
	}
	if updated.Status != queue.JobFailed {
		t.Fatalf("expected failed job, got %s", updated.Status)
	}
	if updated.FailedItems != 1 {
		t.Fatalf("expected 1 failed item, got %d", updated.FailedItems)
	}
}

func TestItemRetriesThenSucceeds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var attempts atomic.Int32
	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(context.Context, *queue.Item, processor.ProgressFunc) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient stall")
		}
		return nil
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 1, 2))
	manager := newManager(t, cfg, store, registry, batch.WithBackoff(batch.BackoffPolicy{Base: time.Millisecond}))

	if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	waitFor(t, "batch completion after retry", func() bool {
		updated, err := store.GetBatchJob(ctx, testOwner, job.ID)
		return err == nil && updated.Status == queue.JobCompleted
	})

	items, err := store.ListItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if items[0].Status != queue.ItemCompleted {
		t.Fatalf("expected completed item, got %s", items[0].Status)
	}
	if items[0].RetryCount != 1 {
		t.Fatalf("expected one recorded retry, got %d", items[0].RetryCount)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestItemRetriesUntilExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var attempts atomic.Int32
	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(context.Context, *queue.Item, processor.ProgressFunc) error {
		attempts.Add(1)
		return errors.New("persistent failure")
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 1, 2))
	manager := newManager(t, cfg, store, registry, batch.WithBackoff(batch.BackoffPolicy{Base: time.Millisecond}))

	if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	waitFor(t, "batch failure after exhausted retries", func() bool {
		updated, err := store.GetBatchJob(ctx, testOwner, job.ID)
		return err == nil && updated.Status == queue.JobFailed
	})

	items, err := store.ListItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if items[0].Status != queue.ItemFailed {
		t.Fatalf("expected failed item, got %s", items[0].Status)
	}
	if items[0].RetryCount != 2 {
		t.Fatalf("expected retry count 2, got %d", items[0].RetryCount)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts (initial + 2 retries), got %d", got)
	}
}

func TestDispatchFollowsPriorityThenAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(_ context.Context, item *queue.Item, _ processor.ProgressFunc) error {
		mu.Lock()
		order = append(order, item.VideoRef)
		mu.Unlock()
		return nil
	})

	job := testsupport.NewBatchJob(t, store, queue.NewBatchJobSpec{
		OwnerID: testOwner,
		Name:    "priority batch",
		JobType: "encode",
		Items: []queue.NewItemSpec{
			{VideoRef: "clip-a", Priority: 5},
			{VideoRef: "clip-b", Priority: 1},
			{VideoRef: "clip-c", Priority: 5},
		},
	})
	manager := newManager(t, cfg, store, registry, batch.WithConcurrency(1))

	if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	want := []string{"clip-a", "clip-c", "clip-b"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("processed %d items, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
}

func TestDispatchHonorsConcurrencyLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConcurrency(2))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var current, peak atomic.Int32
	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(context.Context, *queue.Item, processor.ProgressFunc) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return nil
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 5, 0))
	manager := newManager(t, cfg, store, registry)

	if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("observed %d concurrent processors, limit is 2", got)
	}

	updated, err := store.GetBatchJob(ctx, testOwner, job.ID)
	if err != nil {
		t.Fatalf("GetBatchJob failed: %v", err)
	}
	if updated.CompletedItems != 5 {
		t.Fatalf("expected all 5 items completed, got %d", updated.CompletedItems)
	}
}

func TestProcessorPanicBecomesItemFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(context.Context, *queue.Item, processor.ProgressFunc) error {
		panic("codec blew up")
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 1, 0))
	manager := newManager(t, cfg, store, registry)

	if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	items, err := store.ListItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if items[0].Status != queue.ItemFailed {
		t.Fatalf("expected failed item after panic, got %s", items[0].Status)
	}
	if !strings.Contains(items[0].ErrorMessage, "codec blew up") {
		t.Fatalf("expected panic message in item error, got %q", items[0].ErrorMessage)
	}
}

func TestConcurrentStartProcessingDispatchesOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var attempts atomic.Int32
	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(context.Context, *queue.Item, processor.ProgressFunc) error {
		attempts.Add(1)
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 4, 0))
	manager := newManager(t, cfg, store, registry)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := manager.StartProcessing(ctx, testOwner, job.ID); err != nil {
				t.Errorf("StartProcessing failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := attempts.Load(); got != 4 {
		t.Fatalf("expected each item processed exactly once (4 total), got %d", got)
	}

	updated, err := store.GetBatchJob(ctx, testOwner, job.ID)
	if err != nil {
		t.Fatalf("GetBatchJob failed: %v", err)
	}
	if updated.Status != queue.JobCompleted {
		t.Fatalf("expected completed job, got %s", updated.Status)
	}
}

func TestStartProcessingSurfacesAggregationFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(ctx context.Context, item *queue.Item, _ processor.ProgressFunc) error {
		// Pull the job out from under the dispatch loop so the final
		// aggregation pass hits a store-level failure.
		if _, err := store.DeleteBatchJob(ctx, testOwner, item.BatchJobID); err != nil {
			return err
		}
		return nil
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 1, 0))
	manager := newManager(t, cfg, store, registry)

	err := manager.StartProcessing(ctx, testOwner, job.ID)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected aggregation failure to surface, got %v", err)
	}
}

func TestCloseDuringDispatchDropsPendingRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := make(chan struct{})
	var once sync.Once
	registry := processor.NewRegistry()
	mustRegister(t, registry, "encode", func(context.Context, *queue.Item, processor.ProgressFunc) error {
		once.Do(func() { close(started) })
		return errors.New("transient failure")
	})

	job := testsupport.NewBatchJob(t, store, testsupport.SimpleBatchSpec(testOwner, "encode", 3, 3))
	manager := newManager(t, cfg, store, registry,
		batch.WithConcurrency(1),
		batch.WithBackoff(batch.BackoffPolicy{Base: time.Hour}),
	)

	done := make(chan error, 1)
	go func() {
		done <- manager.StartProcessing(ctx, testOwner, job.ID)
	}()
	<-started
	manager.Close()

	if err := <-done; err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}

	items, err := store.ListItems(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	for _, item := range items {
		if item.Status != queue.ItemRetrying {
			t.Fatalf("item %d status = %s, want retrying", item.ID, item.Status)
		}
		if item.RetryCount != 1 {
			t.Fatalf("item %d retry count = %d, want 1", item.ID, item.RetryCount)
		}
	}
}
