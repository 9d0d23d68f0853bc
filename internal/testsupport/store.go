package testsupport

import (
	"context"
	"fmt"
	"testing"

	"clipbatch/internal/config"
	"clipbatch/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewBatchJob creates a batch job with the given item specs for tests.
func NewBatchJob(t testing.TB, store *queue.Store, spec queue.NewBatchJobSpec) *queue.BatchJob {
	t.Helper()

	job, err := store.CreateBatchJob(context.Background(), spec)
	if err != nil {
		t.Fatalf("store.CreateBatchJob: %v", err)
	}
	return job
}

// SimpleBatchSpec builds a single-owner batch spec with n identical items.
func SimpleBatchSpec(ownerID, jobType string, n, maxRetries int) queue.NewBatchJobSpec {
	items := make([]queue.NewItemSpec, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, queue.NewItemSpec{
			VideoRef:   fmt.Sprintf("video-%02d", i+1),
			MaxRetries: maxRetries,
		})
	}
	return queue.NewBatchJobSpec{
		OwnerID: ownerID,
		Name:    "test batch",
		JobType: jobType,
		Items:   items,
	}
}
