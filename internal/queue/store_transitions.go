package queue

import (
	"context"
	"fmt"
	"time"
)

// CancelEligibleItems bulk-transitions a batch job's pending and retrying
// items to cancelled. Items already processing are left alone: in-flight work
// is not preemptible, cancellation only marks intent.
func (s *Store) CancelEligibleItems(ctx context.Context, batchJobID int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	args := append([]any{ItemCancelled, now, now, batchJobID}, eligibleStatusArgs()...)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, completed_at = ?, updated_at = ?
         WHERE batch_job_id = ? AND status IN (`+eligiblePlaceholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel eligible items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailedItems moves a batch job's failed items back to pending,
// resetting the retry counter and clearing the recorded error. The next
// dispatch run picks them up; this call does not start processing.
func (s *Store) RetryFailedItems(ctx context.Context, batchJobID int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, retry_count = 0, error_message = NULL,
             progress_percent = 0, progress_stage = 'Retry requested',
             started_at = NULL, completed_at = NULL, updated_at = ?
         WHERE batch_job_id = ? AND status = ?`,
		ItemPending,
		now,
		batchJobID,
		ItemFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return res.RowsAffected()
}
