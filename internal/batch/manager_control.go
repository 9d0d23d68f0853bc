package batch

import (
	"context"
	"fmt"
	"time"

	"clipbatch/internal/logging"
	"clipbatch/internal/queue"
)

// PauseBatchJob marks a batch job paused. Queue items are untouched and
// in-flight attempts run to completion; pausing only documents the intent to
// halt future dispatch, since in-flight work is not preemptible.
func (m *Manager) PauseBatchJob(ctx context.Context, ownerID string, jobID int64) error {
	job, err := m.requireJob(ctx, ownerID, jobID)
	if err != nil {
		return err
	}
	job.Status = queue.JobPaused
	if err := m.store.UpdateBatchJob(ctx, job); err != nil {
		return err
	}
	m.logger.Info("batch paused",
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "batch_paused"),
	)
	return nil
}

// ResumeBatchJob returns a paused batch job to processing and re-invokes
// dispatch for its remaining eligible items.
func (m *Manager) ResumeBatchJob(ctx context.Context, ownerID string, jobID int64) error {
	job, err := m.requireJob(ctx, ownerID, jobID)
	if err != nil {
		return err
	}
	job.Status = queue.JobProcessing
	if err := m.store.UpdateBatchJob(ctx, job); err != nil {
		return err
	}
	m.logger.Info("batch resumed",
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "batch_resumed"),
	)
	return m.StartProcessing(ctx, ownerID, jobID)
}

// CancelBatchJob cancels a batch job and bulk-cancels its pending and
// retrying items. Items already processing finish naturally; their outcome
// is recorded but the batch stays cancelled.
func (m *Manager) CancelBatchJob(ctx context.Context, ownerID string, jobID int64) error {
	job, err := m.requireJob(ctx, ownerID, jobID)
	if err != nil {
		return err
	}

	job.Status = queue.JobCancelled
	if job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if err := m.store.UpdateBatchJob(ctx, job); err != nil {
		return err
	}

	cancelled, err := m.store.CancelEligibleItems(ctx, jobID)
	if err != nil {
		return err
	}
	m.logger.Info("batch cancelled",
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "batch_cancelled"),
		logging.Int64("cancelled_items", cancelled),
	)
	return nil
}

// RetryFailedItems resets a batch job's failed items to pending with a fresh
// retry budget. It does not start processing; callers follow up with
// StartProcessing when ready.
func (m *Manager) RetryFailedItems(ctx context.Context, ownerID string, jobID int64) (int64, error) {
	if _, err := m.requireJob(ctx, ownerID, jobID); err != nil {
		return 0, err
	}

	reset, err := m.store.RetryFailedItems(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		if err := m.finalizeJob(ctx, ownerID, jobID); err != nil {
			return reset, err
		}
	}
	m.logger.Info("failed items reset",
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "batch_retry_failed"),
		logging.Int64("reset_items", reset),
	)
	return reset, nil
}

func (m *Manager) requireJob(ctx context.Context, ownerID string, jobID int64) (*queue.BatchJob, error) {
	job, err := m.store.GetBatchJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: batch job %d", queue.ErrNotFound, jobID)
	}
	return job, nil
}
