package batch

import (
	"context"
	"fmt"
	"time"

	"clipbatch/internal/logging"
	"clipbatch/internal/queue"
)

// finalizeJob recomputes a batch job's aggregate status from its items and
// persists it. A cancelled batch keeps its status: late item outcomes are
// still recorded in the counts but never revive the batch.
func (m *Manager) finalizeJob(ctx context.Context, ownerID string, jobID int64) error {
	job, err := m.store.GetBatchJob(ctx, ownerID, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: batch job %d", queue.ErrNotFound, jobID)
	}

	counts, err := m.store.ItemCountsForJob(ctx, job.ID)
	if err != nil {
		return err
	}

	job.CompletedItems = counts.Completed
	job.FailedItems = counts.Failed

	if job.Status != queue.JobCancelled {
		job.Status = aggregateStatus(counts)
		now := time.Now().UTC()
		switch job.Status {
		case queue.JobProcessing:
			if job.StartedAt == nil {
				job.StartedAt = &now
			}
		case queue.JobCompleted, queue.JobFailed:
			if job.CompletedAt == nil {
				job.CompletedAt = &now
			}
		}
	}

	if err := m.store.UpdateBatchJob(ctx, job); err != nil {
		return err
	}

	m.logger.Info("batch status aggregated",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldEventType, "batch_aggregate"),
		logging.String("status", string(job.Status)),
		logging.Int("completed_items", counts.Completed),
		logging.Int("failed_items", counts.Failed),
		logging.Int("total_items", counts.Total),
	)
	return nil
}

// aggregateStatus derives batch status purely from item counts.
func aggregateStatus(counts queue.ItemCounts) queue.JobStatus {
	switch {
	case counts.Settled():
		if counts.Failed == 0 {
			return queue.JobCompleted
		}
		return queue.JobFailed
	case counts.Completed > 0 || counts.Failed > 0:
		return queue.JobProcessing
	default:
		return queue.JobPending
	}
}
