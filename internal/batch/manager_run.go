package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipbatch/internal/logging"
	"clipbatch/internal/processor"
	"clipbatch/internal/queue"
)

// StartProcessing dispatches a batch job's eligible items to the registered
// processor. Eligible items are selected in priority-then-age order and run
// concurrently up to the configured limit. The call returns once every
// dispatched attempt has settled; retries scheduled for the future are not
// awaited. Calling with zero eligible items is a no-op.
func (m *Manager) StartProcessing(ctx context.Context, ownerID string, jobID int64) error {
	job, err := m.store.GetBatchJob(ctx, ownerID, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: batch job %d", queue.ErrNotFound, jobID)
	}

	items, err := m.store.ListEligibleItems(ctx, job.ID)
	if err != nil {
		m.failJob(ctx, job, err)
		return err
	}
	if len(items) == 0 {
		return nil
	}

	if err := m.markJobProcessing(ctx, job); err != nil {
		m.failJob(ctx, job, err)
		return err
	}

	proc, err := m.registry.Lookup(job.JobType)
	if err != nil {
		m.failJob(ctx, job, err)
		return err
	}

	logger := m.logger.With(logging.Int64(logging.FieldJobID, job.ID))
	logger.Info("batch dispatch started",
		logging.String(logging.FieldEventType, "batch_dispatch_start"),
		logging.String(logging.FieldJobType, job.JobType),
		logging.Int("eligible_items", len(items)),
	)

	var (
		wg          sync.WaitGroup
		dispatchErr error
	)
	for _, item := range items {
		if !m.markInflight(item.ID) {
			continue
		}
		if err := m.sem.Acquire(ctx); err != nil {
			m.clearInflight(item.ID)
			dispatchErr = err
			break
		}
		claimed, err := m.store.ClaimItem(ctx, item.ID)
		if err != nil {
			m.sem.Release()
			m.clearInflight(item.ID)
			dispatchErr = err
			break
		}
		if !claimed {
			// Another dispatcher won the item, or it left the eligible
			// states (cancelled) between selection and claim.
			m.sem.Release()
			m.clearInflight(item.ID)
			continue
		}

		wg.Add(1)
		go func(it *queue.Item) {
			defer wg.Done()
			defer m.sem.Release()
			defer m.clearInflight(it.ID)
			m.processItem(ctx, job, proc, it)
		}(item)
	}
	wg.Wait()

	if dispatchErr != nil {
		m.failJob(ctx, job, dispatchErr)
		return dispatchErr
	}

	if err := m.finalizeJob(ctx, ownerID, job.ID); err != nil {
		// Best effort: the same store outage may block the failure write too.
		m.failJob(ctx, job, err)
		return err
	}
	return nil
}

func (m *Manager) markJobProcessing(ctx context.Context, job *queue.BatchJob) error {
	if job.Status == queue.JobProcessing {
		return nil
	}
	job.Status = queue.JobProcessing
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	if err := m.store.UpdateBatchJob(ctx, job); err != nil {
		return fmt.Errorf("mark batch job processing: %w", err)
	}
	return nil
}

// processItem runs one claimed item through the registered processor and
// persists the outcome. Processor failures never escape: they are converted
// into retrying or failed transitions.
func (m *Manager) processItem(ctx context.Context, job *queue.BatchJob, proc processor.Func, item *queue.Item) {
	requestID := uuid.NewString()
	itemCtx := processor.WithJobID(ctx, job.ID)
	itemCtx = processor.WithItemID(itemCtx, item.ID)
	itemCtx = processor.WithJobType(itemCtx, job.JobType)
	itemCtx = processor.WithRequestID(itemCtx, requestID)
	logger := logging.WithContext(itemCtx, m.logger)

	item.Status = queue.ItemProcessing
	item.ProgressPercent = 0
	item.ErrorMessage = ""
	if item.StartedAt == nil {
		now := time.Now().UTC()
		item.StartedAt = &now
	}

	attemptStart := time.Now()
	logger.Info("item dispatched",
		logging.String(logging.FieldEventType, "item_dispatch"),
		logging.Int("retry_count", item.RetryCount),
		logging.String("video_ref", item.VideoRef),
	)

	update := func(cbCtx context.Context, percent float64, stage string) error {
		return m.store.UpdateItemProgress(cbCtx, item.ID, percent, stage)
	}

	execErr := invokeProcessor(itemCtx, proc, item, update)
	if execErr != nil {
		m.handleItemFailure(itemCtx, logger, job, item, execErr)
		return
	}

	item.SetCompleted(time.Now().UTC())
	if err := m.store.UpdateItem(itemCtx, item); err != nil {
		logger.Error("failed to persist item completion", logging.Error(err))
		return
	}
	logger.Info("item completed",
		logging.String(logging.FieldEventType, "item_complete"),
		logging.Duration("attempt_duration", time.Since(attemptStart)),
	)
}

// invokeProcessor isolates processor execution so a panic surfaces as an
// ordinary processing error and cannot leak the caller's permit.
func invokeProcessor(ctx context.Context, proc processor.Func, item *queue.Item, update processor.ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return proc(ctx, item, update)
}

func (m *Manager) handleItemFailure(ctx context.Context, logger *slog.Logger, job *queue.BatchJob, item *queue.Item, execErr error) {
	message := execErr.Error()

	if item.CanRetry() {
		item.SetRetrying(message)
		if err := m.store.UpdateItem(ctx, item); err != nil {
			logger.Error("failed to persist retrying transition", logging.Error(err))
			return
		}
		delay := m.backoff.Delay(item.RetryCount)
		logger.Warn("item failed, retry scheduled",
			logging.String(logging.FieldEventType, "item_retry_scheduled"),
			logging.Error(execErr),
			logging.Int("retry_count", item.RetryCount),
			logging.Int("max_retries", item.MaxRetries),
			logging.Duration("retry_delay", delay),
		)
		m.scheduleRetry(job.OwnerID, job.ID, item.ID, delay)
		return
	}

	item.SetFailed(message, time.Now().UTC())
	if err := m.store.UpdateItem(ctx, item); err != nil {
		logger.Error("failed to persist item failure", logging.Error(err))
		return
	}
	logger.Error("item failed, retries exhausted",
		logging.String(logging.FieldEventType, "item_failure"),
		logging.Error(execErr),
		logging.Int("retry_count", item.RetryCount),
	)
}

// scheduleRetry re-enters a retrying item into dispatch after the backoff
// delay elapses. The closed check and the wait-group Add share the manager
// mutex with Close, so no retry registers once the final Wait has started;
// a retry dropped here stays persisted as retrying and is picked up by the
// next StartProcessing call, the same path that recovers timers lost to a
// process restart.
func (m *Manager) scheduleRetry(ownerID string, jobID, itemID int64, delay time.Duration) {
	m.mu.Lock()
	select {
	case <-m.closed:
		m.mu.Unlock()
		return
	default:
	}
	m.retryWG.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.retryWG.Done()
		select {
		case <-time.After(delay):
		case <-m.closed:
			return
		}
		m.redispatchItem(ownerID, jobID, itemID)
	}()
}

func (m *Manager) redispatchItem(ownerID string, jobID, itemID int64) {
	ctx := context.Background()
	logger := m.logger.With(
		logging.Int64(logging.FieldJobID, jobID),
		logging.Int64(logging.FieldItemID, itemID),
	)

	job, err := m.store.GetBatchJob(ctx, ownerID, jobID)
	if err != nil || job == nil {
		logger.Warn("retry dropped: batch job unavailable", logging.Error(err))
		return
	}
	proc, err := m.registry.Lookup(job.JobType)
	if err != nil {
		logger.Error("retry dropped: processor unavailable", logging.Error(err))
		return
	}

	if !m.markInflight(itemID) {
		return
	}
	defer m.clearInflight(itemID)

	if err := m.sem.Acquire(ctx); err != nil {
		return
	}
	defer m.sem.Release()

	claimed, err := m.store.ClaimItem(ctx, itemID)
	if err != nil {
		logger.Error("retry claim failed", logging.Error(err))
		return
	}
	if !claimed {
		// Cancelled or already handled while the timer was pending.
		return
	}

	item, err := m.store.GetItem(ctx, itemID)
	if err != nil || item == nil {
		logger.Error("retry dropped: item unavailable", logging.Error(err))
		return
	}

	m.processItem(ctx, job, proc, item)

	if err := m.finalizeJob(ctx, ownerID, jobID); err != nil {
		logger.Error("failed to aggregate batch status after retry", logging.Error(err))
	}
}

func (m *Manager) failJob(ctx context.Context, job *queue.BatchJob, cause error) {
	job.Status = queue.JobFailed
	job.ErrorMessage = cause.Error()
	if job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if err := m.store.UpdateBatchJob(ctx, job); err != nil {
		m.logger.Error("failed to persist batch failure",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}
	m.logger.Error("batch dispatch aborted",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldEventType, "batch_dispatch_failure"),
		logging.Error(cause),
	)
}
