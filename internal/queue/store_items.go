package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetItem fetches a queue item by identifier. Returns (nil, nil) when absent.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns every queue item belonging to a batch job in creation order.
func (s *Store) ListItems(ctx context.Context, batchJobID int64) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+itemColumns+` FROM queue_items WHERE batch_job_id = ? ORDER BY created_at, id`,
		batchJobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListEligibleItems returns a batch job's pending and retrying items in
// dispatch order: priority descending, then creation time ascending, then id
// ascending as the final tie-break.
func (s *Store) ListEligibleItems(ctx context.Context, batchJobID int64) ([]*Item, error) {
	args := append([]any{batchJobID}, eligibleStatusArgs()...)
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+itemColumns+` FROM queue_items
         WHERE batch_job_id = ? AND status IN (`+eligiblePlaceholders+`)
         ORDER BY priority DESC, created_at ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// UpdateItem persists changes to an existing queue item.
func (s *Store) UpdateItem(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET video_ref = ?, priority = ?, status = ?, retry_count = ?,
             max_retries = ?, error_message = ?, progress_percent = ?,
             progress_stage = ?, metadata_json = ?, updated_at = ?,
             started_at = ?, completed_at = ?
         WHERE id = ?`,
		nullableString(item.VideoRef),
		item.Priority,
		item.Status,
		item.RetryCount,
		item.MaxRetries,
		nullableString(item.ErrorMessage),
		ClampProgress(item.ProgressPercent),
		nullableString(item.ProgressStage),
		nullableString(item.MetadataJSON),
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.StartedAt),
		nullableTime(item.CompletedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ClaimItem atomically moves an item from an eligible state into processing.
// The conditional update is the duplicate-dispatch guard: it succeeds for
// exactly one caller even when concurrent dispatch loops race on the same
// item, including loops in other processes.
func (s *Store) ClaimItem(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	args := append([]any{ItemProcessing, now, now, id}, eligibleStatusArgs()...)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, progress_percent = 0, error_message = NULL,
             started_at = COALESCE(started_at, ?), updated_at = ?
         WHERE id = ? AND status IN (`+eligiblePlaceholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("claim item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateItemProgress persists the latest progress callback value for an item.
// Stage is preserved when empty.
func (s *Store) UpdateItemProgress(ctx context.Context, id int64, percent float64, stage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var err error
	if stage == "" {
		_, err = s.execWithRetry(
			ctx,
			`UPDATE queue_items SET progress_percent = ?, updated_at = ? WHERE id = ?`,
			ClampProgress(percent), now, id,
		)
	} else {
		_, err = s.execWithRetry(
			ctx,
			`UPDATE queue_items SET progress_percent = ?, progress_stage = ?, updated_at = ? WHERE id = ?`,
			ClampProgress(percent), stage, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update item progress: %w", err)
	}
	return nil
}

// ItemCountsForJob aggregates item states for one batch job.
func (s *Store) ItemCountsForJob(ctx context.Context, batchJobID int64) (ItemCounts, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT status, COUNT(1) FROM queue_items WHERE batch_job_id = ? GROUP BY status`,
		batchJobID,
	)
	if err != nil {
		return ItemCounts{}, fmt.Errorf("item counts: %w", err)
	}
	defer rows.Close()

	var counts ItemCounts
	for rows.Next() {
		var status ItemStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return ItemCounts{}, err
		}
		counts.Total += count
		switch status {
		case ItemPending:
			counts.Pending += count
		case ItemProcessing:
			counts.Processing += count
		case ItemRetrying:
			counts.Retrying += count
		case ItemCompleted:
			counts.Completed += count
		case ItemFailed:
			counts.Failed += count
		case ItemCancelled:
			counts.Cancelled += count
		}
	}
	return counts, rows.Err()
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const itemColumns = "id, batch_job_id, video_ref, priority, status, retry_count, max_retries, error_message, progress_percent, progress_stage, metadata_json, created_at, updated_at, started_at, completed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              int64
		batchJobID      int64
		videoRef        sql.NullString
		priority        int
		statusStr       string
		retryCount      int
		maxRetries      int
		errorMessage    sql.NullString
		progressPercent sql.NullFloat64
		progressStage   sql.NullString
		metadata        sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&batchJobID,
		&videoRef,
		&priority,
		&statusStr,
		&retryCount,
		&maxRetries,
		&errorMessage,
		&progressPercent,
		&progressStage,
		&metadata,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		BatchJobID:      batchJobID,
		VideoRef:        videoRef.String,
		Priority:        priority,
		Status:          ItemStatus(statusStr),
		RetryCount:      retryCount,
		MaxRetries:      maxRetries,
		ErrorMessage:    errorMessage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressStage:   progressStage.String,
		MetadataJSON:    metadata.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			item.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}
