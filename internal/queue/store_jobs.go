package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewItemSpec describes one queue item at batch creation time.
type NewItemSpec struct {
	VideoRef     string
	Priority     int
	MaxRetries   int
	MetadataJSON string
}

// NewBatchJobSpec describes a batch job at creation time. TotalItems is fixed
// to len(Items) when the job is created.
type NewBatchJobSpec struct {
	OwnerID    string
	Name       string
	JobType    string
	ConfigJSON string
	Items      []NewItemSpec
}

// CreateBatchJob inserts a batch job together with its queue items in one
// transaction. Every item starts pending.
func (s *Store) CreateBatchJob(ctx context.Context, spec NewBatchJobSpec) (*BatchJob, error) {
	if spec.OwnerID == "" {
		return nil, errors.New("owner id is required")
	}
	if spec.JobType == "" {
		return nil, errors.New("job type is required")
	}
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO batch_jobs (
            owner_id, name, job_type, config_json, status, total_items,
            completed_items, failed_items, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		spec.OwnerID,
		spec.Name,
		spec.JobType,
		nullableString(spec.ConfigJSON),
		JobPending,
		len(spec.Items),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert batch job: %w", err)
	}
	jobID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, item := range spec.Items {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO queue_items (
                batch_job_id, video_ref, priority, status, retry_count,
                max_retries, progress_percent, metadata_json, created_at, updated_at
            ) VALUES (?, ?, ?, ?, 0, ?, 0, ?, ?, ?)`,
			jobID,
			nullableString(item.VideoRef),
			item.Priority,
			ItemPending,
			item.MaxRetries,
			nullableString(item.MetadataJSON),
			timestamp,
			timestamp,
		); err != nil {
			return nil, fmt.Errorf("insert queue item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}

	return s.GetBatchJob(ctx, spec.OwnerID, jobID)
}

// GetBatchJob fetches a batch job by identifier, scoped to its owner.
// Returns (nil, nil) when no such job exists for the owner.
func (s *Store) GetBatchJob(ctx context.Context, ownerID string, id int64) (*BatchJob, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM batch_jobs WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch job: %w", err)
	}
	return job, nil
}

// ListBatchJobs returns all batch jobs for an owner, newest first.
func (s *Store) ListBatchJobs(ctx context.Context, ownerID string) ([]*BatchJob, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM batch_jobs WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*BatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateBatchJob persists changes to an existing batch job.
func (s *Store) UpdateBatchJob(ctx context.Context, job *BatchJob) error {
	if job == nil {
		return errors.New("batch job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE batch_jobs
         SET name = ?, job_type = ?, config_json = ?, status = ?,
             total_items = ?, completed_items = ?, failed_items = ?,
             error_message = ?, updated_at = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		job.Name,
		job.JobType,
		nullableString(job.ConfigJSON),
		job.Status,
		job.TotalItems,
		job.CompletedItems,
		job.FailedItems,
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update batch job: %w", err)
	}
	return nil
}

// DeleteBatchJob removes a batch job and, via cascade, its queue items.
func (s *Store) DeleteBatchJob(ctx context.Context, ownerID string, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM batch_jobs WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete batch job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// JobStats returns a count of an owner's batch jobs grouped by status.
func (s *Store) JobStats(ctx context.Context, ownerID string) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT status, COUNT(1) FROM batch_jobs WHERE owner_id = ? GROUP BY status`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const jobColumns = "id, owner_id, name, job_type, config_json, status, total_items, completed_items, failed_items, error_message, created_at, updated_at, started_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*BatchJob, error) {
	var (
		id             int64
		ownerID        string
		name           string
		jobType        string
		configJSON     sql.NullString
		statusStr      string
		totalItems     int
		completedItems int
		failedItems    int
		errorMessage   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		startedRaw     sql.NullString
		completedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&name,
		&jobType,
		&configJSON,
		&statusStr,
		&totalItems,
		&completedItems,
		&failedItems,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &BatchJob{
		ID:             id,
		OwnerID:        ownerID,
		Name:           name,
		JobType:        jobType,
		ConfigJSON:     configJSON.String,
		Status:         JobStatus(statusStr),
		TotalItems:     totalItems,
		CompletedItems: completedItems,
		FailedItems:    failedItems,
		ErrorMessage:   errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}
