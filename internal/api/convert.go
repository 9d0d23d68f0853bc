package api

import (
	"encoding/json"
	"time"

	"clipbatch/internal/queue"
)

// FromBatchJob converts a batch job record to its API representation.
func FromBatchJob(job *queue.BatchJob) BatchJob {
	if job == nil {
		return BatchJob{}
	}

	dto := BatchJob{
		ID:             job.ID,
		Name:           job.Name,
		JobType:        job.JobType,
		Status:         string(job.Status),
		TotalItems:     job.TotalItems,
		CompletedItems: job.CompletedItems,
		FailedItems:    job.FailedItems,
		Progress:       job.ProgressPercent(),
		ErrorMessage:   job.ErrorMessage,
	}
	if raw := job.ConfigJSON; raw != "" {
		dto.Config = json.RawMessage(raw)
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	dto.StartedAt = formatOptional(job.StartedAt)
	dto.CompletedAt = formatOptional(job.CompletedAt)
	return dto
}

// FromBatchJobWithItems converts a job together with its item records.
func FromBatchJobWithItems(job *queue.BatchJob, items []*queue.Item) BatchJob {
	dto := FromBatchJob(job)
	dto.Items = FromQueueItems(items)
	return dto
}

// FromBatchJobs converts a slice of job records into API DTOs.
func FromBatchJobs(jobs []*queue.BatchJob) []BatchJob {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]BatchJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromBatchJob(job))
	}
	return out
}

// FromQueueItem converts a queue item record to its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}

	dto := QueueItem{
		ID:         item.ID,
		BatchJobID: item.BatchJobID,
		VideoRef:   item.VideoRef,
		Priority:   item.Priority,
		Status:     string(item.Status),
		RetryCount: item.RetryCount,
		MaxRetries: item.MaxRetries,
		Progress: ItemProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
		},
		ErrorMessage: item.ErrorMessage,
	}
	if raw := item.MetadataJSON; raw != "" {
		dto.Metadata = json.RawMessage(raw)
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	dto.StartedAt = formatOptional(item.StartedAt)
	dto.CompletedAt = formatOptional(item.CompletedAt)
	return dto
}

// FromQueueItems converts a slice of item records into API DTOs.
func FromQueueItems(items []*queue.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromJobStats converts a status-count map into a stats payload.
func FromJobStats(stats map[queue.JobStatus]int) JobStatsResponse {
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	return JobStatsResponse{Counts: counts}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
