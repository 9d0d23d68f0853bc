package queue

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a batch job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// ItemStatus represents the lifecycle of a queue item.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemRetrying   ItemStatus = "retrying"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemCancelled  ItemStatus = "cancelled"
)

var allJobStatuses = []JobStatus{
	JobPending,
	JobProcessing,
	JobPaused,
	JobCompleted,
	JobFailed,
	JobCancelled,
}

var allItemStatuses = []ItemStatus{
	ItemPending,
	ItemProcessing,
	ItemRetrying,
	ItemCompleted,
	ItemFailed,
	ItemCancelled,
}

// EligibleStatuses are the item states a dispatch run may pick up.
var EligibleStatuses = []ItemStatus{ItemPending, ItemRetrying}

var itemStatusSet = func() map[ItemStatus]struct{} {
	set := make(map[ItemStatus]struct{}, len(allItemStatuses))
	for _, status := range allItemStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var jobStatusSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(allJobStatuses))
	for _, status := range allJobStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllJobStatuses returns the ordered list of known batch job statuses.
func AllJobStatuses() []JobStatus {
	cp := make([]JobStatus, len(allJobStatuses))
	copy(cp, allJobStatuses)
	return cp
}

// AllItemStatuses returns the ordered list of known queue item statuses.
func AllItemStatuses() []ItemStatus {
	cp := make([]ItemStatus, len(allItemStatuses))
	copy(cp, allItemStatuses)
	return cp
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := jobStatusSet[normalized]
	return normalized, ok
}

// ParseItemStatus converts a string into a known ItemStatus.
func ParseItemStatus(value string) (ItemStatus, bool) {
	normalized := ItemStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := itemStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether an item status permits no further transitions
// short of an explicit user-initiated retry.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case ItemCompleted, ItemFailed, ItemCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a batch job status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// BatchJob is a named collection of queue items tracked as one unit.
// Ownership is the authorization boundary: every job-level store operation
// is scoped to the owning user.
type BatchJob struct {
	ID             int64
	OwnerID        string
	Name           string
	JobType        string
	ConfigJSON     string
	Status         JobStatus
	TotalItems     int
	CompletedItems int
	FailedItems    int
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// ProgressPercent derives batch progress from completed items.
// Returns 0 when the job has no items.
func (j *BatchJob) ProgressPercent() float64 {
	if j == nil || j.TotalItems == 0 {
		return 0
	}
	return float64(j.CompletedItems) / float64(j.TotalItems) * 100
}

// Item is one unit of work within a batch job.
type Item struct {
	ID              int64
	BatchJobID      int64
	VideoRef        string
	Priority        int
	Status          ItemStatus
	RetryCount      int
	MaxRetries      int
	ErrorMessage    string
	ProgressPercent float64
	ProgressStage   string
	MetadataJSON    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// ClampProgress forces a percent value into [0,100].
func ClampProgress(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// SetProgress updates the progress fields, clamping percent.
func (i *Item) SetProgress(percent float64, stage string) {
	i.ProgressPercent = ClampProgress(percent)
	if stage != "" {
		i.ProgressStage = stage
	}
}

// SetCompleted marks the item complete: progress forced to 100, completion
// timestamp recorded.
func (i *Item) SetCompleted(now time.Time) {
	i.Status = ItemCompleted
	i.ProgressPercent = 100
	i.ErrorMessage = ""
	i.CompletedAt = &now
}

// SetFailed marks the item failed with the given error message.
func (i *Item) SetFailed(message string, now time.Time) {
	i.Status = ItemFailed
	i.ErrorMessage = message
	i.CompletedAt = &now
}

// SetRetrying records a recoverable failure: the retry counter advances and
// the error is kept for inspection while the item awaits its next attempt.
func (i *Item) SetRetrying(message string) {
	i.Status = ItemRetrying
	i.RetryCount++
	i.ErrorMessage = message
}

// CanRetry reports whether another attempt is permitted after a failure.
func (i *Item) CanRetry() bool {
	return i.RetryCount+1 <= i.MaxRetries
}

// ItemCounts aggregates item states for one batch job.
type ItemCounts struct {
	Total      int
	Pending    int
	Processing int
	Retrying   int
	Completed  int
	Failed     int
	Cancelled  int
}

// Settled reports whether every item reached completed or failed.
func (c ItemCounts) Settled() bool {
	return c.Total > 0 && c.Completed+c.Failed == c.Total
}
