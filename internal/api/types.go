package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// BatchJob describes a batch job in a transport-friendly format.
type BatchJob struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	JobType        string          `json:"jobType"`
	Status         string          `json:"status"`
	TotalItems     int             `json:"totalItems"`
	CompletedItems int             `json:"completedItems"`
	FailedItems    int             `json:"failedItems"`
	Progress       float64         `json:"progressPercent"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
	StartedAt      string          `json:"startedAt,omitempty"`
	CompletedAt    string          `json:"completedAt,omitempty"`
	Items          []QueueItem     `json:"items,omitempty"`
}

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID           int64           `json:"id"`
	BatchJobID   int64           `json:"batchJobId"`
	VideoRef     string          `json:"videoRef"`
	Priority     int             `json:"priority"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retryCount"`
	MaxRetries   int             `json:"maxRetries"`
	Progress     ItemProgress    `json:"progress"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
	StartedAt    string          `json:"startedAt,omitempty"`
	CompletedAt  string          `json:"completedAt,omitempty"`
}

// ItemProgress captures stage progress information for a queue entry.
type ItemProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
}

// JobListResponse wraps a collection of batch jobs for API responses.
type JobListResponse struct {
	Jobs []BatchJob `json:"jobs"`
}

// JobResponse wraps a single batch job.
type JobResponse struct {
	Job BatchJob `json:"job"`
}

// JobStatsResponse provides a normalized per-status job count payload.
type JobStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// ControlResponse reports the outcome of a control operation.
type ControlResponse struct {
	Status   string `json:"status"`
	Affected int64  `json:"affected,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse carries a machine-readable error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
