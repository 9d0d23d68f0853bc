package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"clipbatch/internal/api"
	"clipbatch/internal/logging"
	"clipbatch/internal/queue"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *Server) handleListJobs(c echo.Context) error {
	jobs, err := s.store.ListBatchJobs(c.Request().Context(), ownerFrom(c))
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, api.JobListResponse{Jobs: api.FromBatchJobs(jobs)})
}

func (s *Server) handleJobStats(c echo.Context) error {
	stats, err := s.store.JobStats(c.Request().Context(), ownerFrom(c))
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, api.FromJobStats(stats))
}

func (s *Server) handleGetJob(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}
	ctx := c.Request().Context()

	job, err := s.store.GetBatchJob(ctx, ownerFrom(c), jobID)
	if err != nil {
		return s.internalError(c, err)
	}
	if job == nil {
		return jobNotFound(c, jobID)
	}
	items, err := s.store.ListItems(ctx, job.ID)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, api.JobResponse{Job: api.FromBatchJobWithItems(job, items)})
}

// createJobRequest is the POST /api/jobs payload.
type createJobRequest struct {
	Name    string             `json:"name"`
	JobType string             `json:"jobType"`
	Config  string             `json:"config"`
	Items   []createJobItemReq `json:"items"`
}

type createJobItemReq struct {
	VideoRef   string `json:"videoRef"`
	Priority   *int   `json:"priority"`
	MaxRetries *int   `json:"maxRetries"`
	Metadata   string `json:"metadata"`
}

func (s *Server) handleCreateJob(c echo.Context) error {
	var req createJobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.JobType) == "" {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "jobType is required"})
	}

	spec := queue.NewBatchJobSpec{
		OwnerID:    ownerFrom(c),
		Name:       strings.TrimSpace(req.Name),
		JobType:    strings.TrimSpace(req.JobType),
		ConfigJSON: req.Config,
	}
	for _, item := range req.Items {
		itemSpec := queue.NewItemSpec{
			VideoRef:     item.VideoRef,
			Priority:     s.cfg.Queue.DefaultPriority,
			MaxRetries:   s.cfg.Queue.DefaultMaxRetries,
			MetadataJSON: item.Metadata,
		}
		if item.Priority != nil {
			itemSpec.Priority = *item.Priority
		}
		if item.MaxRetries != nil {
			itemSpec.MaxRetries = *item.MaxRetries
		}
		spec.Items = append(spec.Items, itemSpec)
	}

	job, err := s.store.CreateBatchJob(c.Request().Context(), spec)
	if err != nil {
		return s.internalError(c, err)
	}
	s.logger.Info("batch job created",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, job.JobType),
		logging.Int("items", job.TotalItems),
	)
	return c.JSON(http.StatusCreated, api.JobResponse{Job: api.FromBatchJob(job)})
}

func (s *Server) handleDeleteJob(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}
	deleted, err := s.store.DeleteBatchJob(c.Request().Context(), ownerFrom(c), jobID)
	if err != nil {
		return s.internalError(c, err)
	}
	if !deleted {
		return jobNotFound(c, jobID)
	}
	return c.JSON(http.StatusOK, api.ControlResponse{Status: "deleted"})
}

// handleStartJob validates the job, then hands dispatch to a background
// goroutine: StartProcessing blocks until the batch settles, which is far too
// long for an HTTP response.
func (s *Server) handleStartJob(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}
	owner := ownerFrom(c)

	job, err := s.store.GetBatchJob(c.Request().Context(), owner, jobID)
	if err != nil {
		return s.internalError(c, err)
	}
	if job == nil {
		return jobNotFound(c, jobID)
	}

	go func() {
		if err := s.manager.StartProcessing(context.Background(), owner, jobID); err != nil {
			s.logger.Error("background dispatch failed",
				logging.Int64(logging.FieldJobID, jobID),
				logging.Error(err),
			)
		}
	}()
	return c.JSON(http.StatusAccepted, api.ControlResponse{Status: "processing"})
}

func (s *Server) handlePauseJob(c echo.Context) error {
	return s.controlOp(c, "paused", s.manager.PauseBatchJob)
}

func (s *Server) handleResumeJob(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}
	owner := ownerFrom(c)

	job, err := s.store.GetBatchJob(c.Request().Context(), owner, jobID)
	if err != nil {
		return s.internalError(c, err)
	}
	if job == nil {
		return jobNotFound(c, jobID)
	}

	// Resume re-dispatches, so it runs in the background like start.
	go func() {
		if err := s.manager.ResumeBatchJob(context.Background(), owner, jobID); err != nil {
			s.logger.Error("background resume failed",
				logging.Int64(logging.FieldJobID, jobID),
				logging.Error(err),
			)
		}
	}()
	return c.JSON(http.StatusAccepted, api.ControlResponse{Status: "processing"})
}

func (s *Server) handleCancelJob(c echo.Context) error {
	return s.controlOp(c, "cancelled", s.manager.CancelBatchJob)
}

func (s *Server) handleRetryFailed(c echo.Context) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}
	reset, err := s.manager.RetryFailedItems(c.Request().Context(), ownerFrom(c), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return jobNotFound(c, jobID)
		}
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, api.ControlResponse{Status: "reset", Affected: reset})
}

func (s *Server) controlOp(c echo.Context, status string, op func(context.Context, string, int64) error) error {
	jobID, err := parseJobID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}
	if err := op(c.Request().Context(), ownerFrom(c), jobID); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return jobNotFound(c, jobID)
		}
		return s.internalError(c, err)
	}
	return c.JSON(http.StatusOK, api.ControlResponse{Status: status})
}

func (s *Server) internalError(c echo.Context, err error) error {
	s.logger.Error("request failed",
		logging.String("path", c.Path()),
		logging.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
}

func jobNotFound(c echo.Context, jobID int64) error {
	return c.JSON(http.StatusNotFound, api.ErrorResponse{
		Error: "batch job " + strconv.FormatInt(jobID, 10) + " not found",
	})
}

func parseJobID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid job id")
	}
	return id, nil
}
