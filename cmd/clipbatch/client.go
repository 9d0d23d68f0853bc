package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clipbatch/internal/api"
	"clipbatch/internal/httpapi"
)

// daemonClient talks to the clipbatchd HTTP API.
type daemonClient struct {
	baseURL string
	owner   string
	token   string
	http    *http.Client
}

func newDaemonClient(baseURL, owner, token string) *daemonClient {
	return &daemonClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		owner:   owner,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *daemonClient) do(ctx context.Context, method, path string, body, into any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(httpapi.HeaderOwnerID, c.owner)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *daemonClient) listJobs(ctx context.Context) ([]api.BatchJob, error) {
	var resp api.JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *daemonClient) getJob(ctx context.Context, id int64) (api.BatchJob, error) {
	var resp api.JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+strconv.FormatInt(id, 10), nil, &resp)
	return resp.Job, err
}

func (c *daemonClient) jobStats(ctx context.Context) (map[string]int, error) {
	var resp api.JobStatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/stats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

type createJobPayload struct {
	Name    string                 `json:"name"`
	JobType string                 `json:"jobType"`
	Config  string                 `json:"config,omitempty"`
	Items   []createJobItemPayload `json:"items"`
}

type createJobItemPayload struct {
	VideoRef   string `json:"videoRef"`
	Priority   *int   `json:"priority,omitempty"`
	MaxRetries *int   `json:"maxRetries,omitempty"`
}

func (c *daemonClient) createJob(ctx context.Context, payload createJobPayload) (api.BatchJob, error) {
	var resp api.JobResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", payload, &resp)
	return resp.Job, err
}

func (c *daemonClient) control(ctx context.Context, id int64, action string) (api.ControlResponse, error) {
	var resp api.ControlResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+strconv.FormatInt(id, 10)+"/"+action, nil, &resp)
	return resp, err
}

func (c *daemonClient) deleteJob(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+strconv.FormatInt(id, 10), nil, nil)
}
