package http

import (
	"time"

	"webmonitor/internal/model"
)

// ErrorResponse is the envelope every failed handler returns.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

func errResp(code, msg string) ErrorResponse {
	return ErrorResponse{Success: false, Code: code, Error: msg}
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	SiteID       string     `json:"siteID"`
	Type         string     `json:"type"`
	Priority     int        `json:"priority,omitempty"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
}

// CreateJobResponse is the body of a successful POST /jobs.
type CreateJobResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobID"`
	Status  string `json:"status"`
}

// JobItem is one job as rendered to API callers.
type JobItem struct {
	ID           string     `json:"id"`
	SiteID       string     `json:"siteId"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	Progress     int        `json:"progress"`
	RetryCount   int        `json:"retryCount"`
	MaxRetries   int        `json:"maxRetries"`
	CreatedAt    time.Time  `json:"createdAt"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func jobItemFromModel(j model.Job) JobItem {
	return JobItem{
		ID:           j.ID.String(),
		SiteID:       j.SiteID.String(),
		Type:         string(j.Type),
		Status:       string(j.Status),
		Priority:     j.Priority,
		Progress:     j.Progress,
		RetryCount:   j.RetryCount,
		MaxRetries:   j.MaxRetries,
		CreatedAt:    j.CreatedAt,
		ScheduledFor: j.ScheduledFor,
		CompletedAt:  j.CompletedAt,
		Error:        j.Error,
	}
}

// ListJobsResponse is the body of a successful GET /jobs.
type ListJobsResponse struct {
	Success bool      `json:"success"`
	Jobs    []JobItem `json:"jobs"`
}

// JobStatsResponse is the body of GET /jobs/stats.
type JobStatsResponse struct {
	Success bool `json:"success"`
	Queued  int  `json:"queued"`
	Running int  `json:"running"`
	Failed  int  `json:"failed"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
