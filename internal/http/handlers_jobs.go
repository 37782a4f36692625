package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"webmonitor/internal/model"
)

// createJobHandler implements POST /jobs.
func createJobHandler(c *fiber.Ctx) error {
	st := storeFromCtx(c)

	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp("BAD_REQUEST", "invalid request body"))
	}

	siteID, err := uuid.Parse(req.SiteID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp("BAD_REQUEST", "invalid siteID"))
	}

	jobType := model.JobScan
	if req.Type != "" {
		jobType = model.JobType(req.Type)
	}

	job := model.Job{
		SiteID:       siteID,
		Type:         jobType,
		Status:       model.JobQueued,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
		MaxRetries:   3,
	}

	created, err := st.EnqueueJob(c.Context(), job)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errResp("JOB_ENQUEUE_FAILED", err.Error()))
	}

	return c.Status(fiber.StatusAccepted).JSON(CreateJobResponse{
		Success: true,
		JobID:   created.ID.String(),
		Status:  string(created.Status),
	})
}

// listJobsHandler implements GET /jobs?status=&siteID=.
func listJobsHandler(c *fiber.Ctx) error {
	st := storeFromCtx(c)

	var siteIDPtr *uuid.UUID
	if raw := c.Query("siteID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errResp("BAD_REQUEST", "invalid siteID"))
		}
		siteIDPtr = &id
	}

	jobs, err := st.ListJobs(c.Context(), siteIDPtr, statusPtr(c.Query("status")))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errResp("JOB_LIST_FAILED", err.Error()))
	}

	items := make([]JobItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, jobItemFromModel(j))
	}

	return c.Status(fiber.StatusOK).JSON(ListJobsResponse{Success: true, Jobs: items})
}

// jobStatsHandler implements GET /jobs/stats.
func jobStatsHandler(c *fiber.Ctx) error {
	st := storeFromCtx(c)

	jobs, err := st.ListJobs(c.Context(), nil, nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errResp("JOB_LIST_FAILED", err.Error()))
	}

	var stats JobStatsResponse
	stats.Success = true
	for _, j := range jobs {
		switch j.Status {
		case model.JobQueued:
			stats.Queued++
		case model.JobRunning:
			stats.Running++
		case model.JobFailed:
			stats.Failed++
		}
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

// cancelJobHandler implements POST /jobs/{id}/cancel: transitions a
// queued or running job to cancelled.
func cancelJobHandler(c *fiber.Ctx) error {
	st := storeFromCtx(c)

	jobID, err := parseUUIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp("BAD_REQUEST", "invalid job id"))
	}

	job, err := st.GetJob(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errResp("NOT_FOUND", "job not found"))
	}

	if job.Status != model.JobQueued && job.Status != model.JobRunning {
		return c.Status(fiber.StatusConflict).JSON(errResp("INVALID_STATE", "job is not queued or running"))
	}

	if err := st.UpdateJobStatus(c.Context(), jobID, model.JobCancelled, ""); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errResp("JOB_CANCEL_FAILED", err.Error()))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// retryJobHandler implements POST /jobs/{id}/retry: only valid from
// failed, and rejected once retryCount has reached maxRetries.
func retryJobHandler(c *fiber.Ctx) error {
	st := storeFromCtx(c)

	jobID, err := parseUUIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp("BAD_REQUEST", "invalid job id"))
	}

	job, err := st.GetJob(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errResp("NOT_FOUND", "job not found"))
	}

	if job.Status != model.JobFailed {
		return c.Status(fiber.StatusConflict).JSON(errResp("INVALID_STATE", "job is not failed"))
	}
	if job.RetryCount >= job.MaxRetries {
		return c.Status(fiber.StatusConflict).JSON(errResp("RETRY_LIMIT_REACHED", "retryCount has reached maxRetries"))
	}

	if err := st.RequeueJob(c.Context(), jobID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errResp("JOB_RETRY_FAILED", err.Error()))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}
