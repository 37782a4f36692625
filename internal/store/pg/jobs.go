package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"webmonitor/internal/model"
)

func (s *Store) EnqueueJob(ctx context.Context, job model.Job) (model.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = model.JobQueued
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO jobs (id, site_id, type, status, priority, progress, retry_count, max_retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.SiteID, job.Type, job.Status, job.Priority, job.Progress,
		job.RetryCount, job.MaxRetries, job.CreatedAt)
	if err != nil {
		return model.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, site_id, scan_id, type, status, priority, progress, retry_count, max_retries,
		       error_message, created_at, started_at, completed_at
		FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (s *Store) ListJobs(ctx context.Context, siteID *uuid.UUID, status *model.JobStatus) ([]model.Job, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, site_id, scan_id, type, status, priority, progress, retry_count, max_retries,
		       error_message, created_at, started_at, completed_at
		FROM jobs
		WHERE ($1::uuid IS NULL OR site_id = $1) AND ($2::text IS NULL OR status = $2)
		ORDER BY priority DESC, created_at`, nullableUUID(siteID), nullableStatus(status))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *Store) ListQueuedJobs(ctx context.Context, limit int) ([]model.Job, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, site_id, scan_id, type, status, priority, progress, retry_count, max_retries,
		       error_message, created_at, started_at, completed_at
		FROM jobs
		WHERE status = $1
		ORDER BY priority DESC, created_at
		LIMIT $2`, model.JobQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// AcquireLease claims a queued job with a single conditional UPDATE,
// closing the check-then-act race the teacher's runner does not guard
// against (the teacher always claims unconditionally, since it reads
// rows it just selected as pending; this store may race with other
// dispatcher processes reading the same queue).
func (s *Store) AcquireLease(ctx context.Context, jobID uuid.UUID, leaseOwner string, leaseDuration time.Duration) (model.Job, bool, error) {
	now := time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = $2, lease_owner = $3, lease_expires_at = $4, started_at = $5
		WHERE id = $1 AND status = $6`,
		jobID, model.JobRunning, leaseOwner, now.Add(leaseDuration), now, model.JobQueued)
	if err != nil {
		return model.Job{}, false, fmt.Errorf("acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Job{}, false, err
	}
	if n == 0 {
		return model.Job{}, false, nil
	}

	job, err := s.GetJob(ctx, jobID)
	return job, err == nil, err
}

func (s *Store) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, progress int) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE jobs SET progress = $2 WHERE id = $1`, jobID, progress)
	return err
}

// LinkJobScan stamps the scan row a job is driving onto the jobs table,
// so a stuck-lease sweep can look it up without the dispatcher process
// that started it still being alive.
func (s *Store) LinkJobScan(ctx context.Context, jobID, scanID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE jobs SET scan_id = $2 WHERE id = $1`, jobID, scanID)
	return err
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status model.JobStatus, errMsg string) error {
	var completedAt any
	if status == model.JobCompleted || status == model.JobFailed || status == model.JobCancelled {
		completedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = $2, error_message = $3, completed_at = COALESCE($4, completed_at)
		WHERE id = $1`, jobID, status, errMsg, completedAt)
	return err
}

func (s *Store) FindStuckJobs(ctx context.Context, staleSince time.Time) ([]model.Job, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, site_id, scan_id, type, status, priority, progress, retry_count, max_retries,
		       error_message, created_at, started_at, completed_at
		FROM jobs
		WHERE status = $1 AND lease_expires_at < $2`, model.JobRunning, staleSince)
	if err != nil {
		return nil, fmt.Errorf("find stuck jobs: %w", err)
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *Store) RequeueJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = $2, lease_owner = '', lease_expires_at = NULL,
		                retry_count = retry_count + 1, started_at = NULL
		WHERE id = $1`, jobID, model.JobQueued)
	return err
}

func (s *Store) DeleteOldJobs(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN ($1, $2, $3) AND completed_at IS NOT NULL AND completed_at < $4`,
		model.JobCompleted, model.JobFailed, model.JobCancelled, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanJob(row rowScanner) (model.Job, error) {
	var job model.Job
	var scanID uuid.NullUUID
	var startedAt, completedAt sql.NullTime
	var errMsg string

	err := row.Scan(&job.ID, &job.SiteID, &scanID, &job.Type, &job.Status, &job.Priority, &job.Progress,
		&job.RetryCount, &job.MaxRetries, &errMsg, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return model.Job{}, err
	}
	job.Error = errMsg
	if scanID.Valid {
		id := scanID.UUID
		job.ScanID = &id
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableStatus(status *model.JobStatus) any {
	if status == nil {
		return nil
	}
	return string(*status)
}
