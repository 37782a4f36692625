package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"webmonitor/internal/model"
	"webmonitor/internal/store"
)

// fakeStore is a minimal in-memory store.Store for handler tests.
type fakeStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]model.Job
	scans map[uuid.UUID]model.Scan
	snaps map[uuid.UUID][]model.PageSnapshot

	listSitesErr error
}

var _ store.Store = (*fakeStore)(nil)

var errNotFound = errors.New("not found")

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:  map[uuid.UUID]model.Job{},
		scans: map[uuid.UUID]model.Scan{},
		snaps: map[uuid.UUID][]model.PageSnapshot{},
	}
}

func (f *fakeStore) CreateSite(ctx context.Context, site model.Site) (model.Site, error) {
	return site, nil
}
func (f *fakeStore) GetSite(ctx context.Context, id uuid.UUID) (model.Site, error) {
	return model.Site{}, nil
}
func (f *fakeStore) ListSites(ctx context.Context, ownerID *uuid.UUID, status *model.SiteStatus) ([]model.Site, error) {
	if f.listSitesErr != nil {
		return nil, f.listSitesErr
	}
	return nil, nil
}
func (f *fakeStore) UpdateSiteCounters(ctx context.Context, siteID uuid.UUID, total, added, changed, removed int) error {
	return nil
}
func (f *fakeStore) UpdateSiteStatus(ctx context.Context, siteID uuid.UUID, status model.SiteStatus) error {
	return nil
}
func (f *fakeStore) DeleteArchivedSites(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func (f *fakeStore) CreateScan(ctx context.Context, scan model.Scan) (model.Scan, error) {
	return scan, nil
}
func (f *fakeStore) UpdateScan(ctx context.Context, scan model.Scan) error { return nil }
func (f *fakeStore) GetScan(ctx context.Context, id uuid.UUID) (model.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scans[id]
	if !ok {
		return model.Scan{}, errNotFound
	}
	return s, nil
}
func (f *fakeStore) PreviousCompletedScan(ctx context.Context, siteID uuid.UUID, before uuid.UUID) (model.Scan, bool, error) {
	return model.Scan{}, false, nil
}

func (f *fakeStore) UpsertPage(ctx context.Context, siteID uuid.UUID, page model.Page) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (f *fakeStore) MarkPagesRemoved(ctx context.Context, siteID uuid.UUID, seenURLs []string, scanID uuid.UUID) (int, error) {
	return 0, nil
}
func (f *fakeStore) InsertSnapshots(ctx context.Context, snapshots []model.PageSnapshot) error {
	return nil
}
func (f *fakeStore) ListSnapshotsForScan(ctx context.Context, scanID uuid.UUID) ([]model.PageSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[scanID], nil
}

func (f *fakeStore) EnqueueJob(ctx context.Context, job model.Job) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	f.jobs[job.ID] = job
	return job, nil
}
func (f *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return model.Job{}, errNotFound
	}
	return j, nil
}
func (f *fakeStore) ListJobs(ctx context.Context, siteID *uuid.UUID, status *model.JobStatus) ([]model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Job
	for _, j := range f.jobs {
		if status != nil && j.Status != *status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}
func (f *fakeStore) ListQueuedJobs(ctx context.Context, limit int) ([]model.Job, error) {
	return nil, nil
}
func (f *fakeStore) AcquireLease(ctx context.Context, jobID uuid.UUID, leaseOwner string, leaseDuration time.Duration) (model.Job, bool, error) {
	return model.Job{}, false, nil
}
func (f *fakeStore) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, progress int) error {
	return nil
}
func (f *fakeStore) LinkJobScan(ctx context.Context, jobID, scanID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.ScanID = &scanID
	f.jobs[jobID] = j
	return nil
}
func (f *fakeStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status model.JobStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.Status = status
	j.Error = errMsg
	f.jobs[jobID] = j
	return nil
}
func (f *fakeStore) FindStuckJobs(ctx context.Context, staleSince time.Time) ([]model.Job, error) {
	return nil, nil
}
func (f *fakeStore) RequeueJob(ctx context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.Status = model.JobQueued
	j.RetryCount++
	f.jobs[jobID] = j
	return nil
}
func (f *fakeStore) DeleteOldJobs(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func newTestApp(st store.Store) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("store", st)
		return c.Next()
	})
	app.Post("/jobs", createJobHandler)
	app.Get("/jobs", listJobsHandler)
	app.Get("/jobs/stats", jobStatsHandler)
	app.Post("/jobs/:id/cancel", cancelJobHandler)
	app.Post("/jobs/:id/retry", retryJobHandler)
	app.Post("/scans/:base/compare/:other", compareScansHandler)
	app.Get("/health", healthHandler)
	return app
}

func TestCreateJobEnqueuesQueuedJob(t *testing.T) {
	st := newFakeStore()
	app := newTestApp(st)

	body, _ := json.Marshal(CreateJobRequest{SiteID: uuid.New().String(), Type: "scan"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var out CreateJobResponse
	b, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status != "queued" {
		t.Errorf("status = %q, want queued", out.Status)
	}
}

func TestCreateJobRejectsInvalidSiteID(t *testing.T) {
	st := newFakeStore()
	app := newTestApp(st)

	body, _ := json.Marshal(CreateJobRequest{SiteID: "not-a-uuid", Type: "scan"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRetryRejectsAtMaxRetries(t *testing.T) {
	st := newFakeStore()
	job := model.Job{ID: uuid.New(), Status: model.JobFailed, RetryCount: 3, MaxRetries: 3}
	st.jobs[job.ID] = job
	app := newTestApp(st)

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID.String()+"/retry", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRetrySucceedsBelowMaxRetries(t *testing.T) {
	st := newFakeStore()
	job := model.Job{ID: uuid.New(), Status: model.JobFailed, RetryCount: 1, MaxRetries: 3}
	st.jobs[job.ID] = job
	app := newTestApp(st)

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID.String()+"/retry", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if st.jobs[job.ID].Status != model.JobQueued {
		t.Errorf("status = %v, want queued", st.jobs[job.ID].Status)
	}
}

func TestCancelRejectsTerminalJob(t *testing.T) {
	st := newFakeStore()
	job := model.Job{ID: uuid.New(), Status: model.JobCompleted}
	st.jobs[job.ID] = job
	app := newTestApp(st)

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID.String()+"/cancel", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestJobStatsCountsByStatus(t *testing.T) {
	st := newFakeStore()
	for _, status := range []model.JobStatus{model.JobQueued, model.JobQueued, model.JobRunning, model.JobFailed} {
		j := model.Job{ID: uuid.New(), Status: status}
		st.jobs[j.ID] = j
	}
	app := newTestApp(st)

	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}

	var stats JobStatsResponse
	b, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(b, &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Queued != 2 || stats.Running != 1 || stats.Failed != 1 {
		t.Errorf("got %+v, want queued=2 running=1 failed=1", stats)
	}
}

func TestHealthReportsErrorWhenStoreFails(t *testing.T) {
	st := newFakeStore()
	st.listSitesErr = errNotFound
	app := newTestApp(st)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}
