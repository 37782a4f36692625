package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"webmonitor/internal/model"
)

// memStore is a minimal in-memory store.Store used across dispatcher
// and reaper tests.
type memStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]model.Job
	scans map[uuid.UUID]model.Scan
}

func newMemStore(jobs ...model.Job) *memStore {
	m := &memStore{jobs: map[uuid.UUID]model.Job{}, scans: map[uuid.UUID]model.Scan{}}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memStore) CreateSite(ctx context.Context, site model.Site) (model.Site, error) { return site, nil }
func (m *memStore) GetSite(ctx context.Context, id uuid.UUID) (model.Site, error)        { return model.Site{}, nil }
func (m *memStore) ListSites(ctx context.Context, ownerID *uuid.UUID, status *model.SiteStatus) ([]model.Site, error) {
	return nil, nil
}
func (m *memStore) UpdateSiteCounters(ctx context.Context, siteID uuid.UUID, total, added, changed, removed int) error {
	return nil
}
func (m *memStore) UpdateSiteStatus(ctx context.Context, siteID uuid.UUID, status model.SiteStatus) error {
	return nil
}
func (m *memStore) DeleteArchivedSites(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}
func (m *memStore) CreateScan(ctx context.Context, scan model.Scan) (model.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}
	m.scans[scan.ID] = scan
	return scan, nil
}
func (m *memStore) UpdateScan(ctx context.Context, scan model.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[scan.ID] = scan
	return nil
}
func (m *memStore) GetScan(ctx context.Context, id uuid.UUID) (model.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans[id], nil
}
func (m *memStore) PreviousCompletedScan(ctx context.Context, siteID uuid.UUID, before uuid.UUID) (model.Scan, bool, error) {
	return model.Scan{}, false, nil
}
func (m *memStore) UpsertPage(ctx context.Context, siteID uuid.UUID, page model.Page) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (m *memStore) MarkPagesRemoved(ctx context.Context, siteID uuid.UUID, seenURLs []string, scanID uuid.UUID) (int, error) {
	return 0, nil
}
func (m *memStore) InsertSnapshots(ctx context.Context, snapshots []model.PageSnapshot) error {
	return nil
}
func (m *memStore) ListSnapshotsForScan(ctx context.Context, scanID uuid.UUID) ([]model.PageSnapshot, error) {
	return nil, nil
}

func (m *memStore) EnqueueJob(ctx context.Context, job model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	m.jobs[job.ID] = job
	return job, nil
}
func (m *memStore) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id], nil
}
func (m *memStore) ListJobs(ctx context.Context, siteID *uuid.UUID, status *model.JobStatus) ([]model.Job, error) {
	return nil, nil
}
func (m *memStore) ListQueuedJobs(ctx context.Context, limit int) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Job
	for _, j := range m.jobs {
		if j.Status == model.JobQueued {
			out = append(out, j)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (m *memStore) AcquireLease(ctx context.Context, jobID uuid.UUID, leaseOwner string, leaseDuration time.Duration) (model.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != model.JobQueued {
		return model.Job{}, false, nil
	}
	job.Status = model.JobRunning
	m.jobs[jobID] = job
	return job, true, nil
}
func (m *memStore) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.Progress = progress
	m.jobs[jobID] = job
	return nil
}
func (m *memStore) LinkJobScan(ctx context.Context, jobID, scanID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.ScanID = &scanID
	m.jobs[jobID] = job
	return nil
}
func (m *memStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status model.JobStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.Status = status
	job.Error = errMsg
	m.jobs[jobID] = job
	return nil
}
func (m *memStore) FindStuckJobs(ctx context.Context, staleSince time.Time) ([]model.Job, error) {
	return nil, nil
}
func (m *memStore) RequeueJob(ctx context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.Status = model.JobQueued
	job.RetryCount++
	m.jobs[jobID] = job
	return nil
}
func (m *memStore) DeleteOldJobs(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func (m *memStore) get(id uuid.UUID) model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

type fakeOrchestrator struct {
	err error
}

func (f *fakeOrchestrator) Run(ctx context.Context, jobID, siteID uuid.UUID, report func(int)) (model.Scan, error) {
	if report != nil {
		report(100)
	}
	return model.Scan{}, f.err
}

func TestDispatcherCompletesSuccessfulJob(t *testing.T) {
	job := model.Job{ID: uuid.New(), SiteID: uuid.New(), Type: model.JobScan, Status: model.JobQueued, MaxRetries: 3}
	st := newMemStore(job)
	d := New(st, &fakeOrchestrator{}, Options{PollInterval: 10 * time.Millisecond, MaxConcurrency: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	d.Start(ctx)

	got := st.get(job.ID)
	if got.Status != model.JobCompleted {
		t.Errorf("status = %v, want completed", got.Status)
	}
}

func TestDispatcherRetriesBelowMaxRetries(t *testing.T) {
	job := model.Job{ID: uuid.New(), SiteID: uuid.New(), Type: model.JobScan, Status: model.JobQueued, MaxRetries: 3, RetryCount: 0}
	st := newMemStore(job)
	// A re-queued job is eligible again on the next poll, so the window
	// holds exactly one poll (at 30ms) to observe a single retry.
	d := New(st, &fakeOrchestrator{err: errors.New("boom")}, Options{PollInterval: 30 * time.Millisecond, MaxConcurrency: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Start(ctx)

	got := st.get(job.ID)
	if got.Status != model.JobQueued {
		t.Errorf("status = %v, want queued (retry)", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", got.RetryCount)
	}
}

func TestDispatcherFailsAtMaxRetries(t *testing.T) {
	job := model.Job{ID: uuid.New(), SiteID: uuid.New(), Type: model.JobScan, Status: model.JobQueued, MaxRetries: 1, RetryCount: 1}
	st := newMemStore(job)
	d := New(st, &fakeOrchestrator{err: errors.New("boom")}, Options{PollInterval: 10 * time.Millisecond, MaxConcurrency: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Start(ctx)

	got := st.get(job.ID)
	if got.Status != model.JobFailed {
		t.Errorf("status = %v, want failed", got.Status)
	}
}

func TestDispatcherFailsUnknownJobType(t *testing.T) {
	job := model.Job{ID: uuid.New(), SiteID: uuid.New(), Type: model.JobType("bogus"), Status: model.JobQueued, MaxRetries: 3}
	st := newMemStore(job)
	d := New(st, &fakeOrchestrator{}, Options{PollInterval: 10 * time.Millisecond, MaxConcurrency: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Start(ctx)

	got := st.get(job.ID)
	if got.Status != model.JobFailed {
		t.Errorf("status = %v, want failed for unknown job type", got.Status)
	}
}
