// Package store defines the persistence surface the core consumes
// (spec §4.7): the scan orchestrator, job dispatcher, and comparison
// engine depend only on this interface, never on a concrete database
// driver. Grounded on the teacher's internal/store/store.go shape (a
// thin Go type wrapping read/write operations used by the job runner
// and HTTP handlers), generalized from the teacher's sqlc-backed single
// struct into an interface so a pgx-backed implementation (pg.Store)
// and a fake can both satisfy it.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"webmonitor/internal/model"
)

// Store is every persistence operation the core requires. pg.Store
// commits each InsertSnapshots batch in one transaction and every other
// call on its own, so a scan that fails part-way keeps the writes it
// already made; the dispatcher re-queues the job while retries remain.
type Store interface {
	// Sites
	CreateSite(ctx context.Context, site model.Site) (model.Site, error)
	GetSite(ctx context.Context, id uuid.UUID) (model.Site, error)
	ListSites(ctx context.Context, ownerID *uuid.UUID, status *model.SiteStatus) ([]model.Site, error)
	UpdateSiteCounters(ctx context.Context, siteID uuid.UUID, total, added, changed, removed int) error
	UpdateSiteStatus(ctx context.Context, siteID uuid.UUID, status model.SiteStatus) error
	DeleteArchivedSites(ctx context.Context, olderThan time.Time) (int, error)

	// Scans
	CreateScan(ctx context.Context, scan model.Scan) (model.Scan, error)
	UpdateScan(ctx context.Context, scan model.Scan) error
	GetScan(ctx context.Context, id uuid.UUID) (model.Scan, error)
	PreviousCompletedScan(ctx context.Context, siteID uuid.UUID, before uuid.UUID) (model.Scan, bool, error)

	// Pages and snapshots
	UpsertPage(ctx context.Context, siteID uuid.UUID, page model.Page) (uuid.UUID, error)
	MarkPagesRemoved(ctx context.Context, siteID uuid.UUID, seenURLs []string, scanID uuid.UUID) (int, error)
	InsertSnapshots(ctx context.Context, snapshots []model.PageSnapshot) error
	ListSnapshotsForScan(ctx context.Context, scanID uuid.UUID) ([]model.PageSnapshot, error)

	// Jobs
	EnqueueJob(ctx context.Context, job model.Job) (model.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (model.Job, error)
	ListJobs(ctx context.Context, siteID *uuid.UUID, status *model.JobStatus) ([]model.Job, error)
	ListQueuedJobs(ctx context.Context, limit int) ([]model.Job, error)
	// AcquireLease attempts a compare-and-swap claim of a queued job,
	// returning ok=false if another worker already claimed it.
	AcquireLease(ctx context.Context, jobID uuid.UUID, leaseOwner string, leaseDuration time.Duration) (model.Job, bool, error)
	UpdateJobProgress(ctx context.Context, jobID uuid.UUID, progress int) error
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status model.JobStatus, errMsg string) error
	// LinkJobScan records the scan a job is driving, so a stuck lease
	// sweep can find and fail the associated scan row too.
	LinkJobScan(ctx context.Context, jobID, scanID uuid.UUID) error
	FindStuckJobs(ctx context.Context, staleSince time.Time) ([]model.Job, error)
	RequeueJob(ctx context.Context, jobID uuid.UUID) error
	DeleteOldJobs(ctx context.Context, olderThan time.Time) (int, error)
}
