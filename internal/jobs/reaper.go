package jobs

import (
	"context"
	"log/slog"
	"time"

	"webmonitor/internal/metrics"
	"webmonitor/internal/model"
	"webmonitor/internal/store"
)

// ReaperOptions configures the periodic stuck-job and retention sweep
// (spec §4.9 "Reaper loop", §4 component 11 "Retention sweeper").
type ReaperOptions struct {
	Interval              time.Duration
	OldJobRetention       time.Duration
	ArchivedSiteRetention time.Duration
}

// Reaper periodically reclaims jobs whose lease expired mid-run and
// deletes data past its retention window, grounded on the teacher's
// internal/jobs/retention.go CleanupExpiredData (TTL sweep driven off a
// last-run timestamp rather than its own ticker).
type Reaper struct {
	store  store.Store
	opts   ReaperOptions
	logger *slog.Logger
}

// NewReaper builds a Reaper.
func NewReaper(st store.Store, opts ReaperOptions, logger *slog.Logger) *Reaper {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.OldJobRetention <= 0 {
		opts.OldJobRetention = 30 * 24 * time.Hour
	}
	if opts.ArchivedSiteRetention <= 0 {
		opts.ArchivedSiteRetention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{store: st, opts: opts, logger: logger}
}

// Start runs the sweep loop until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.sweepOnce(ctx)
	}
}

// failAssociatedScan marks the scan a stuck job was driving as failed
// too, so a dangling "running" scan row doesn't outlive its job (spec §8
// S5). Jobs dispatched before scan linkage existed, or jobs that never
// reached CreateScan, have no ScanID and are skipped.
func (r *Reaper) failAssociatedScan(ctx context.Context, job model.Job) {
	if job.ScanID == nil {
		return
	}
	sc, err := r.store.GetScan(ctx, *job.ScanID)
	if err != nil {
		r.logger.Error("get scan for stuck job failed", "job", job.ID, "scan", *job.ScanID, "error", err)
		return
	}
	if sc.Status != model.ScanRunning {
		return
	}
	sc.Status = model.ScanFailed
	sc.Error = "timed out"
	now := time.Now().UTC()
	sc.CompletedAt = &now
	if err := r.store.UpdateScan(ctx, sc); err != nil {
		r.logger.Error("mark stuck scan failed", "job", job.ID, "scan", *job.ScanID, "error", err)
	}
}

func (r *Reaper) sweepOnce(ctx context.Context) {
	now := time.Now().UTC()

	stuck, err := r.store.FindStuckJobs(ctx, now)
	if err != nil {
		r.logger.Error("find stuck jobs failed", "error", err)
	} else {
		for _, job := range stuck {
			if err := r.store.UpdateJobStatus(ctx, job.ID, model.JobFailed, "timed out"); err != nil {
				r.logger.Error("mark stuck job failed", "job", job.ID, "error", err)
				continue
			}
			r.failAssociatedScan(ctx, job)
		}
		if len(stuck) > 0 {
			metrics.RecordStuckReaped(int64(len(stuck)))
		}
	}

	jobsDeleted, err := r.store.DeleteOldJobs(ctx, now.Add(-r.opts.OldJobRetention))
	if err != nil {
		r.logger.Error("delete old jobs failed", "error", err)
		jobsDeleted = 0
	}

	sitesDeleted, err := r.store.DeleteArchivedSites(ctx, now.Add(-r.opts.ArchivedSiteRetention))
	if err != nil {
		r.logger.Error("delete archived sites failed", "error", err)
		sitesDeleted = 0
	}

	if jobsDeleted > 0 || sitesDeleted > 0 {
		metrics.RecordRetention(int64(jobsDeleted), int64(sitesDeleted))
	}
}
