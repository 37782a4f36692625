// Package jobs implements the job dispatcher and lease manager (spec
// §4.9), grounded on the teacher's internal/jobs/runner.go poll-ticker +
// concurrency-semaphore pattern and dispatchJob type switch, generalized
// from the teacher's unconditional claim (it dispatches rows it just
// selected as pending) to a CAS-based lease acquired through
// store.Store.AcquireLease, closing that race for multi-instance
// deployments.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"webmonitor/internal/metrics"
	"webmonitor/internal/model"
	"webmonitor/internal/store"
)

// Orchestrator is the subset of scan.Orchestrator the dispatcher drives;
// kept as an interface here so jobs never imports the scan package
// directly (avoids a cyclic import and matches the teacher's own
// executor-interface indirection in internal/jobs/runner.go).
type Orchestrator interface {
	Run(ctx context.Context, jobID, siteID uuid.UUID, report func(progress int)) (model.Scan, error)
}

// Options configures one Dispatcher.
type Options struct {
	PollInterval   time.Duration
	MaxConcurrency int
	LeaseDuration  time.Duration
	LeaseOwner     string
}

// Dispatcher polls the queued-jobs table, leases work, and dispatches
// it to the scan orchestrator under a bounded concurrency cap.
type Dispatcher struct {
	store   store.Store
	orch    Orchestrator
	opts    Options
	logger  *slog.Logger
}

// New builds a Dispatcher.
func New(st store.Store, orch Orchestrator, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 3
	}
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = 2 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: st, orch: orch, opts: opts, logger: logger}
}

// Start runs the poll loop until ctx is cancelled. Callers typically run
// this in its own goroutine and keep the process alive (matching the
// teacher's Runner.Start contract).
func (d *Dispatcher) Start(ctx context.Context) {
	sem := make(chan struct{}, d.opts.MaxConcurrency)
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		capacity := d.opts.MaxConcurrency - len(sem)
		if capacity <= 0 {
			continue
		}

		jobs, err := d.store.ListQueuedJobs(ctx, capacity)
		if err != nil {
			d.logger.Error("list queued jobs failed", "error", err)
			continue
		}

		for _, job := range jobs {
			if job.ScheduledFor != nil && job.ScheduledFor.After(time.Now().UTC()) {
				continue
			}

			claimed, ok, err := d.store.AcquireLease(ctx, job.ID, d.opts.LeaseOwner, d.opts.LeaseDuration)
			if err != nil {
				d.logger.Error("acquire lease failed", "job", job.ID, "error", err)
				continue
			}
			if !ok {
				continue
			}

			sem <- struct{}{}
			go func(job model.Job) {
				defer func() { <-sem }()
				d.dispatch(ctx, job)
			}(claimed)
		}
	}
}

// dispatch runs one leased job to completion and applies the terminal
// state transition and retry policy from spec §4.9's state machine.
func (d *Dispatcher) dispatch(ctx context.Context, job model.Job) {
	switch job.Type {
	case model.JobScan, model.JobDiscovery, model.JobExtraction:
		d.runScan(ctx, job)
	case model.JobCleanup:
		d.runCleanup(ctx, job)
	default:
		d.fail(ctx, job, "unknown job type: "+string(job.Type))
	}
}

func (d *Dispatcher) runScan(ctx context.Context, job model.Job) {
	_, err := d.orch.Run(ctx, job.ID, job.SiteID, func(progress int) {
		_ = d.store.UpdateJobProgress(ctx, job.ID, progress)
	})
	if err != nil {
		d.retryOrFail(ctx, job, err.Error())
		return
	}

	// The job may have been cancelled concurrently (e.g. via the HTTP
	// cancel endpoint) while orch.Run was still finishing up; don't
	// clobber that terminal status back to completed.
	current, getErr := d.store.GetJob(ctx, job.ID)
	if getErr == nil && current.Status == model.JobCancelled {
		return
	}

	if err := d.store.UpdateJobStatus(ctx, job.ID, model.JobCompleted, ""); err != nil {
		d.logger.Error("update job status failed", "job", job.ID, "error", err)
		return
	}
	metrics.RecordJob(string(job.Type), string(model.JobCompleted))
}

func (d *Dispatcher) runCleanup(ctx context.Context, job model.Job) {
	if err := d.store.UpdateJobStatus(ctx, job.ID, model.JobCompleted, ""); err != nil {
		d.logger.Error("update cleanup job status failed", "job", job.ID, "error", err)
		return
	}
	metrics.RecordJob(string(job.Type), string(model.JobCompleted))
}

// retryOrFail re-queues a failed job when retries remain, else marks it
// terminally failed (spec §4.9 state machine).
func (d *Dispatcher) retryOrFail(ctx context.Context, job model.Job, errMsg string) {
	if job.RetryCount < job.MaxRetries {
		if err := d.store.RequeueJob(ctx, job.ID); err != nil {
			d.logger.Error("requeue job failed", "job", job.ID, "error", err)
			return
		}
		metrics.RecordRetry(string(job.Type))
		return
	}
	d.fail(ctx, job, errMsg)
}

func (d *Dispatcher) fail(ctx context.Context, job model.Job, errMsg string) {
	if err := d.store.UpdateJobStatus(ctx, job.ID, model.JobFailed, errMsg); err != nil {
		d.logger.Error("mark job failed failed", "job", job.ID, "error", err)
		return
	}
	metrics.RecordJob(string(job.Type), string(model.JobFailed))
}
