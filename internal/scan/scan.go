// Package scan drives one scan job end to end: discover, fetch+extract,
// persist, summarize. Grounded on the teacher's internal/crawl/jobs.go
// Manager.Start goroutine sequence (discover via crawler.Map, then loop
// fetching/scraping each URL, then finalize job status) generalized
// into the spec's 8-step sequence with fractional progress reporting.
package scan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"webmonitor/internal/crawler"
	"webmonitor/internal/fetch"
	"webmonitor/internal/model"
	"webmonitor/internal/patterns"
	"webmonitor/internal/sitemap"
	"webmonitor/internal/store"
	"webmonitor/internal/workerpool"
)

const (
	snapshotBatchSize = 100
	// fetchBatchSize bounds how many URLs run between cancellation checks
	// (spec §4.9/§5: a running job periodically checks its own job row
	// and exits cleanly between URL batches).
	fetchBatchSize = 25
)

// ProgressFunc reports 0-100 progress back to the job dispatcher.
type ProgressFunc func(progress int)

// Orchestrator drives scans against a persistence Store.
type Orchestrator struct {
	Store  store.Store
	Client *fetch.Client

	// RDB, when set, backs the worker pool's pacer with a distributed
	// token bucket (spec §5) instead of an in-process ticker.
	RDB *redis.Client
	// DefaultCrawlDelayMs paces a site that leaves CrawlDelayMs unset.
	DefaultCrawlDelayMs int
}

// New builds an Orchestrator. rdb may be nil, in which case pacing falls
// back to an in-process ticker per scan.
func New(st store.Store, client *fetch.Client, rdb *redis.Client, defaultCrawlDelayMs int) *Orchestrator {
	return &Orchestrator{Store: st, Client: client, RDB: rdb, DefaultCrawlDelayMs: defaultCrawlDelayMs}
}

// Run executes one complete scan for siteID (spec §4.8). The returned
// error, if non-nil, means the scan and its job should both be marked
// failed; the dispatcher decides whether to retry. jobID identifies the
// job driving this scan, so Run can periodically check whether it has
// been cancelled and so the job row can be linked to the created scan.
func (o *Orchestrator) Run(ctx context.Context, jobID, siteID uuid.UUID, report ProgressFunc) (model.Scan, error) {
	if report == nil {
		report = func(int) {}
	}

	site, err := o.Store.GetSite(ctx, siteID)
	if err != nil {
		return model.Scan{}, fmt.Errorf("read site: %w", err)
	}

	scan := model.Scan{
		SiteID:    siteID,
		Method:    site.Discovery.Method,
		Status:    model.ScanRunning,
		StartedAt: time.Now().UTC(),
	}
	scan, err = o.Store.CreateScan(ctx, scan)
	if err != nil {
		return model.Scan{}, fmt.Errorf("create scan: %w", err)
	}
	if jobID != uuid.Nil {
		if err := o.Store.LinkJobScan(ctx, jobID, scan.ID); err != nil {
			return model.Scan{}, fmt.Errorf("link job scan: %w", err)
		}
	}

	urls, err := o.discover(ctx, site)
	if err != nil {
		o.fail(ctx, scan, err)
		return scan, err
	}
	report(25)

	results, cancelled := o.fetchAndExtract(ctx, jobID, site, urls, report)

	previousURLs, err := o.previousScanURLs(ctx, site, scan)
	if err != nil {
		o.fail(ctx, scan, err)
		return scan, err
	}

	if err := o.persist(ctx, site, scan.ID, results, report); err != nil {
		o.fail(ctx, scan, err)
		return scan, err
	}

	if cancelled {
		scan.Status = model.ScanCancelled
		now := time.Now().UTC()
		scan.CompletedAt = &now
		if err := o.Store.UpdateScan(ctx, scan); err != nil {
			return scan, fmt.Errorf("update scan: %w", err)
		}
		return scan, nil
	}
	report(95)

	counters := computeCounters(results, previousURLs)
	scan.TotalPages = counters.total
	scan.NewPages = counters.added
	scan.ChangedPages = counters.changed
	scan.RemovedPages = counters.removed
	scan.ErrorPages = counters.errored
	scan.Status = model.ScanCompleted
	now := time.Now().UTC()
	scan.CompletedAt = &now
	scan.ScannedURLs = capURLs(urls, 1000)

	if err := o.Store.UpdateScan(ctx, scan); err != nil {
		return scan, fmt.Errorf("update scan: %w", err)
	}
	if err := o.Store.UpdateSiteCounters(ctx, siteID, counters.total, counters.added, counters.changed, counters.removed); err != nil {
		return scan, fmt.Errorf("update site counters: %w", err)
	}

	report(100)
	return scan, nil
}

// cancelled reports whether jobID's job row has since been marked
// cancelled, e.g. via the HTTP cancel endpoint. A zero jobID (used by
// callers that don't track a job, such as tests) never cancels.
func (o *Orchestrator) cancelled(ctx context.Context, jobID uuid.UUID) bool {
	if jobID == uuid.Nil {
		return false
	}
	job, err := o.Store.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == model.JobCancelled
}

func (o *Orchestrator) fail(ctx context.Context, scan model.Scan, cause error) {
	scan.Status = model.ScanFailed
	scan.Error = cause.Error()
	now := time.Now().UTC()
	scan.CompletedAt = &now
	_ = o.Store.UpdateScan(ctx, scan)
}

// discover dispatches to the sitemap parser or link crawler depending on
// the site's configured discovery method (spec §4.8 step 3).
func (o *Orchestrator) discover(ctx context.Context, site model.Site) ([]string, error) {
	switch site.Discovery.Method {
	case model.DiscoverySitemap:
		return o.discoverFromSitemaps(ctx, site)
	case model.DiscoveryCrawling:
		return o.discoverFromCrawl(ctx, site)
	default:
		return nil, fmt.Errorf("unknown discovery method %q", site.Discovery.Method)
	}
}

func (o *Orchestrator) discoverFromSitemaps(ctx context.Context, site model.Site) ([]string, error) {
	var sources []string
	for _, sm := range site.Discovery.Sitemaps {
		if sm.Enabled {
			sources = append(sources, sm.URL)
		}
	}
	if len(sources) == 0 && site.Discovery.AutoDetect {
		root, err := url.Parse(site.RootURL)
		if err != nil {
			return nil, err
		}
		for _, p := range sitemap.AutoDetectPaths {
			probe := &url.URL{Scheme: root.Scheme, Host: root.Host, Path: p}
			sources = append(sources, probe.String())
		}
	}

	settings := sitemap.Settings{
		Timeout:     30 * time.Second,
		FollowIndex: site.Discovery.FollowIndex,
		MaxDepth:    5,
	}

	seen := map[string]bool{}
	var all []string
	for _, src := range sources {
		for _, u := range sitemap.Parse(ctx, http.DefaultClient, src, settings, func(string) {}) {
			if !seen[u] {
				seen[u] = true
				all = append(all, u)
			}
		}
	}
	return all, nil
}

func (o *Orchestrator) discoverFromCrawl(ctx context.Context, site model.Site) ([]string, error) {
	cfg := site.Discovery.Crawl
	pages, err := crawler.Crawl(ctx, o.Client, crawler.Options{
		RootURL:         site.RootURL,
		MaxDepth:        cfg.MaxDepth,
		MaxPages:        cfg.MaxPages,
		MaxConcurrency:  cfg.MaxConcurrency,
		CrawlDelay:      time.Duration(cfg.CrawlDelayMs) * time.Millisecond,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		FollowExternal:  cfg.FollowExternal,
		FollowRedirects: cfg.FollowRedirects,
		RespectRobots:   cfg.RespectRobots,
		Include:         patterns.StringsToPatterns(cfg.IncludePatterns),
		Exclude:         patterns.StringsToPatterns(cfg.ExcludePatterns),
	})
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}
	return urls, nil
}

// fetchAndExtract runs the worker pool over the discovered URLs in
// batches, translating per-batch completion into linear 25-75% progress
// (spec §4.8 step 4) and checking for cancellation between batches (spec
// §4.9/§5). Each URL's extraction config resolves through the site's
// per-URL-pattern overrides rather than a single constant (spec §3).
func (o *Orchestrator) fetchAndExtract(ctx context.Context, jobID uuid.UUID, site model.Site, urls []string, report ProgressFunc) ([]workerpool.PageResult, bool) {
	if len(urls) == 0 {
		return nil, false
	}

	concurrency := site.Discovery.Crawl.MaxConcurrency
	if concurrency < 1 {
		concurrency = 4
	}

	delayMs := site.Discovery.Crawl.CrawlDelayMs
	if delayMs <= 0 {
		delayMs = o.DefaultCrawlDelayMs
	}
	pacer := workerpool.NewPacer(time.Duration(delayMs)*time.Millisecond, o.RDB, "webmonitor:pace:"+site.ID.String())

	extractCfgFor := func(u string) model.ExtractionConfig {
		return site.Extraction.Effective(u, patterns.Matches)
	}

	results := make([]workerpool.PageResult, 0, len(urls))
	for start := 0; start < len(urls); start += fetchBatchSize {
		if o.cancelled(ctx, jobID) {
			return results, true
		}

		end := start + fetchBatchSize
		if end > len(urls) {
			end = len(urls)
		}

		batch := workerpool.Run(ctx, o.Client, urls[start:end], workerpool.Options{
			MaxConcurrency: concurrency,
			Pacer:          pacer,
			ExtractCfgFor:  extractCfgFor,
		})
		results = append(results, batch...)

		progress := 25 + (50 * end / len(urls))
		report(progress)
	}

	return results, false
}

func (o *Orchestrator) previousScanURLs(ctx context.Context, site model.Site, current model.Scan) (map[string]string, error) {
	prev, ok, err := o.Store.PreviousCompletedScan(ctx, site.ID, current.ID)
	if err != nil || !ok {
		return map[string]string{}, err
	}
	snapshots, err := o.Store.ListSnapshotsForScan(ctx, prev.ID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(snapshots))
	for _, s := range snapshots {
		out[s.URL] = s.ContentHash
	}
	return out, nil
}

// persist upserts pages and writes snapshots in batches (spec §4.8 step
// 5, suggested batch size 100).
func (o *Orchestrator) persist(ctx context.Context, site model.Site, scanID uuid.UUID, results []workerpool.PageResult, report ProgressFunc) error {
	var batch []model.PageSnapshot
	seen := make([]string, 0, len(results))

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := o.Store.InsertSnapshots(ctx, batch)
		batch = batch[:0]
		return err
	}

	for i, r := range results {
		seen = append(seen, r.URL)

		pageStatus := model.PageActive
		if r.Err != nil || r.Status < 200 || r.Status >= 400 {
			pageStatus = model.PageError
		}

		page := model.Page{
			URL:          r.URL,
			Status:       pageStatus,
			ContentHash:  r.Extracted.ContentHash,
			Title:        r.Extracted.Title,
			Meta:         r.Extracted.MetaDescription,
			Canonical:    r.Extracted.Canonical,
			ResponseCode: r.Status,
			LoadTimeMs:   r.LoadTimeMs,
		}
		pageID, err := o.Store.UpsertPage(ctx, site.ID, page)
		if err != nil {
			return fmt.Errorf("upsert page %s: %w", r.URL, err)
		}

		batch = append(batch, model.PageSnapshot{
			ScanID:            scanID,
			PageID:            pageID,
			URL:               r.URL,
			Title:             r.Extracted.Title,
			MetaDescription:   r.Extracted.MetaDescription,
			Canonical:         r.Extracted.Canonical,
			Breadcrumbs:       r.Extracted.Breadcrumbs,
			Headings:          r.Extracted.Headings,
			CustomData:        r.Extracted.CustomData,
			MainContent:       r.Extracted.MainContent,
			MainContentFormat: r.Extracted.MainContentFormat,
			ContentHash:       r.Extracted.ContentHash,
			ResponseCode:      r.Status,
			LoadTimeMs:        r.LoadTimeMs,
			ExtractionConfigID: site.Extraction.Default.ID,
			Warnings:          r.Extracted.Warnings,
		})

		if len(batch) >= snapshotBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		if len(results) > 0 {
			progress := 75 + (20 * (i + 1) / len(results))
			report(progress)
		}
	}

	if err := flush(); err != nil {
		return err
	}

	if _, err := o.Store.MarkPagesRemoved(ctx, site.ID, seen, scanID); err != nil {
		return fmt.Errorf("mark removed pages: %w", err)
	}
	return nil
}

type counters struct {
	total   int
	added   int
	removed int
	changed int
	errored int
}

// computeCounters implements spec §4.8 step 6's four set comparisons
// between this scan's results and the previous scan's URL/hash map.
func computeCounters(results []workerpool.PageResult, previous map[string]string) counters {
	c := counters{total: len(results)}
	seen := make(map[string]bool, len(results))

	for _, r := range results {
		seen[r.URL] = true

		if r.Err != nil || r.Status < 200 || r.Status >= 400 {
			c.errored++
			continue
		}

		prevHash, existed := previous[r.URL]
		switch {
		case !existed:
			c.added++
		case prevHash != r.Extracted.ContentHash:
			c.changed++
		}
	}

	for u := range previous {
		if !seen[u] {
			c.removed++
		}
	}

	return c
}

func capURLs(urls []string, max int) []string {
	if len(urls) <= max {
		return urls
	}
	return urls[:max]
}
