// Package workerpool fans a URL list across N bounded workers, grounded
// on the teacher's internal/jobs/runner.go semaphore-channel pattern
// (sem := make(chan struct{}, maxJobs)) applied to per-URL fetch+extract
// work instead of per-job dispatch. Pacing between fetches is either an
// in-process ticker or, when Redis is configured, a distributed token
// bucket shared across dispatcher instances — mirroring the teacher's
// own optional-Redis wiring in internal/http/router.go.
package workerpool

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"webmonitor/internal/extract"
	"webmonitor/internal/fetch"
	"webmonitor/internal/model"
)

// PageResult is one URL's fetch+extract outcome, keyed by input order
// (spec §4.6: "return the list in input order").
type PageResult struct {
	URL        string
	Status     int
	LoadTimeMs int64
	Extracted  extract.Result
	Err        error
}

// Pacer throttles fetch starts across the pool. A nil Pacer means no
// pacing.
type Pacer interface {
	// Wait blocks until the caller may proceed, or ctx is done.
	Wait(ctx context.Context) error
}

// tickerPacer paces fetch starts to at most one per interval, shared
// across all workers in this process.
type tickerPacer struct {
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func (p *tickerPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interval <= 0 {
		return nil
	}
	wait := p.interval - time.Since(p.last)
	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	p.last = time.Now()
	return nil
}

// redisPacer implements a distributed token-bucket pace limit using a
// Redis key as the shared clock, so multiple dispatcher processes crawl
// the same site without exceeding its configured crawl-delay in
// aggregate.
type redisPacer struct {
	client   *redis.Client
	key      string
	interval time.Duration
}

func (p *redisPacer) Wait(ctx context.Context) error {
	if p.interval <= 0 {
		return nil
	}
	for {
		ok, err := p.client.SetNX(ctx, p.key, "1", p.interval).Result()
		if err != nil {
			// Redis unavailable: degrade to unpaced rather than blocking forever.
			return nil
		}
		if ok {
			return nil
		}
		ttl, err := p.client.PTTL(ctx, p.key).Result()
		if err != nil || ttl <= 0 {
			ttl = p.interval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ttl):
		}
	}
}

// NewPacer builds an in-process pacer, or a Redis-backed one when rdb is
// non-nil (spec §5, "per-host or global token-bucket pacing").
func NewPacer(interval time.Duration, rdb *redis.Client, key string) Pacer {
	if rdb != nil {
		return &redisPacer{client: rdb, key: key, interval: interval}
	}
	return &tickerPacer{interval: interval}
}

// Options configures one worker-pool pass.
type Options struct {
	MaxConcurrency int
	Pacer          Pacer
	// ExtractCfg is the extraction config applied to every URL when
	// ExtractCfgFor is nil.
	ExtractCfg model.ExtractionConfig
	// ExtractCfgFor, when set, resolves a per-URL extraction config
	// (spec §3 ExtractionSettings override resolution) and takes
	// precedence over ExtractCfg.
	ExtractCfgFor func(url string) model.ExtractionConfig
}

// Run fetches and extracts every URL in urls, fanned out across
// opts.MaxConcurrency workers, and returns results in the same order as
// urls (spec §4.6 steps 1-3).
func Run(ctx context.Context, client *fetch.Client, urls []string, opts Options) []PageResult {
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	results := make([]PageResult, len(urls))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		i, u := i, u
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if opts.Pacer != nil {
				if err := opts.Pacer.Wait(ctx); err != nil {
					results[i] = PageResult{URL: u, Err: err}
					return
				}
			}

			cfg := opts.ExtractCfg
			if opts.ExtractCfgFor != nil {
				cfg = opts.ExtractCfgFor(u)
			}
			results[i] = fetchAndExtract(ctx, client, u, cfg)
		}()
	}

	wg.Wait()
	return results
}

func fetchAndExtract(ctx context.Context, client *fetch.Client, rawURL string, cfg model.ExtractionConfig) PageResult {
	res := client.Fetch(ctx, rawURL)
	if res.Err != nil {
		return PageResult{URL: rawURL, Err: res.Err}
	}

	result := PageResult{URL: rawURL, Status: res.Status, LoadTimeMs: res.LoadTimeMs}

	if res.Status < 200 || res.Status >= 400 || !fetch.IsHTML(res.Headers) {
		return result
	}

	base, _ := url.Parse(rawURL)
	result.Extracted = extract.Extract(res.Body, cfg, base)
	return result
}
