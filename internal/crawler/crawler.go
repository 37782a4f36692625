// Package crawler implements breadth-first link discovery, grounded on
// the teacher's internal/crawler/map.go (frontier/visited pattern,
// sameHostOrSubdomain, robots.txt handling via robotstxt) generalized
// from a single-pass map into a depth-bounded BFS with batched
// concurrency and crawl-delay pacing between batches.
package crawler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	robotstxt "github.com/temoto/robotstxt"

	"webmonitor/internal/fetch"
	"webmonitor/internal/patterns"
)

// Options configures one crawl pass (spec §4.4).
type Options struct {
	RootURL         string
	MaxDepth        int
	MaxPages        int
	MaxConcurrency  int
	CrawlDelay      time.Duration
	Timeout         time.Duration
	FollowExternal  bool
	FollowRedirects bool
	RespectRobots   bool
	UserAgent       string
	Include         []patterns.Pattern
	Exclude         []patterns.Pattern
}

// Page is one discovered, fetched page carried forward to extraction.
type Page struct {
	URL        string
	Depth      int
	Status     int
	Headers    http.Header
	Body       []byte
	LoadTimeMs int64
}

type frontierItem struct {
	url   string
	depth int
}

// Crawl runs the breadth-first discovery loop and returns every page that
// returned a 2xx HTML response, in the order they were fetched.
func Crawl(ctx context.Context, client *fetch.Client, opts Options) ([]Page, error) {
	root, err := url.Parse(opts.RootURL)
	if err != nil {
		return nil, err
	}

	var robots *robotstxt.RobotsData
	if opts.RespectRobots {
		robots = fetchRobots(ctx, client, root)
	}

	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	frontier := []frontierItem{{url: root.String(), depth: 0}}
	visited := map[string]bool{}
	var discovered []Page

	for len(frontier) > 0 && len(discovered) < opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}

		batchSize := maxConcurrency
		if batchSize > len(frontier) {
			batchSize = len(frontier)
		}
		batch := frontier[:batchSize]
		frontier = frontier[batchSize:]

		var mu sync.Mutex
		var wg sync.WaitGroup
		var nextLinks []frontierItem

		for _, item := range batch {
			if visited[item.url] || item.depth > opts.MaxDepth {
				continue
			}
			visited[item.url] = true

			if !patterns.ShouldInclude(item.url, opts.Include, opts.Exclude) {
				continue
			}
			if robots != nil && !robotsAllows(robots, opts.UserAgent, item.url) {
				continue
			}

			wg.Add(1)
			go func(item frontierItem) {
				defer wg.Done()

				fetchCtx := ctx
				var cancel context.CancelFunc
				if opts.Timeout > 0 {
					fetchCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
					defer cancel()
				}

				res := client.Fetch(fetchCtx, item.url)
				if res.Err != nil || res.Status < 200 || res.Status >= 300 || !fetch.IsHTML(res.Headers) {
					return
				}

				page := Page{
					URL:        item.url,
					Depth:      item.depth,
					Status:     res.Status,
					Headers:    res.Headers,
					Body:       res.Body,
					LoadTimeMs: res.LoadTimeMs,
				}

				mu.Lock()
				if len(discovered) >= opts.MaxPages {
					mu.Unlock()
					return
				}
				discovered = append(discovered, page)
				mu.Unlock()

				if item.depth < opts.MaxDepth {
					links := extractLinks(res.Body, item.url)
					mu.Lock()
					for _, l := range links {
						if !opts.FollowExternal && !sameRegisteredDomain(root.Hostname(), mustHost(l)) {
							continue
						}
						nextLinks = append(nextLinks, frontierItem{url: l, depth: item.depth + 1})
					}
					mu.Unlock()
				}
			}(item)
		}

		wg.Wait()
		frontier = append(frontier, nextLinks...)

		if opts.CrawlDelay > 0 && len(frontier) > 0 {
			select {
			case <-ctx.Done():
				return discovered, ctx.Err()
			case <-time.After(opts.CrawlDelay):
			}
		}
	}

	return discovered, nil
}

// extractLinks pulls absolute http(s) URLs out of a page body's anchor
// tags, resolved against the page's own URL.
func extractLinks(body []byte, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		out = append(out, resolved.String())
	})
	return out
}

func mustHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// sameRegisteredDomain reports whether host is the same host as base or a
// subdomain of it, mirroring the teacher's sameHostOrSubdomain policy
// (here always permitting subdomains, since follow-external is the only
// knob the spec exposes).
func sameRegisteredDomain(baseHost, host string) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(baseHost, host) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(baseHost))
}

func fetchRobots(ctx context.Context, client *fetch.Client, base *url.URL) *robotstxt.RobotsData {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}
	res := client.Fetch(ctx, robotsURL.String())
	if res.Err != nil || res.Status != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(res.Status, res.Body)
	if err != nil {
		return nil
	}
	return data
}

func robotsAllows(robots *robotstxt.RobotsData, userAgent, rawURL string) bool {
	grp := robots.FindGroup(userAgent)
	if grp == nil {
		return true
	}
	return grp.Test(rawURL)
}
