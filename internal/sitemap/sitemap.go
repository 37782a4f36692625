// Package sitemap recursively resolves XML sitemap and sitemap-index
// documents into a deduplicated URL list, grounded on the teacher's
// collectFromSitemap helper (internal/crawler/map.go) generalized to
// follow sitemap-index <loc> entries.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Settings controls one parse pass.
type Settings struct {
	UserAgent   string
	Timeout     time.Duration
	FollowIndex bool
	// MaxDepth bounds sitemap-index recursion so a misconfigured index
	// cannot recurse forever.
	MaxDepth int
}

type urlEntry struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

// Fetcher is the minimal HTTP surface sitemap parsing needs; satisfied
// by *http.Client, and fakeable in tests.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Parse fetches the document at rawURL and recursively resolves it into
// a deduplicated, first-seen-ordered URL list. A single unreachable or
// malformed sitemap is logged (via warn) and skipped; it never aborts
// the caller's broader discovery pass (spec §4.3, §7 "Discovery error").
func Parse(ctx context.Context, client Fetcher, rawURL string, settings Settings, warn func(msg string)) []string {
	seen := make(map[string]bool)
	var ordered []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		ordered = append(ordered, u)
	}

	parseOne(ctx, client, rawURL, settings, 0, add, warn)
	return ordered
}

func parseOne(ctx context.Context, client Fetcher, rawURL string, settings Settings, depth int, add func(string), warn func(string)) {
	if settings.MaxDepth > 0 && depth > settings.MaxDepth {
		warn(fmt.Sprintf("sitemap index recursion exceeded max depth at %s", rawURL))
		return
	}

	body, err := fetch(ctx, client, rawURL, settings)
	if err != nil {
		warn(fmt.Sprintf("sitemap %s: %v", rawURL, err))
		return
	}

	if idx, ok := tryParseIndex(body); ok && len(idx.Sitemaps) > 0 {
		if !settings.FollowIndex {
			return
		}
		for _, sm := range idx.Sitemaps {
			if sm.Loc == "" {
				continue
			}
			parseOne(ctx, client, sm.Loc, settings, depth+1, add, warn)
		}
		return
	}

	var us urlSet
	if err := xml.Unmarshal(body, &us); err != nil {
		warn(fmt.Sprintf("sitemap %s: malformed XML: %v", rawURL, err))
		return
	}
	for _, u := range us.URLs {
		add(u.Loc)
	}
}

// tryParseIndex reports whether body parses as a <sitemapindex> document.
func tryParseIndex(body []byte) (sitemapIndex, bool) {
	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err != nil {
		return sitemapIndex{}, false
	}
	if idx.XMLName.Local != "sitemapindex" {
		return sitemapIndex{}, false
	}
	return idx, true
}

func fetch(ctx context.Context, client Fetcher, rawURL string, settings Settings) ([]byte, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if settings.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if settings.UserAgent != "" {
		req.Header.Set("User-Agent", settings.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// AutoDetectPaths are probed under the site root when the configured
// sitemap list is empty and auto-detect is enabled (spec §4.3).
var AutoDetectPaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemaps.xml"}
