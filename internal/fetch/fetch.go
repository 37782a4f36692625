// Package fetch performs single HTTP GET requests on behalf of the
// crawler and worker pool, grounded on the teacher's
// internal/scraper/scraper.go HTTPScraper.Scrape but trimmed to the
// spec's narrower {status, headers, body, loadTimeMs, err} contract.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Result is the outcome of one fetch. Status is 0 on a transport error
// (DNS failure, connection refused, timeout); Fetch never panics and
// never returns a nil Result.
type Result struct {
	Status     int
	Headers    http.Header
	Body       []byte
	LoadTimeMs int64
	Err        error
}

// Client performs GETs with a fixed user-agent, per-request timeout, and
// redirect policy.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
}

// New builds a Client with the given timeout and user-agent. When
// followRedirects is false, redirects are not followed and the first
// response (3xx) is returned as-is.
func New(timeout time.Duration, userAgent string, followRedirects bool) *Client {
	hc := &http.Client{Timeout: timeout}
	if !followRedirects {
		hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Client{HTTPClient: hc, UserAgent: userAgent}
}

// Fetch performs one GET against rawURL. Transport errors become
// {Status: 0, Err: err}; the function itself never returns an error.
func (c *Client) Fetch(ctx context.Context, rawURL string) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{Status: 0, Err: err, LoadTimeMs: time.Since(start).Milliseconds()}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{Status: 0, Err: err, LoadTimeMs: time.Since(start).Milliseconds()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	loadTime := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Status: resp.StatusCode, Headers: resp.Header, Err: err, LoadTimeMs: loadTime}
	}

	return Result{
		Status:     resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		LoadTimeMs: loadTime,
	}
}

// IsHTML reports whether the response's Content-Type header indicates
// an HTML document.
func IsHTML(h http.Header) bool {
	ct := h.Get("Content-Type")
	if ct == "" {
		return false
	}
	for _, want := range []string{"text/html", "application/xhtml+xml"} {
		if len(ct) >= len(want) && ct[:len(want)] == want {
			return true
		}
	}
	return false
}
