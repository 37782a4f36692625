package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webmonitor/internal/fetch"
)

func testClient() *fetch.Client {
	return fetch.New(2*time.Second, "webmonitor-test", true)
}

// TestCrawlBFSRespectsMaxDepth exercises a three-level link chain with
// maxDepth=1, expecting only the root and its direct children.
func TestCrawlBFSRespectsMaxDepth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", html(`<a href="/a">a</a>`))
	mux.HandleFunc("/a", html(`<a href="/b">b</a>`))
	mux.HandleFunc("/b", html(`no links`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, err := Crawl(context.Background(), testClient(), Options{
		RootURL:        srv.URL + "/",
		MaxDepth:       1,
		MaxPages:       100,
		MaxConcurrency: 4,
		Timeout:        2 * time.Second,
		FollowExternal: true,
	})
	if err != nil {
		t.Fatalf("crawl error: %v", err)
	}

	seen := map[string]bool{}
	for _, p := range pages {
		seen[p.URL] = true
	}
	if !seen[srv.URL+"/"] || !seen[srv.URL+"/a"] {
		t.Errorf("expected root and /a discovered, got %v", pages)
	}
	if seen[srv.URL+"/b"] {
		t.Error("/b should not be reached at maxDepth=1")
	}
}

func TestCrawlStopsAtMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", html(`<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>`))
	mux.HandleFunc("/a", html(``))
	mux.HandleFunc("/b", html(``))
	mux.HandleFunc("/c", html(``))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, err := Crawl(context.Background(), testClient(), Options{
		RootURL:        srv.URL + "/",
		MaxDepth:       5,
		MaxPages:       2,
		MaxConcurrency: 4,
		Timeout:        2 * time.Second,
		FollowExternal: true,
	})
	if err != nil {
		t.Fatalf("crawl error: %v", err)
	}
	if len(pages) > 2 {
		t.Errorf("expected crawl to stop near maxPages=2, got %d pages", len(pages))
	}
}

func TestCrawlSkipsNonHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", html(`<a href="/data.json">data</a>`))
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, err := Crawl(context.Background(), testClient(), Options{
		RootURL:        srv.URL + "/",
		MaxDepth:       2,
		MaxPages:       100,
		MaxConcurrency: 4,
		Timeout:        2 * time.Second,
		FollowExternal: true,
	})
	if err != nil {
		t.Fatalf("crawl error: %v", err)
	}
	for _, p := range pages {
		if p.URL == srv.URL+"/data.json" {
			t.Error("non-HTML response should not be included in discovered set")
		}
	}
}

func TestCrawlExternalLinksExcludedByDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", html(`<a href="https://external.example/page">ext</a>`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, err := Crawl(context.Background(), testClient(), Options{
		RootURL:        srv.URL + "/",
		MaxDepth:       2,
		MaxPages:       100,
		MaxConcurrency: 4,
		Timeout:        2 * time.Second,
		FollowExternal: false,
	})
	if err != nil {
		t.Fatalf("crawl error: %v", err)
	}
	for _, p := range pages {
		if p.URL == "https://external.example/page" {
			t.Error("external link should not be followed when FollowExternal=false")
		}
	}
}

func html(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>" + body + "</body></html>"))
	}
}
