package sitemap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newWarner(t *testing.T) func(string) {
	return func(msg string) { t.Logf("warn: %s", msg) }
}

func TestParseSimpleURLSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
		<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
			<url><loc>https://a.example/page1</loc></url>
			<url><loc>https://a.example/page2</loc></url>
		</urlset>`))
	}))
	defer srv.Close()

	urls := Parse(context.Background(), http.DefaultClient, srv.URL, Settings{Timeout: 5 * time.Second}, newWarner(t))
	if len(urls) != 2 {
		t.Fatalf("got %v", urls)
	}
}

// TestRoundTripSitemapIndex exercises invariant 6: a sitemap-index whose
// children expose a known URL set, parsed with followIndex=true, yields
// exactly that set, deduplicated.
func TestRoundTripSitemapIndex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
		<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
			<sitemap><loc>http://` + r.Host + `/child1.xml</loc></sitemap>
			<sitemap><loc>http://` + r.Host + `/child2.xml</loc></sitemap>
		</sitemapindex>`))
	})
	mux.HandleFunc("/child1.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<urlset><url><loc>https://a.example/x</loc></url><url><loc>https://a.example/y</loc></url></urlset>`))
	})
	mux.HandleFunc("/child2.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<urlset><url><loc>https://a.example/y</loc></url><url><loc>https://a.example/z</loc></url></urlset>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls := Parse(context.Background(), http.DefaultClient, srv.URL+"/index.xml", Settings{Timeout: 5 * time.Second, FollowIndex: true}, newWarner(t))

	want := []string{"https://a.example/x", "https://a.example/y", "https://a.example/z"}
	if len(urls) != len(want) {
		t.Fatalf("got %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestIndexNotFollowedWhenFollowIndexFalse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<sitemapindex><sitemap><loc>http://` + r.Host + `/child.xml</loc></sitemap></sitemapindex>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls := Parse(context.Background(), http.DefaultClient, srv.URL+"/index.xml", Settings{Timeout: 5 * time.Second, FollowIndex: false}, newWarner(t))
	if len(urls) != 0 {
		t.Fatalf("expected no urls when followIndex=false, got %v", urls)
	}
}

// TestS1EmptyDiscovery exercises scenario S1: a 404 sitemap yields no
// URLs and is skipped without aborting the caller.
func TestS1EmptyDiscovery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var warned bool
	urls := Parse(context.Background(), http.DefaultClient, srv.URL+"/sitemap.xml", Settings{Timeout: 5 * time.Second}, func(string) { warned = true })
	if len(urls) != 0 {
		t.Fatalf("expected no urls, got %v", urls)
	}
	if !warned {
		t.Error("expected a warning to be recorded for the 404 sitemap")
	}
}
