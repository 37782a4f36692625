package workerpool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"webmonitor/internal/fetch"
	"webmonitor/internal/model"
)

func TestRunPreservesInputOrder(t *testing.T) {
	mux := http.NewServeMux()
	for _, p := range []string{"/a", "/b", "/c"} {
		p := p
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><title>" + p + "</title></html>"))
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls := []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}
	client := fetch.New(2*time.Second, "ua", true)
	results := Run(context.Background(), client, urls, Options{
		MaxConcurrency: 3,
		ExtractCfg:     model.ExtractionConfig{CaptureTitle: true},
	})

	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for i, u := range urls {
		if results[i].URL != u {
			t.Errorf("results[%d].URL = %q, want %q", i, results[i].URL, u)
		}
	}
}

func TestRunEmitsZeroValuedResultOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := fetch.New(2*time.Second, "ua", true)
	results := Run(context.Background(), client, []string{srv.URL}, Options{MaxConcurrency: 1})

	if results[0].Status != http.StatusInternalServerError {
		t.Errorf("status = %d", results[0].Status)
	}
	if results[0].Extracted.Title != "" {
		t.Errorf("expected zero-valued extraction, got %+v", results[0].Extracted)
	}
}

func TestRunRespectsMaxConcurrency(t *testing.T) {
	var inFlight int32
	var maxSeen int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = srv.URL
	}

	client := fetch.New(2*time.Second, "ua", true)
	Run(context.Background(), client, urls, Options{MaxConcurrency: 2})

	if atomic.LoadInt32(&maxSeen) > 2 {
		t.Errorf("observed %d concurrent requests, want <= 2", maxSeen)
	}
}

func TestTickerPacerSpacesRequests(t *testing.T) {
	p := &tickerPacer{interval: 30 * time.Millisecond}
	ctx := context.Background()

	start := time.Now()
	p.Wait(ctx)
	p.Wait(ctx)
	elapsed := time.Since(start)
	if elapsed < 25*time.Millisecond {
		t.Errorf("expected pacing to introduce a delay, elapsed %v", elapsed)
	}
}
