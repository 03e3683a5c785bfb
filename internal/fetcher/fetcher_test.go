package fetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docufind/mcp-server/internal/fetcher"
	"github.com/docufind/mcp-server/internal/ragerrors"
)

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Sec-Fetch-Mode") != "navigate" {
			t.Errorf("missing Sec-Fetch-Mode header")
		}
		if r.Header.Get("Upgrade-Insecure-Requests") != "1" {
			t.Errorf("missing Upgrade-Insecure-Requests header")
		}
		w.Write([]byte(`<html><body><a href="/docs/page2">Next</a><a href="https://other.example/x">External</a></body></html>`))
	}))
	defer srv.Close()

	f := fetcher.New(time.Millisecond, "/docs")
	result, err := f.Fetch(context.Background(), srv.URL+"/docs/page1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if result.Status != 200 {
		t.Errorf("Status = %d, want 200", result.Status)
	}
	if len(result.DiscoveredURLs) != 1 {
		t.Fatalf("DiscoveredURLs = %v, want exactly one same-origin in-path link", result.DiscoveredURLs)
	}
	if !strings.Contains(result.DiscoveredURLs[0], "/docs/page2") {
		t.Errorf("DiscoveredURLs[0] = %q, want to contain /docs/page2", result.DiscoveredURLs[0])
	}
}

func TestFetch_PermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := fetcher.New(time.Millisecond, "")
	_, err := f.Fetch(context.Background(), srv.URL)

	if !ragerrors.Is(err, ragerrors.KindPermanent) {
		t.Fatalf("expected KindPermanent, got %v", err)
	}
	if ragerrors.Retryable(err) {
		t.Error("permanent failures should not be retryable")
	}
}

func TestFetch_TransientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := fetcher.New(time.Millisecond, "")
	_, err := f.Fetch(context.Background(), srv.URL)

	if !ragerrors.Is(err, ragerrors.KindTransient) {
		t.Fatalf("expected KindTransient, got %v", err)
	}
	if !ragerrors.Retryable(err) {
		t.Error("5xx failures should be retryable")
	}
}

func TestFetch_BlockedChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Please complete the captcha to continue."))
	}))
	defer srv.Close()

	f := fetcher.New(time.Millisecond, "")
	_, err := f.Fetch(context.Background(), srv.URL)

	if !ragerrors.Is(err, ragerrors.KindBlocked) {
		t.Fatalf("expected KindBlocked, got %v", err)
	}
	if !ragerrors.Retryable(err) {
		t.Error("blocked failures should be retryable (treated as transient)")
	}
}

func TestFetch_DiscoveryDeduplicatesAndCanonicalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/docs/a">A</a>
			<a href="/docs/a#section">A again with fragment</a>
			<a href="/docs/a">A a third time</a>
		</body></html>`))
	}))
	defer srv.Close()

	f := fetcher.New(time.Millisecond, "/docs")
	result, err := f.Fetch(context.Background(), srv.URL+"/docs/")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(result.DiscoveredURLs) != 1 {
		t.Fatalf("DiscoveredURLs = %v, want deduplication to one entry", result.DiscoveredURLs)
	}
}
