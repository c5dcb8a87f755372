package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kestrelworks/gleaner/internal/config"
	"github.com/kestrelworks/gleaner/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFetcher(serviceURL string) *ReaderFetcher {
	return NewReaderFetcher(config.FetchConfig{
		ServiceURL: serviceURL,
		Timeout:    5 * time.Second,
	}, discardLogger())
}

func TestFetchSuccess(t *testing.T) {
	var gotTarget string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.URL.Query().Get("url")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"html": "<div>Reading Tutor</div>", "markdown": "# Reading Tutor"}`))
	}))
	defer srv.Close()

	f := newFetcher(srv.URL)
	res, err := f.Fetch(context.Background(), "https://example.com/jobs?q=tutor")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotTarget != "https://example.com/jobs?q=tutor" {
		t.Errorf("service received url=%q", gotTarget)
	}
	if res.HTML != "<div>Reading Tutor</div>" || res.Markdown != "# Reading Tutor" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestFetchEmptyBodyIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"html": "", "markdown": ""}`))
	}))
	defer srv.Close()

	res, err := newFetcher(srv.URL).Fetch(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.HTML != "" || res.Markdown != "" {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newFetcher(srv.URL).Fetch(context.Background(), "https://example.com")
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *model.HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", httpErr.StatusCode)
	}
	if httpErr.RetryAfter != 30*time.Second {
		t.Errorf("retry after = %v, want 30s", httpErr.RetryAfter)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newFetcher(srv.URL).Fetch(context.Background(), "https://example.com")
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *model.HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", httpErr.StatusCode)
	}
	if httpErr.RetryAfter != 0 {
		t.Errorf("retry after = %v, want 0", httpErr.RetryAfter)
	}
}

func TestFetchContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newFetcher(srv.URL).Fetch(ctx, "https://example.com")
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestRetryAfterParsing(t *testing.T) {
	cases := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"60", time.Minute},
		{"0", 0},
		{"-5", 0},
		{"Wed, 21 Oct 2026 07:28:00 GMT", 0},
	}
	for _, tc := range cases {
		if got := retryAfter(tc.header); got != tc.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}
