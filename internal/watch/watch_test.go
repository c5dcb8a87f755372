package watch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
)

func newAdminStub(t *testing.T, healthStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(healthStatus)
		w.Write([]byte(`{"status": "critical", "kill_switch": true, "kill_reason": "operator stop",
			"error_count": 3, "error_budget": 25, "rolling_quality": 71.5, "quality_samples": 4}`))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"current_session": {"id": "s1", "trigger": "manual", "status": "running",
				"started_at": "2026-03-20T06:00:00Z", "users_processed": 2,
				"jobs_saved": 5, "jobs_skipped": 1, "errors": 0,
				"site_counts": {"indeed": 5}},
			"stats": {"Total": 3},
			"recent": [{"id": "s0", "trigger": "scheduled:biweekly", "status": "completed",
				"started_at": "2026-03-06T06:00:00Z", "jobs_saved": 8, "errors": 1}]
		}`))
	})
	mux.HandleFunc("/quality", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"window": "24h0m0s", "average_quality": 80, "samples": 2,
			"per_site": {"indeed": {"parsed": 12, "valid": 10, "average_quality": 80,
				"top_errors": ["company: missing"]}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetch(t *testing.T) {
	srv := newAdminStub(t, http.StatusOK)
	c := NewClient(srv.URL)

	snap, err := c.fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if snap.Health.ErrorBudget != 25 || snap.Health.RollingQuality != 71.5 {
		t.Errorf("health = %+v", snap.Health)
	}
	if snap.Status.Current == nil || snap.Status.Current.JobsSaved != 5 {
		t.Errorf("status = %+v", snap.Status)
	}
	if len(snap.Status.Recent) != 1 || snap.Status.Recent[0].Trigger != "scheduled:biweekly" {
		t.Errorf("recent = %+v", snap.Status.Recent)
	}
	if snap.Quality.PerSite["indeed"].Parsed != 12 {
		t.Errorf("quality = %+v", snap.Quality)
	}
}

func TestClientFetchDecodesCriticalHealth(t *testing.T) {
	// /health intentionally answers 503 when the governor is critical; the
	// dashboard still needs the payload.
	srv := newAdminStub(t, http.StatusServiceUnavailable)
	c := NewClient(srv.URL)

	snap, err := c.fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !snap.Health.KillSwitch || snap.Health.KillReason != "operator stop" {
		t.Errorf("health = %+v", snap.Health)
	}
}

func TestRenderBody(t *testing.T) {
	srv := newAdminStub(t, http.StatusServiceUnavailable)
	c := NewClient(srv.URL)
	snap, err := c.fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	snap.At = time.Now()

	m := watchModel{client: c, viewport: viewport.New(100, 40), snap: snap, ready: true}
	body := m.renderBody()

	for _, want := range []string{
		"CRITICAL",
		"operator stop",
		"3 / 25",
		"scheduled:biweekly",
		"indeed",
		"company: missing",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard body missing %q", want)
		}
	}
}

func TestRenderBodyEmpty(t *testing.T) {
	m := watchModel{viewport: viewport.New(80, 24), ready: true}
	body := m.renderBody()
	if !strings.Contains(body, "none yet") || !strings.Contains(body, "no history") {
		t.Error("empty dashboard should name the missing sections")
	}
}
