package governor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kestrelworks/gleaner/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubQuality struct {
	avg   float64
	n     int
	err   error
	calls int
}

func (s *stubQuality) RollingAverage(ctx context.Context, lookback time.Duration) (float64, int, error) {
	s.calls++
	return s.avg, s.n, s.err
}

func testConfig() config.GovernorConfig {
	return config.GovernorConfig{
		MaxJobsPerSite:  50,
		MaxJobsPerUser:  10,
		ErrorBudget:     25,
		MinQuality:      60,
		QualityLookback: 24 * time.Hour,
	}
}

func TestAuthorizeAllowsWhenHealthy(t *testing.T) {
	g := New(testConfig(), map[string]bool{"indeed": true}, &stubQuality{avg: 85, n: 12}, discardLogger())

	d := g.Authorize(context.Background())
	if !d.Allowed {
		t.Fatalf("expected allowed, got refusal: %s", d.Reason)
	}
}

func TestAuthorizeKillSwitchDominates(t *testing.T) {
	// Even with perfect quality and a fresh budget, the kill switch wins.
	g := New(testConfig(), nil, &stubQuality{avg: 100, n: 5}, discardLogger())
	g.EmergencyStop("site complained")

	d := g.Authorize(context.Background())
	if d.Allowed {
		t.Fatal("expected refusal with kill switch on")
	}
	if len(d.Hints) == 0 {
		t.Error("expected remediation hints on refusal")
	}

	g.Resume("issue resolved")
	if d := g.Authorize(context.Background()); !d.Allowed {
		t.Fatalf("expected allowed after resume, got: %s", d.Reason)
	}
}

func TestAuthorizeQualityGate(t *testing.T) {
	g := New(testConfig(), nil, &stubQuality{avg: 45, n: 8}, discardLogger())

	if d := g.Authorize(context.Background()); d.Allowed {
		t.Fatal("expected refusal with rolling quality 45 below threshold 60")
	}
}

func TestAuthorizeNoSamplesPasses(t *testing.T) {
	// Cold start: no history must not block scraping.
	g := New(testConfig(), nil, &stubQuality{avg: 0, n: 0}, discardLogger())

	if d := g.Authorize(context.Background()); !d.Allowed {
		t.Fatalf("expected allowed with empty history, got: %s", d.Reason)
	}
}

func TestAuthorizeQualityErrorPasses(t *testing.T) {
	g := New(testConfig(), nil, &stubQuality{err: errors.New("db locked")}, discardLogger())

	if d := g.Authorize(context.Background()); !d.Allowed {
		t.Fatalf("expected allowed when quality history is unreadable, got: %s", d.Reason)
	}
}

func TestRollingAverageCachedPerSession(t *testing.T) {
	q := &stubQuality{avg: 90, n: 4}
	g := New(testConfig(), nil, q, discardLogger())
	g.BeginSession()

	g.Authorize(context.Background())
	g.Authorize(context.Background())
	g.Authorize(context.Background())
	if q.calls != 1 {
		t.Fatalf("expected single quality query per session, got %d", q.calls)
	}

	g.BeginSession()
	g.Authorize(context.Background())
	if q.calls != 2 {
		t.Fatalf("expected fresh quality query after new session, got %d calls", q.calls)
	}
}

func TestErrorBudget(t *testing.T) {
	cfg := testConfig()
	cfg.ErrorBudget = 3
	g := New(cfg, nil, &stubQuality{}, discardLogger())

	g.RecordError(errors.New("timeout"))
	g.RecordError(errors.New("timeout"))
	if d := g.Authorize(context.Background()); !d.Allowed {
		t.Fatalf("expected allowed at 2/3 errors, got: %s", d.Reason)
	}

	g.RecordError(errors.New("timeout"))
	if d := g.Authorize(context.Background()); d.Allowed {
		t.Fatal("expected refusal at 3/3 errors")
	}

	// A new session resets the count.
	g.BeginSession()
	if d := g.Authorize(context.Background()); !d.Allowed {
		t.Fatalf("expected allowed after session reset, got: %s", d.Reason)
	}
}

func TestAuthorizeSiteQuotaBoundary(t *testing.T) {
	g := New(testConfig(), map[string]bool{"indeed": true}, &stubQuality{}, discardLogger())

	g.ClaimSite("indeed", 49)
	d := g.AuthorizeSite("indeed")
	if !d.Allowed {
		t.Fatalf("expected allowed at 49/50, got: %s", d.Reason)
	}
	if d.Remaining != 1 {
		t.Errorf("remaining = %d, want 1", d.Remaining)
	}

	g.ClaimSite("indeed", 1)
	d = g.AuthorizeSite("indeed")
	if d.Allowed {
		t.Fatal("expected refusal at 50/50")
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
}

func TestClaimSiteClipsAtQuota(t *testing.T) {
	cfg := testConfig()
	cfg.MaxJobsPerSite = 5
	g := New(cfg, map[string]bool{"indeed": true}, &stubQuality{}, discardLogger())

	if got := g.ClaimSite("indeed", 3); got != 3 {
		t.Fatalf("first claim = %d, want 3", got)
	}
	if got := g.ClaimSite("indeed", 3); got != 2 {
		t.Fatalf("second claim = %d, want 2 (clipped at quota)", got)
	}
	if got := g.ClaimSite("indeed", 1); got != 0 {
		t.Fatalf("claim on spent quota = %d, want 0", got)
	}

	g.ReleaseSite("indeed", 1)
	if got := g.ClaimSite("indeed", 1); got != 1 {
		t.Fatalf("claim after release = %d, want 1", got)
	}
}

func TestClaimSiteDisabled(t *testing.T) {
	g := New(testConfig(), map[string]bool{"indeed": false}, &stubQuality{}, discardLogger())

	if got := g.ClaimSite("indeed", 1); got != 0 {
		t.Fatalf("claim on disabled site = %d, want 0", got)
	}
}

func TestClaimSiteConcurrent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxJobsPerSite = 3
	g := New(cfg, map[string]bool{"indeed": true}, &stubQuality{}, discardLogger())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := g.ClaimSite("indeed", 1)
			mu.Lock()
			granted += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if granted != 3 {
		t.Fatalf("granted = %d across concurrent claims, want exactly 3", granted)
	}
}

func TestAuthorizeSiteQuotaIsPerSite(t *testing.T) {
	g := New(testConfig(), map[string]bool{"indeed": true, "ziprecruiter": true}, &stubQuality{}, discardLogger())

	g.ClaimSite("indeed", 50)
	if d := g.AuthorizeSite("ziprecruiter"); !d.Allowed || d.Remaining != 50 {
		t.Fatalf("other site should be unaffected: allowed=%v remaining=%d", d.Allowed, d.Remaining)
	}
}

func TestAuthorizeSiteDisabled(t *testing.T) {
	g := New(testConfig(), map[string]bool{"indeed": false}, &stubQuality{}, discardLogger())

	if d := g.AuthorizeSite("indeed"); d.Allowed {
		t.Fatal("expected refusal for disabled site")
	}

	g.SetSiteEnabled("indeed", true)
	if d := g.AuthorizeSite("indeed"); !d.Allowed {
		t.Fatalf("expected allowed after enabling, got: %s", d.Reason)
	}
}

func TestHealthTransitions(t *testing.T) {
	cfg := testConfig()
	cfg.ErrorBudget = 10
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		g := New(cfg, map[string]bool{"indeed": true}, &stubQuality{avg: 80, n: 3}, discardLogger())
		if h := g.Health(ctx); h.Status != Healthy {
			t.Errorf("status = %s, want healthy", h.Status)
		}
	})

	t.Run("warning at 80 percent of budget", func(t *testing.T) {
		g := New(cfg, nil, &stubQuality{avg: 80, n: 3}, discardLogger())
		for i := 0; i < 8; i++ {
			g.RecordError(errors.New("x"))
		}
		if h := g.Health(ctx); h.Status != Warning {
			t.Errorf("status = %s, want warning at 8/10 errors", h.Status)
		}
	})

	t.Run("warning with disabled site", func(t *testing.T) {
		g := New(cfg, map[string]bool{"indeed": false}, &stubQuality{avg: 80, n: 3}, discardLogger())
		h := g.Health(ctx)
		if h.Status != Warning {
			t.Errorf("status = %s, want warning", h.Status)
		}
		if len(h.DisabledSites) != 1 || h.DisabledSites[0] != "indeed" {
			t.Errorf("disabled sites = %v, want [indeed]", h.DisabledSites)
		}
	})

	t.Run("critical on kill switch", func(t *testing.T) {
		g := New(cfg, nil, &stubQuality{avg: 80, n: 3}, discardLogger())
		g.EmergencyStop("manual")
		if h := g.Health(ctx); h.Status != Critical {
			t.Errorf("status = %s, want critical", h.Status)
		}
	})

	t.Run("critical on spent budget", func(t *testing.T) {
		g := New(cfg, nil, &stubQuality{avg: 80, n: 3}, discardLogger())
		for i := 0; i < 10; i++ {
			g.RecordError(errors.New("x"))
		}
		if h := g.Health(ctx); h.Status != Critical {
			t.Errorf("status = %s, want critical at 10/10 errors", h.Status)
		}
	})
}

func TestUpdateConfig(t *testing.T) {
	g := New(testConfig(), map[string]bool{"indeed": true}, &stubQuality{}, discardLogger())

	cfg := g.Config()
	cfg.MaxJobsPerSite = 5
	g.UpdateConfig(cfg)

	g.ClaimSite("indeed", 5)
	if d := g.AuthorizeSite("indeed"); d.Allowed {
		t.Fatal("expected refusal against updated quota of 5")
	}
}
