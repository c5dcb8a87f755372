// Package governor is the process-wide gate deciding whether scraping may
// proceed at all: a kill switch, per-site quotas and enable flags, an error
// budget, and a rolling quality-threshold check over recent sessions.
package governor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kestrelworks/gleaner/internal/config"
)

// QualityWindow supplies the rolling quality average the governor gates on.
type QualityWindow interface {
	RollingAverage(ctx context.Context, lookback time.Duration) (float64, int, error)
}

// Decision is a session-level go/no-go with operator-facing context.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reason  string   `json:"reason,omitempty"`
	Hints   []string `json:"hints,omitempty"`
}

// SiteDecision is a per-site go/no-go with the remaining quota.
type SiteDecision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
}

// HealthStatus is the coarse operational state.
type HealthStatus string

const (
	Healthy  HealthStatus = "healthy"
	Warning  HealthStatus = "warning"
	Critical HealthStatus = "critical"
)

// Health is the operator-facing summary.
type Health struct {
	Status         HealthStatus `json:"status"`
	KillSwitch     bool         `json:"kill_switch"`
	KillReason     string       `json:"kill_reason,omitempty"`
	DisabledSites  []string     `json:"disabled_sites,omitempty"`
	RollingQuality float64      `json:"rolling_quality"`
	QualitySamples int          `json:"quality_samples"`
	ErrorCount     int          `json:"error_count"`
	ErrorBudget    int          `json:"error_budget"`
}

// Governor holds the mutable safety state. All methods are safe for
// concurrent use by user batches within a session.
type Governor struct {
	mu sync.Mutex

	cfg        config.GovernorConfig
	killSwitch bool
	killReason string

	siteEnabled map[string]bool
	siteScraped map[string]int // per-session counters
	errorCount  int

	// Rolling average is computed once per session and cached; quality does
	// not flap mid-session.
	cachedAvg     *float64
	cachedSamples int

	quality QualityWindow
	logger  *slog.Logger
}

// New creates a Governor. enabledSites seeds the per-site flags.
func New(cfg config.GovernorConfig, enabledSites map[string]bool, quality QualityWindow, logger *slog.Logger) *Governor {
	sites := make(map[string]bool, len(enabledSites))
	for name, on := range enabledSites {
		sites[name] = on
	}
	return &Governor{
		cfg:         cfg,
		killSwitch:  cfg.KillSwitch,
		siteEnabled: sites,
		siteScraped: make(map[string]int),
		quality:     quality,
		logger:      logger,
	}
}

// BeginSession resets the per-session counters and the cached quality
// average. Called by the session manager when a new session starts.
func (g *Governor) BeginSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.siteScraped = make(map[string]int)
	g.errorCount = 0
	g.cachedAvg = nil
	g.cachedSamples = 0
}

// Authorize decides whether a session may start or continue. It refuses when
// the kill switch is on, the rolling quality is below the threshold, or the
// error budget is spent. Each refusal carries remediation hints.
func (g *Governor) Authorize(ctx context.Context) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.killSwitch {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("kill switch active: %s", g.killReason),
			Hints:   []string{"resume via POST /governor/resume once the underlying issue is resolved"},
		}
	}

	avg, n := g.rollingQualityLocked(ctx)
	if n > 0 && avg < g.cfg.MinQuality {
		return Decision{
			Allowed: false,
			Reason: fmt.Sprintf("rolling quality %.1f below threshold %.1f over last %s (%d samples)",
				avg, g.cfg.MinQuality, g.cfg.QualityLookback, n),
			Hints: []string{
				"inspect GET /quality for the failing sites and error reasons",
				"site markup may have changed; check extractor selectors",
			},
		}
	}

	if g.errorCount >= g.cfg.ErrorBudget {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("error budget exhausted: %d/%d", g.errorCount, g.cfg.ErrorBudget),
			Hints:   []string{"the session should wind down; review site errors before the next run"},
		}
	}

	return Decision{Allowed: true}
}

// rollingQualityLocked computes the windowed average once per session.
// Callers hold g.mu.
func (g *Governor) rollingQualityLocked(ctx context.Context) (float64, int) {
	if g.cachedAvg != nil {
		return *g.cachedAvg, g.cachedSamples
	}
	avg, n, err := g.quality.RollingAverage(ctx, g.cfg.QualityLookback)
	if err != nil {
		// Quality history being unreadable should not block scraping on its
		// own; log and treat as no data.
		g.logger.Warn("rolling quality unavailable", "error", err)
		avg, n = 0, 0
	}
	g.cachedAvg = &avg
	g.cachedSamples = n
	return avg, n
}

// AuthorizeSite decides whether one more fetch against a site is worthwhile
// and reports the remaining quota. It is advisory: concurrent callers see
// the same remainder, so persistence must reserve through ClaimSite.
func (g *Governor) AuthorizeSite(site string) SiteDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if enabled, known := g.siteEnabled[site]; known && !enabled {
		return SiteDecision{Allowed: false, Reason: fmt.Sprintf("site %q is disabled", site)}
	}

	remaining := g.cfg.MaxJobsPerSite - g.siteScraped[site]
	if remaining <= 0 {
		return SiteDecision{
			Allowed:   false,
			Reason:    fmt.Sprintf("site %q quota exhausted (%d this session)", site, g.siteScraped[site]),
			Remaining: 0,
		}
	}

	return SiteDecision{Allowed: true, Remaining: remaining}
}

// ClaimSite atomically reserves up to n units of a site's session quota and
// returns how many were granted. Zero means the site is disabled or the
// quota is spent. A claim whose persist fails should be returned with
// ReleaseSite.
func (g *Governor) ClaimSite(site string, n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if enabled, known := g.siteEnabled[site]; known && !enabled {
		return 0
	}
	remaining := g.cfg.MaxJobsPerSite - g.siteScraped[site]
	if remaining <= 0 {
		return 0
	}
	if n > remaining {
		n = remaining
	}
	g.siteScraped[site] += n
	return n
}

// ReleaseSite returns n unused units to a site's quota.
func (g *Governor) ReleaseSite(site string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.siteScraped[site] -= n
	if g.siteScraped[site] < 0 {
		g.siteScraped[site] = 0
	}
}

// RecordError bumps the session error count. Crossing the budget is logged
// as fatal but does not abort in-flight work; the next Authorize refuses.
func (g *Governor) RecordError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errorCount++
	if g.errorCount == g.cfg.ErrorBudget {
		g.logger.Error("session error budget exhausted, next authorization will refuse",
			"errors", g.errorCount,
			"budget", g.cfg.ErrorBudget,
			"last_error", err,
		)
	}
}

// EmergencyStop flips the kill switch on. Operator action, independent of
// the automatic checks.
func (g *Governor) EmergencyStop(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killSwitch = true
	g.killReason = reason
	g.logger.Error("emergency stop engaged", "reason", reason)
}

// Resume clears the kill switch.
func (g *Governor) Resume(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killSwitch = false
	g.killReason = ""
	g.logger.Info("scraping resumed", "reason", reason)
}

// SetSiteEnabled flips one site's enable flag.
func (g *Governor) SetSiteEnabled(site string, enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.siteEnabled[site] = enabled
}

// UpdateConfig replaces the numeric limits at runtime (admin surface).
func (g *Governor) UpdateConfig(cfg config.GovernorConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

// Config returns a copy of the current limits.
func (g *Governor) Config() config.GovernorConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Health derives the coarse status: critical when the kill switch is on or
// the budget is spent, warning when errors reach 80% of budget, any site is
// disabled, or quality sits below threshold.
func (g *Governor) Health(ctx context.Context) Health {
	g.mu.Lock()
	defer g.mu.Unlock()

	avg, n := g.rollingQualityLocked(ctx)

	var disabled []string
	for site, enabled := range g.siteEnabled {
		if !enabled {
			disabled = append(disabled, site)
		}
	}

	h := Health{
		Status:         Healthy,
		KillSwitch:     g.killSwitch,
		KillReason:     g.killReason,
		DisabledSites:  disabled,
		RollingQuality: avg,
		QualitySamples: n,
		ErrorCount:     g.errorCount,
		ErrorBudget:    g.cfg.ErrorBudget,
	}

	switch {
	case g.killSwitch || g.errorCount >= g.cfg.ErrorBudget:
		h.Status = Critical
	case g.errorCount*5 >= g.cfg.ErrorBudget*4, // >= 80% of budget
		len(disabled) > 0,
		n > 0 && avg < g.cfg.MinQuality:
		h.Status = Warning
	}

	return h
}
