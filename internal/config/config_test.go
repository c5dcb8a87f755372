package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
fetch:
  service_url: "http://localhost:3000/fetch"
sites:
  - name: indeed
    enabled: true
    search_url: "https://www.indeed.com/jobs?q={keyword}&l={location}"
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scheduler.Enabled {
		t.Error("scheduler must be disabled by default")
	}
	if cfg.Scheduler.Cadence != "daily" {
		t.Errorf("Cadence = %q, want daily", cfg.Scheduler.Cadence)
	}
	if cfg.Scheduler.SessionTimeout != 60*time.Minute {
		t.Errorf("SessionTimeout = %v, want 60m", cfg.Scheduler.SessionTimeout)
	}
	if cfg.Governor.KillSwitch {
		t.Error("kill switch must default to off")
	}
	if cfg.Governor.MaxJobsPerSite != 50 {
		t.Errorf("MaxJobsPerSite = %d, want 50", cfg.Governor.MaxJobsPerSite)
	}
	if cfg.Governor.MaxJobsPerUser != 10 {
		t.Errorf("MaxJobsPerUser = %d, want 10", cfg.Governor.MaxJobsPerUser)
	}
	if cfg.Dedup.Threshold != 0.85 {
		t.Errorf("Dedup.Threshold = %v, want 0.85", cfg.Dedup.Threshold)
	}
	if cfg.Dedup.Window != 7*24*time.Hour {
		t.Errorf("Dedup.Window = %v, want 168h", cfg.Dedup.Window)
	}
	if cfg.Fetch.Attempts != 3 {
		t.Errorf("Fetch.Attempts = %d, want 3", cfg.Fetch.Attempts)
	}
	if cfg.Orchestrator.UserBatchSize != 3 {
		t.Errorf("UserBatchSize = %d, want 3", cfg.Orchestrator.UserBatchSize)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	content := `
admin_addr: ":9000"
database_path: "test.db"
fetch:
  service_url: "http://fetcher:3000/fetch"
  timeout: 10s
  attempts: 2
  base_delay: 1s
scheduler:
  enabled: true
  cadence: biweekly
  trigger_at: "07:30"
  session_timeout: 30m
governor:
  max_jobs_per_site: 25
  max_jobs_per_user: 5
  error_budget: 10
  min_quality: 70
  quality_lookback: 12h
dedup:
  threshold: 0.9
  window: 72h
orchestrator:
  user_batch_size: 5
  batch_delay: 2s
  site_delay: 3s
  site_delay_overrides:
    indeed: 8s
sites:
  - name: indeed
    enabled: true
    search_url: "https://www.indeed.com/jobs?q={keyword}&l={location}"
  - name: ziprecruiter
    enabled: false
    search_url: "https://www.ziprecruiter.com/jobs-search?search={keyword}&location={location}"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AdminAddr != ":9000" {
		t.Errorf("AdminAddr = %q", cfg.AdminAddr)
	}
	if cfg.Scheduler.Cadence != "biweekly" || cfg.Scheduler.TriggerAt != "07:30" {
		t.Errorf("Scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Governor.MaxJobsPerSite != 25 || cfg.Governor.ErrorBudget != 10 {
		t.Errorf("Governor = %+v", cfg.Governor)
	}
	if cfg.Governor.QualityLookback != 12*time.Hour {
		t.Errorf("QualityLookback = %v, want 12h", cfg.Governor.QualityLookback)
	}
	if cfg.Dedup.Threshold != 0.9 || cfg.Dedup.Window != 72*time.Hour {
		t.Errorf("Dedup = %+v", cfg.Dedup)
	}
	if got := cfg.Orchestrator.SiteDelayOverrides["indeed"]; got != 8*time.Second {
		t.Errorf("SiteDelayOverrides[indeed] = %v, want 8s", got)
	}
	if len(cfg.Sites) != 2 || cfg.Sites[1].Enabled {
		t.Errorf("Sites = %+v", cfg.Sites)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "fetch: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "no enabled sites",
			content: `
fetch:
  service_url: "http://localhost:3000/fetch"
sites:
  - name: indeed
    enabled: false
    search_url: "https://www.indeed.com/jobs?q={keyword}"
`,
		},
		{
			name: "missing fetch service url",
			content: `
sites:
  - name: indeed
    enabled: true
    search_url: "https://www.indeed.com/jobs?q={keyword}"
`,
		},
		{
			name: "bad cadence",
			content: minimalConfig + `
scheduler:
  cadence: fortnightly
`,
		},
		{
			name: "bad trigger time",
			content: minimalConfig + `
scheduler:
  trigger_at: "25:99"
`,
		},
		{
			name: "threshold out of range",
			content: minimalConfig + `
dedup:
  threshold: 1.5
`,
		},
		{
			name: "zero error budget",
			content: minimalConfig + `
governor:
  error_budget: -1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Fatal("Load: expected validation error")
			}
		})
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("GLEANER_TEST_FETCH_URL", "http://fetcher.internal/fetch")
	content := `
fetch:
  service_url: "${GLEANER_TEST_FETCH_URL}"
sites:
  - name: indeed
    enabled: true
    search_url: "https://www.indeed.com/jobs?q={keyword}"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.ServiceURL != "http://fetcher.internal/fetch" {
		t.Errorf("ServiceURL = %q, env var not expanded", cfg.Fetch.ServiceURL)
	}
}
