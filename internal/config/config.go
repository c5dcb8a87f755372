package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gleaner pipeline.
type Config struct {
	AdminAddr    string
	DatabasePath string
	Fetch        FetchConfig
	Scheduler    SchedulerConfig
	Governor     GovernorConfig
	Dedup        DedupConfig
	Orchestrator OrchestratorConfig
	Sites        []SiteConfig
}

// FetchConfig controls the client for the external content-fetch service.
type FetchConfig struct {
	ServiceURL string
	Timeout    time.Duration
	Attempts   int           // total tries per fetch, first call included
	BaseDelay  time.Duration // backoff before the first retry
}

// SchedulerConfig controls the periodic trigger. Disabled by default: the
// operator must turn scraping on deliberately.
type SchedulerConfig struct {
	Enabled        bool
	Cadence        string // daily | weekly | biweekly | monthly
	TriggerAt      string // "HH:MM", local time
	SessionTimeout time.Duration
}

// GovernorConfig holds the operational-safety numbers.
type GovernorConfig struct {
	KillSwitch      bool
	MaxJobsPerSite  int // per site per session
	MaxJobsPerUser  int // accepted records per user per session
	ErrorBudget     int // max errors per session
	MinQuality      float64
	QualityLookback time.Duration
}

// DedupConfig controls the duplicate detector.
type DedupConfig struct {
	Threshold float64       // similarity above which two records are the same listing
	Window    time.Duration // corpus recency window
}

// OrchestratorConfig controls batching and self-throttling of a session.
type OrchestratorConfig struct {
	UserBatchSize      int
	BatchDelay         time.Duration
	SiteDelay          time.Duration
	SiteDelayOverrides map[string]time.Duration
}

// SiteConfig describes one scrape target. SearchURL is a template with
// {keyword} and {location} placeholders.
type SiteConfig struct {
	Name      string `yaml:"name"`
	Enabled   bool   `yaml:"enabled"`
	SearchURL string `yaml:"search_url"`
}

// rawConfig is used for YAML unmarshaling (snake_case fields, durations as
// strings).
type rawConfig struct {
	AdminAddr    string             `yaml:"admin_addr"`
	DatabasePath string             `yaml:"database_path"`
	Fetch        rawFetchConfig     `yaml:"fetch"`
	Scheduler    rawSchedulerConfig `yaml:"scheduler"`
	Governor     rawGovernorConfig  `yaml:"governor"`
	Dedup        rawDedupConfig     `yaml:"dedup"`
	Orchestrator rawOrchConfig      `yaml:"orchestrator"`
	Sites        []SiteConfig       `yaml:"sites"`
}

type rawFetchConfig struct {
	ServiceURL string `yaml:"service_url"`
	Timeout    string `yaml:"timeout"`
	Attempts   int    `yaml:"attempts"`
	BaseDelay  string `yaml:"base_delay"`
}

type rawSchedulerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Cadence        string `yaml:"cadence"`
	TriggerAt      string `yaml:"trigger_at"`
	SessionTimeout string `yaml:"session_timeout"`
}

type rawGovernorConfig struct {
	KillSwitch      bool     `yaml:"kill_switch"`
	MaxJobsPerSite  *int     `yaml:"max_jobs_per_site"`
	MaxJobsPerUser  *int     `yaml:"max_jobs_per_user"`
	ErrorBudget     *int     `yaml:"error_budget"`
	MinQuality      *float64 `yaml:"min_quality"`
	QualityLookback string   `yaml:"quality_lookback"`
}

type rawDedupConfig struct {
	Threshold *float64 `yaml:"threshold"`
	Window    string   `yaml:"window"`
}

type rawOrchConfig struct {
	UserBatchSize      int               `yaml:"user_batch_size"`
	BatchDelay         string            `yaml:"batch_delay"`
	SiteDelay          string            `yaml:"site_delay"`
	SiteDelayOverrides map[string]string `yaml:"site_delay_overrides"`
}

// Load reads and parses the YAML config file at path, applies conservative
// defaults, validates the result, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables before unmarshal.
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		AdminAddr:    raw.AdminAddr,
		DatabasePath: raw.DatabasePath,
		Sites:        raw.Sites,
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":8085"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "gleaner.db"
	}

	if cfg.Fetch, err = parseFetch(raw.Fetch); err != nil {
		return nil, err
	}
	if cfg.Scheduler, err = parseScheduler(raw.Scheduler); err != nil {
		return nil, err
	}
	if cfg.Governor, err = parseGovernor(raw.Governor); err != nil {
		return nil, err
	}
	if cfg.Dedup, err = parseDedup(raw.Dedup); err != nil {
		return nil, err
	}
	if cfg.Orchestrator, err = parseOrchestrator(raw.Orchestrator); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(value, field string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func parseFetch(raw rawFetchConfig) (FetchConfig, error) {
	timeout, err := parseDuration(raw.Timeout, "fetch.timeout", 20*time.Second)
	if err != nil {
		return FetchConfig{}, err
	}
	baseDelay, err := parseDuration(raw.BaseDelay, "fetch.base_delay", 2*time.Second)
	if err != nil {
		return FetchConfig{}, err
	}
	attempts := raw.Attempts
	if attempts == 0 {
		attempts = 3
	}
	return FetchConfig{
		ServiceURL: raw.ServiceURL,
		Timeout:    timeout,
		Attempts:   attempts,
		BaseDelay:  baseDelay,
	}, nil
}

func parseScheduler(raw rawSchedulerConfig) (SchedulerConfig, error) {
	timeout, err := parseDuration(raw.SessionTimeout, "scheduler.session_timeout", 60*time.Minute)
	if err != nil {
		return SchedulerConfig{}, err
	}
	cadence := raw.Cadence
	if cadence == "" {
		cadence = "daily"
	}
	triggerAt := raw.TriggerAt
	if triggerAt == "" {
		triggerAt = "06:00"
	}
	return SchedulerConfig{
		Enabled:        raw.Enabled,
		Cadence:        cadence,
		TriggerAt:      triggerAt,
		SessionTimeout: timeout,
	}, nil
}

func parseGovernor(raw rawGovernorConfig) (GovernorConfig, error) {
	lookback, err := parseDuration(raw.QualityLookback, "governor.quality_lookback", 24*time.Hour)
	if err != nil {
		return GovernorConfig{}, err
	}
	cfg := GovernorConfig{
		KillSwitch:      raw.KillSwitch,
		MaxJobsPerSite:  50,
		MaxJobsPerUser:  10,
		ErrorBudget:     25,
		MinQuality:      60,
		QualityLookback: lookback,
	}
	if raw.MaxJobsPerSite != nil {
		cfg.MaxJobsPerSite = *raw.MaxJobsPerSite
	}
	if raw.MaxJobsPerUser != nil {
		cfg.MaxJobsPerUser = *raw.MaxJobsPerUser
	}
	if raw.ErrorBudget != nil {
		cfg.ErrorBudget = *raw.ErrorBudget
	}
	if raw.MinQuality != nil {
		cfg.MinQuality = *raw.MinQuality
	}
	return cfg, nil
}

func parseDedup(raw rawDedupConfig) (DedupConfig, error) {
	window, err := parseDuration(raw.Window, "dedup.window", 7*24*time.Hour)
	if err != nil {
		return DedupConfig{}, err
	}
	threshold := 0.85
	if raw.Threshold != nil {
		threshold = *raw.Threshold
	}
	return DedupConfig{Threshold: threshold, Window: window}, nil
}

func parseOrchestrator(raw rawOrchConfig) (OrchestratorConfig, error) {
	batchDelay, err := parseDuration(raw.BatchDelay, "orchestrator.batch_delay", 5*time.Second)
	if err != nil {
		return OrchestratorConfig{}, err
	}
	siteDelay, err := parseDuration(raw.SiteDelay, "orchestrator.site_delay", 10*time.Second)
	if err != nil {
		return OrchestratorConfig{}, err
	}
	overrides := make(map[string]time.Duration)
	for site, v := range raw.SiteDelayOverrides {
		d, err := time.ParseDuration(v)
		if err != nil {
			return OrchestratorConfig{}, fmt.Errorf("parse orchestrator.site_delay_overrides[%q]: %w", site, err)
		}
		overrides[site] = d
	}
	batchSize := raw.UserBatchSize
	if batchSize == 0 {
		batchSize = 3
	}
	return OrchestratorConfig{
		UserBatchSize:      batchSize,
		BatchDelay:         batchDelay,
		SiteDelay:          siteDelay,
		SiteDelayOverrides: overrides,
	}, nil
}

var validCadences = map[string]bool{
	"daily":    true,
	"weekly":   true,
	"biweekly": true,
	"monthly":  true,
}

func validate(cfg *Config) error {
	if !validCadences[cfg.Scheduler.Cadence] {
		return fmt.Errorf("scheduler.cadence must be one of daily/weekly/biweekly/monthly, got %q", cfg.Scheduler.Cadence)
	}
	if err := validateTriggerAt(cfg.Scheduler.TriggerAt); err != nil {
		return err
	}
	if cfg.Scheduler.SessionTimeout < time.Minute {
		return fmt.Errorf("scheduler.session_timeout must be at least 1m, got %v", cfg.Scheduler.SessionTimeout)
	}
	if cfg.Governor.MaxJobsPerSite < 1 {
		return fmt.Errorf("governor.max_jobs_per_site must be positive, got %d", cfg.Governor.MaxJobsPerSite)
	}
	if cfg.Governor.MaxJobsPerUser < 1 {
		return fmt.Errorf("governor.max_jobs_per_user must be positive, got %d", cfg.Governor.MaxJobsPerUser)
	}
	if cfg.Governor.ErrorBudget < 1 {
		return fmt.Errorf("governor.error_budget must be positive, got %d", cfg.Governor.ErrorBudget)
	}
	if cfg.Governor.MinQuality < 0 || cfg.Governor.MinQuality > 100 {
		return fmt.Errorf("governor.min_quality must be in [0,100], got %v", cfg.Governor.MinQuality)
	}
	if cfg.Dedup.Threshold <= 0 || cfg.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0,1], got %v", cfg.Dedup.Threshold)
	}
	if cfg.Fetch.ServiceURL == "" {
		return fmt.Errorf("fetch.service_url is required")
	}
	if cfg.Fetch.Attempts < 1 {
		return fmt.Errorf("fetch.attempts must be positive, got %d", cfg.Fetch.Attempts)
	}
	if cfg.Orchestrator.UserBatchSize < 1 {
		return fmt.Errorf("orchestrator.user_batch_size must be positive, got %d", cfg.Orchestrator.UserBatchSize)
	}

	enabled := 0
	for _, s := range cfg.Sites {
		if s.Name == "" {
			return fmt.Errorf("every site needs a name")
		}
		if s.SearchURL == "" {
			return fmt.Errorf("site %q: search_url is required", s.Name)
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one site must be enabled")
	}

	return nil
}

func validateTriggerAt(v string) error {
	parts := strings.Split(v, ":")
	bad := len(parts) != 2
	if !bad {
		var h, m int
		if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			bad = true
		}
	}
	if bad {
		return fmt.Errorf("scheduler.trigger_at must be HH:MM, got %q", v)
	}
	return nil
}
