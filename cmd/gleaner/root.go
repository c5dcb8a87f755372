package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/gleaner/internal/config"
	"github.com/kestrelworks/gleaner/internal/fetch"
	"github.com/kestrelworks/gleaner/internal/governor"
	"github.com/kestrelworks/gleaner/internal/metrics"
	"github.com/kestrelworks/gleaner/internal/orchestrator"
	"github.com/kestrelworks/gleaner/internal/session"
	"github.com/kestrelworks/gleaner/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "gleaner",
	Short: "Job board acquisition and curation pipeline",
	Long:  "Gleaner scrapes job boards on a schedule, sanitizes and deduplicates the listings, and curates them per user.",
	// Default to `start` so invoking the binary directly runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: GLEANER_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > GLEANER_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("GLEANER_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// app bundles the wired pipeline for the commands that run sessions.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	gov      *governor.Governor
	metrics  *metrics.Recorder
	sessions *session.Manager
	orch     *orchestrator.Orchestrator
}

// buildApp opens the store and wires every pipeline collaborator.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	rec := metrics.New(st, logger)

	enabled := make(map[string]bool, len(cfg.Sites))
	for _, site := range cfg.Sites {
		enabled[site.Name] = site.Enabled
	}
	gov := governor.New(cfg.Governor, enabled, rec, logger)

	sessions := session.NewManager(st, logger)
	fetcher := fetch.NewReaderFetcher(cfg.Fetch, logger)
	orch := orchestrator.New(*cfg, fetcher, gov, rec, sessions, st, st, logger)

	return &app{
		cfg:      cfg,
		store:    st,
		gov:      gov,
		metrics:  rec,
		sessions: sessions,
		orch:     orch,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
