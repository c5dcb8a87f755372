package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print session history and record counts",
	Long:  "Reads the local database directly; works whether or not the daemon is running.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx := context.Background()

	total, err := a.store.CountRecords(ctx)
	if err != nil {
		return fmt.Errorf("counting records: %w", err)
	}
	stats, err := a.sessions.Stats(ctx, 100)
	if err != nil {
		return fmt.Errorf("reading session history: %w", err)
	}

	fmt.Printf("records:  %d total\n", total)
	fmt.Printf("sessions: %d total, %d completed, %d failed, %d timeout, %d skipped\n",
		stats.Total, stats.Completed, stats.Failed, stats.Timeout, stats.Skipped)
	if ran := stats.Total - stats.Skipped; ran > 0 {
		fmt.Printf("          %.0f%% success, %.1f jobs per session\n", stats.SuccessRate*100, stats.AvgJobs)
	}

	recent, err := a.sessions.Recent(ctx, 10)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(recent) > 0 {
		fmt.Printf("\n%-17s %-20s %-10s %6s %7s\n", "started", "trigger", "status", "saved", "errors")
		for _, s := range recent {
			fmt.Printf("%-17s %-20s %-10s %6d %7d\n",
				s.StartedAt.Local().Format("2006-01-02 15:04"),
				s.Trigger, s.Status, s.JobsSaved, s.Errors)
		}
	}

	report, err := a.metrics.Report(ctx, cfg.Governor.QualityLookback)
	if err == nil && report.Samples > 0 {
		fmt.Printf("\nquality (last %s): %.1f over %d samples\n",
			cfg.Governor.QualityLookback, report.Average, report.Samples)
		for site, sr := range report.PerSite {
			fmt.Printf("  %-12s parsed %d, valid %d, quality %.1f\n", site, sr.Parsed, sr.Valid, sr.Average)
		}
	}

	return nil
}
