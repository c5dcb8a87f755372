package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape session now",
	Long:  "One-shot session: runs the full pipeline once with the manual trigger, prints the outcome, exits. The cadence gate does not apply; the governor does.",
	RunE:  runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithTimeout(ctx, cfg.Scheduler.SessionTimeout)
	defer cancel()

	a.orch.Run(runCtx, "manual")

	sess := a.sessions.Current()
	if sess == nil {
		logger.Error("session never started")
		os.Exit(1)
	}

	fmt.Printf("session %s: %s\n", sess.ID, sess.Status)
	if sess.Reason != "" {
		fmt.Printf("  reason:  %s\n", sess.Reason)
	}
	fmt.Printf("  users:   %d\n", sess.UsersProcessed)
	fmt.Printf("  saved:   %d (skipped %d, errors %d)\n", sess.JobsSaved, sess.JobsSkipped, sess.Errors)
	for site, n := range sess.SiteCounts {
		fmt.Printf("  %-8s %d\n", site, n)
	}
	return nil
}
