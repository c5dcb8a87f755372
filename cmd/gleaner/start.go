package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/gleaner/internal/api"
	"github.com/kestrelworks/gleaner/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scraping daemon",
	Long:  "Start the scheduler and the admin API; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"sites", len(cfg.Sites),
		"cadence", cfg.Scheduler.Cadence,
		"scheduler_enabled", cfg.Scheduler.Enabled,
		"admin_addr", cfg.AdminAddr,
		"database", cfg.DatabasePath,
	)

	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	sched := scheduler.New(cfg.Scheduler, a.orch, a.store, a.sessions, logger)
	if err := sched.Start(); err != nil {
		logger.Error("failed to arm scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: api.NewServer(a.gov, a.metrics, a.sessions, sched, logger),
	}
	go func() {
		logger.Info("admin API listening", "addr", cfg.AdminAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin API failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin API shutdown failed", "error", err)
	}

	logger.Info("goodbye")
	return nil
}
