// Package scheduler fires scrape sessions on a configured cadence. Biweekly
// has no cron expression, so it runs on the weekly schedule with a minimum
// interval gate against the last successful completion.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kestrelworks/gleaner/internal/config"
	"github.com/kestrelworks/gleaner/internal/model"
)

// SessionRunner executes one full scrape session. The context carries the
// session deadline; when it expires the runner must stop and record the
// timeout outcome itself.
type SessionRunner interface {
	Run(ctx context.Context, trigger string)
}

// SkipRecorder persists sessions that never ran.
type SkipRecorder interface {
	RecordSkipped(ctx context.Context, trigger, reason string)
}

// Cadences without a clean cron expression ride a denser cron grid and are
// gated on the minimum interval since that cadence's own last successful
// completion.
var minInterval = map[string]time.Duration{
	"biweekly": 14 * 24 * time.Hour,
	"monthly":  30 * 24 * time.Hour,
}

// Scheduler owns the cron loop and the cadence gate.
type Scheduler struct {
	cfg      config.SchedulerConfig
	runner   SessionRunner
	sessions model.SessionStore
	skips    SkipRecorder
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Scheduler. Call Start to arm it.
func New(cfg config.SchedulerConfig, runner SessionRunner, sessions model.SessionStore, skips SkipRecorder, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		sessions: sessions,
		skips:    skips,
		cron:     cron.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Start arms the cron loop. When scheduling is disabled in config this is a
// no-op and sessions only run via manual trigger.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled, sessions run on manual trigger only")
		return nil
	}

	spec, err := cronSpec(s.cfg.Cadence, s.cfg.TriggerAt)
	if err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(spec, s.fire); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler armed",
		"cadence", s.cfg.Cadence,
		"trigger_at", s.cfg.TriggerAt,
		"cron", spec,
	)
	return nil
}

// Stop halts the cron loop and waits for an in-flight fire to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// TriggerManual runs a session immediately, bypassing the cadence gate. The
// session timeout still applies.
func (s *Scheduler) TriggerManual(ctx context.Context) {
	s.runWithTimeout(ctx, "manual")
}

// fire is the cron callback for the scheduled cadence.
func (s *Scheduler) fire() {
	ctx := context.Background()
	trigger := "scheduled:" + s.cfg.Cadence

	if due, reason := s.due(ctx); !due {
		s.skips.RecordSkipped(ctx, trigger, reason)
		return
	}
	s.runWithTimeout(ctx, trigger)
}

func (s *Scheduler) runWithTimeout(ctx context.Context, trigger string) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.SessionTimeout)
	defer cancel()
	s.runner.Run(runCtx, trigger)
}

// due applies the minimum-interval gate for gated cadences. Unreadable
// history counts as due so a broken store cannot silently stop scraping
// forever.
func (s *Scheduler) due(ctx context.Context) (bool, string) {
	interval, gated := minInterval[s.cfg.Cadence]
	if !gated {
		return true, ""
	}

	last, ok, err := s.lastCompletion(ctx)
	if err != nil {
		s.logger.Warn("session history unavailable, treating run as due", "error", err)
		return true, ""
	}
	if !ok {
		return true, ""
	}

	elapsed := s.now().Sub(last)
	if elapsed < interval {
		return false, fmt.Sprintf("interval not met: %s since last completion, need %s",
			elapsed.Round(time.Hour), interval)
	}
	return true, ""
}

// lastCompletion finds the most recent successfully completed session for
// this cadence. Manual runs and other cadences do not move the anchor, and
// the store searches the full history so skip rows cannot bury the anchor.
func (s *Scheduler) lastCompletion(ctx context.Context) (time.Time, bool, error) {
	sess, err := s.sessions.LastCompleted(ctx, "scheduled:"+s.cfg.Cadence)
	if err != nil {
		return time.Time{}, false, err
	}
	if sess == nil || sess.EndedAt == nil {
		return time.Time{}, false, nil
	}
	return *sess.EndedAt, true, nil
}

// cronSpec translates a cadence plus "HH:MM" into a five-field cron
// expression. Biweekly rides the weekly grid and monthly the daily grid;
// due applies the real interval.
func cronSpec(cadence, triggerAt string) (string, error) {
	var h, m int
	if _, err := fmt.Sscanf(triggerAt, "%d:%d", &h, &m); err != nil {
		return "", fmt.Errorf("parse trigger_at %q: %w", triggerAt, err)
	}
	switch cadence {
	case "daily", "monthly":
		return fmt.Sprintf("%d %d * * *", m, h), nil
	case "weekly", "biweekly":
		return fmt.Sprintf("%d %d * * 1", m, h), nil
	default:
		return "", fmt.Errorf("unknown cadence %q", cadence)
	}
}
