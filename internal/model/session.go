package model

import (
	"context"
	"time"
)

// SessionStatus is the lifecycle state of one scrape session. Exactly one
// session may be running at a time; a session reaches a terminal state once
// and is immutable afterwards except for status reads.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionTimeout   SessionStatus = "timeout"
	SessionSkipped   SessionStatus = "skipped"
)

// Terminal reports whether the status is an end state.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionTimeout || s == SessionSkipped
}

// Session is one end-to-end run of the orchestrator, from trigger to
// terminal state.
type Session struct {
	ID        string
	Trigger   string // "scheduled:<cadence>" or "manual"
	Status    SessionStatus
	StartedAt time.Time
	EndedAt   *time.Time

	SiteCounts     map[string]int // records accepted per site
	UsersProcessed int
	JobsSaved      int
	JobsSkipped    int // accepted but over the per-user cap
	Errors         int
	Reason         string // populated for skipped/failed/timeout
}

// SessionStats are cumulative scheduler statistics across sessions.
type SessionStats struct {
	Total       int
	Completed   int
	Failed      int
	Timeout     int
	Skipped     int
	JobsSaved   int
	SuccessRate float64 // completed / (total - skipped)
	AvgJobs     float64 // jobs saved per non-skipped session
}

// QualitySample is one append-only quality measurement for a site within a
// session. The governor reads these back as a sliding window to decide
// whether scraping may proceed at all.
type QualitySample struct {
	SessionID string
	Site      string
	At        time.Time
	Parsed    int // fragments extracted
	Valid     int // records that passed sanitization
	Quality   int // average quality score of the batch, 0–100
	TopErrors []string
}

// SampleStore persists quality samples and serves windowed aggregates.
type SampleStore interface {
	AddSample(ctx context.Context, s QualitySample) error
	// AverageQualitySince returns the mean quality of samples at or after the
	// cutoff and the number of samples considered.
	AverageQualitySince(ctx context.Context, cutoff time.Time) (float64, int, error)
	ListSamplesSince(ctx context.Context, cutoff time.Time) ([]QualitySample, error)
}

// SessionStore persists session outcomes for status queries and statistics.
type SessionStore interface {
	SaveSession(ctx context.Context, s Session) error
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	// LastCompleted returns the most recent completed session for the given
	// trigger, or nil when none exists. It searches the full history, not a
	// recency window.
	LastCompleted(ctx context.Context, trigger string) (*Session, error)
}
