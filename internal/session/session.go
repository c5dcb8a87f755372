// Package session enforces the one-session-at-a-time rule and tracks the
// lifecycle of each scrape run from trigger to terminal state.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/gleaner/internal/model"
)

// Manager owns the singleton running session. Begin hands out the current
// session when one is already in flight instead of starting a second one.
type Manager struct {
	mu      sync.Mutex
	current *model.Session
	cancel  context.CancelFunc

	store  model.SessionStore
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager persisting outcomes to store.
func NewManager(store model.SessionStore, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger, now: time.Now}
}

// Begin starts a new session for the given trigger, or returns the session
// already in flight. started is false when an existing session was returned.
// The returned context is cancelled when the session reaches a terminal
// state, so timeouts stop in-flight work rather than orphaning it.
func (m *Manager) Begin(ctx context.Context, trigger string) (*model.Session, context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.Status.Terminal() {
		m.logger.Warn("session already running, refusing to start another",
			"running_id", m.current.ID,
			"trigger", trigger,
		)
		return m.current, nil, false
	}

	s := &model.Session{
		ID:         uuid.NewString(),
		Trigger:    trigger,
		Status:     model.SessionRunning,
		StartedAt:  m.now(),
		SiteCounts: make(map[string]int),
	}
	sessCtx, cancel := context.WithCancel(ctx)
	m.current = s
	m.cancel = cancel

	m.logger.Info("session started", "session_id", s.ID, "trigger", trigger)
	return s, sessCtx, true
}

// Current returns the most recent session, running or terminal.
func (m *Manager) Current() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// Finish moves the running session to a terminal state, cancels its context,
// and persists the outcome. Later calls for an already-terminal session are
// ignored; the first terminal transition wins.
func (m *Manager) Finish(ctx context.Context, id string, status model.SessionStatus, reason string) {
	m.mu.Lock()
	if m.current == nil || m.current.ID != id || m.current.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	ended := m.now()
	m.current.Status = status
	m.current.EndedAt = &ended
	m.current.Reason = reason
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	done := *m.current
	m.mu.Unlock()

	m.logger.Info("session finished",
		"session_id", done.ID,
		"status", done.Status,
		"jobs_saved", done.JobsSaved,
		"jobs_skipped", done.JobsSkipped,
		"errors", done.Errors,
		"duration", ended.Sub(done.StartedAt).Round(time.Second),
	)

	if err := m.store.SaveSession(ctx, done); err != nil {
		m.logger.Error("failed to persist session outcome", "session_id", done.ID, "error", err)
	}
}

// RecordSkipped persists a session that never ran (cadence not due, governor
// refusal, another session in flight).
func (m *Manager) RecordSkipped(ctx context.Context, trigger, reason string) {
	s := model.Session{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    model.SessionSkipped,
		StartedAt: m.now(),
		Reason:    reason,
	}
	ended := s.StartedAt
	s.EndedAt = &ended

	m.logger.Info("session skipped", "trigger", trigger, "reason", reason)
	if err := m.store.SaveSession(ctx, s); err != nil {
		m.logger.Error("failed to persist skipped session", "error", err)
	}
}

// Update applies fn to the running session under the lock. Used by the
// orchestrator to bump counters as work completes.
func (m *Manager) Update(id string, fn func(*model.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID != id || m.current.Status.Terminal() {
		return
	}
	fn(m.current)
}

// Recent returns the most recently persisted sessions.
func (m *Manager) Recent(ctx context.Context, limit int) ([]model.Session, error) {
	return m.store.ListSessions(ctx, limit)
}

// Stats aggregates persisted sessions into cumulative statistics.
func (m *Manager) Stats(ctx context.Context, limit int) (model.SessionStats, error) {
	sessions, err := m.store.ListSessions(ctx, limit)
	if err != nil {
		return model.SessionStats{}, err
	}

	var st model.SessionStats
	for _, s := range sessions {
		st.Total++
		switch s.Status {
		case model.SessionCompleted:
			st.Completed++
		case model.SessionFailed:
			st.Failed++
		case model.SessionTimeout:
			st.Timeout++
		case model.SessionSkipped:
			st.Skipped++
		}
		st.JobsSaved += s.JobsSaved
	}
	if ran := st.Total - st.Skipped; ran > 0 {
		st.SuccessRate = float64(st.Completed) / float64(ran)
		st.AvgJobs = float64(st.JobsSaved) / float64(ran)
	}
	return st, nil
}
