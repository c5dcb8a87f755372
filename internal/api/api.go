// Package api is the operator HTTP surface: health, session status, governor
// controls, the quality report, and the manual scrape trigger. Handlers stay
// thin; the pipeline packages do the work.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kestrelworks/gleaner/internal/config"
	"github.com/kestrelworks/gleaner/internal/governor"
	"github.com/kestrelworks/gleaner/internal/metrics"
	"github.com/kestrelworks/gleaner/internal/model"
	"github.com/kestrelworks/gleaner/internal/session"
)

// Triggerer starts a manual scrape session.
type Triggerer interface {
	TriggerManual(ctx context.Context)
}

// Server serves the admin API.
type Server struct {
	gov      *governor.Governor
	metrics  *metrics.Recorder
	sessions *session.Manager
	trigger  Triggerer
	logger   *slog.Logger
	router   *mux.Router
}

// NewServer builds the router.
func NewServer(gov *governor.Governor, rec *metrics.Recorder, sessions *session.Manager, trigger Triggerer, logger *slog.Logger) *Server {
	s := &Server{
		gov:      gov,
		metrics:  rec,
		sessions: sessions,
		trigger:  trigger,
		logger:   logger,
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/governor", s.handleGetGovernor).Methods(http.MethodGet)
	s.router.HandleFunc("/governor", s.handlePutGovernor).Methods(http.MethodPut)
	s.router.HandleFunc("/governor/stop", s.handleStop).Methods(http.MethodPost)
	s.router.HandleFunc("/governor/resume", s.handleResume).Methods(http.MethodPost)
	s.router.HandleFunc("/scrape", s.handleScrape).Methods(http.MethodPost)
	s.router.HandleFunc("/quality", s.handleQuality).Methods(http.MethodGet)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.gov.Health(r.Context())
	status := http.StatusOK
	if h.Status == governor.Critical {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Current *SessionView       `json:"current_session,omitempty"`
	Stats   model.SessionStats `json:"stats"`
	Recent  []SessionView      `json:"recent,omitempty"`
}

// SessionView is the JSON shape of a session.
type SessionView struct {
	ID             string         `json:"id"`
	Trigger        string         `json:"trigger"`
	Status         string         `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	SiteCounts     map[string]int `json:"site_counts,omitempty"`
	UsersProcessed int            `json:"users_processed"`
	JobsSaved      int            `json:"jobs_saved"`
	JobsSkipped    int            `json:"jobs_skipped"`
	Errors         int            `json:"errors"`
	Reason         string         `json:"reason,omitempty"`
}

func viewOf(sess model.Session) SessionView {
	return SessionView{
		ID:             sess.ID,
		Trigger:        sess.Trigger,
		Status:         string(sess.Status),
		StartedAt:      sess.StartedAt,
		EndedAt:        sess.EndedAt,
		SiteCounts:     sess.SiteCounts,
		UsersProcessed: sess.UsersProcessed,
		JobsSaved:      sess.JobsSaved,
		JobsSkipped:    sess.JobsSkipped,
		Errors:         sess.Errors,
		Reason:         sess.Reason,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{}

	if cur := s.sessions.Current(); cur != nil {
		v := viewOf(*cur)
		resp.Current = &v
	}

	stats, err := s.sessions.Stats(r.Context(), 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "session history unavailable: "+err.Error())
		return
	}
	resp.Stats = stats

	if recent, err := s.sessions.Recent(r.Context(), 10); err == nil {
		for _, sess := range recent {
			resp.Recent = append(resp.Recent, viewOf(sess))
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// governorView is the GET /governor payload and the PUT /governor body.
// Pointer fields on input mean "leave unchanged".
type governorView struct {
	MaxJobsPerSite *int            `json:"max_jobs_per_site,omitempty"`
	MaxJobsPerUser *int            `json:"max_jobs_per_user,omitempty"`
	ErrorBudget    *int            `json:"error_budget,omitempty"`
	MinQuality     *float64        `json:"min_quality,omitempty"`
	SiteEnabled    map[string]bool `json:"site_enabled,omitempty"`
}

func (s *Server) handleGetGovernor(w http.ResponseWriter, r *http.Request) {
	cfg := s.gov.Config()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"max_jobs_per_site": cfg.MaxJobsPerSite,
		"max_jobs_per_user": cfg.MaxJobsPerUser,
		"error_budget":      cfg.ErrorBudget,
		"min_quality":       cfg.MinQuality,
		"quality_lookback":  cfg.QualityLookback.String(),
		"health":            s.gov.Health(r.Context()),
	})
}

func (s *Server) handlePutGovernor(w http.ResponseWriter, r *http.Request) {
	var in governorView
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	cfg := s.gov.Config()
	if in.MaxJobsPerSite != nil {
		cfg.MaxJobsPerSite = *in.MaxJobsPerSite
	}
	if in.MaxJobsPerUser != nil {
		cfg.MaxJobsPerUser = *in.MaxJobsPerUser
	}
	if in.ErrorBudget != nil {
		cfg.ErrorBudget = *in.ErrorBudget
	}
	if in.MinQuality != nil {
		cfg.MinQuality = *in.MinQuality
	}
	if err := validateLimits(cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.gov.UpdateConfig(cfg)
	for site, enabled := range in.SiteEnabled {
		s.gov.SetSiteEnabled(site, enabled)
	}

	s.logger.Info("governor limits updated",
		"max_jobs_per_site", cfg.MaxJobsPerSite,
		"max_jobs_per_user", cfg.MaxJobsPerUser,
		"error_budget", cfg.ErrorBudget,
		"min_quality", cfg.MinQuality,
	)
	s.handleGetGovernor(w, r)
}

func validateLimits(cfg config.GovernorConfig) error {
	switch {
	case cfg.MaxJobsPerSite < 1:
		return errBadLimit("max_jobs_per_site")
	case cfg.MaxJobsPerUser < 1:
		return errBadLimit("max_jobs_per_user")
	case cfg.ErrorBudget < 1:
		return errBadLimit("error_budget")
	case cfg.MinQuality < 0 || cfg.MinQuality > 100:
		return errBadLimit("min_quality")
	}
	return nil
}

type errBadLimit string

func (e errBadLimit) Error() string { return string(e) + " out of range" }

// stopRequest is the POST /governor/stop and /governor/resume body.
type stopRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var in stopRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Reason == "" {
		s.writeError(w, http.StatusBadRequest, "a reason is required")
		return
	}
	s.gov.EmergencyStop(in.Reason)
	s.writeJSON(w, http.StatusOK, s.gov.Health(r.Context()))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var in stopRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Reason == "" {
		s.writeError(w, http.StatusBadRequest, "a reason is required")
		return
	}
	s.gov.Resume(in.Reason)
	s.writeJSON(w, http.StatusOK, s.gov.Health(r.Context()))
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if cur := s.sessions.Current(); cur != nil && !cur.Status.Terminal() {
		s.writeError(w, http.StatusConflict, model.ErrSessionRunning.Error())
		return
	}

	// The session outlives the request.
	go s.trigger.TriggerManual(context.Background())
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "session triggered"})
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	lookback := s.gov.Config().QualityLookback
	if v := r.URL.Query().Get("lookback"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid lookback: "+err.Error())
			return
		}
		lookback = d
	}

	report, err := s.metrics.Report(r.Context(), lookback)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "quality history unavailable: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
