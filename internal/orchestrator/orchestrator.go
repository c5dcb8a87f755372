// Package orchestrator runs one scrape session end to end: users to queries,
// queries to fetches, fetches through extraction, sanitization, dedup and
// tagging, accepted records into the store.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/gleaner/internal/config"
	"github.com/kestrelworks/gleaner/internal/dedup"
	"github.com/kestrelworks/gleaner/internal/extract"
	"github.com/kestrelworks/gleaner/internal/governor"
	"github.com/kestrelworks/gleaner/internal/metrics"
	"github.com/kestrelworks/gleaner/internal/model"
	"github.com/kestrelworks/gleaner/internal/ratelimit"
	"github.com/kestrelworks/gleaner/internal/retry"
	"github.com/kestrelworks/gleaner/internal/sanitize"
	"github.com/kestrelworks/gleaner/internal/session"
	"github.com/kestrelworks/gleaner/internal/tagger"
)

// Query volume per user is bounded regardless of how many preferences are
// stored.
const (
	maxKeywordsPerUser  = 3
	maxLocationsPerUser = 2
)

// Orchestrator wires the pipeline stages together. One instance serves the
// whole process; per-session state lives in the run struct.
type Orchestrator struct {
	cfg config.Config

	fetcher   model.ContentFetcher
	extractor *extract.Extractor
	sanitizer *sanitize.Sanitizer
	deduper   *dedup.Deduper
	gov       *governor.Governor
	metrics   *metrics.Recorder
	sessions  *session.Manager
	limiter   *ratelimit.SiteLimiter
	records   model.RecordStore
	prefs     model.PreferenceSource
	logger    *slog.Logger
}

// New assembles an Orchestrator from its collaborators.
func New(
	cfg config.Config,
	fetcher model.ContentFetcher,
	gov *governor.Governor,
	rec *metrics.Recorder,
	sessions *session.Manager,
	records model.RecordStore,
	prefs model.PreferenceSource,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extract.New(logger),
		sanitizer: sanitize.New(logger),
		deduper:   dedup.New(cfg.Dedup.Threshold, logger),
		gov:       gov,
		metrics:   rec,
		sessions:  sessions,
		limiter:   ratelimit.NewSiteLimiter(cfg.Orchestrator.SiteDelay, cfg.Orchestrator.SiteDelayOverrides),
		records:   records,
		prefs:     prefs,
		logger:    logger,
	}
}

// run is the mutable state of one session. The corpus grows as records are
// accepted so later users deduplicate against earlier ones.
type run struct {
	sessionID string

	mu          sync.Mutex
	corpus      []model.JobRecord
	abortReason string
}

func (r *run) abort(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.abortReason == "" {
		r.abortReason = reason
	}
}

func (r *run) aborted() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abortReason, r.abortReason != ""
}

func (r *run) corpusSnapshot() []model.JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.JobRecord, len(r.corpus))
	copy(out, r.corpus)
	return out
}

func (r *run) addToCorpus(rec model.JobRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corpus = append(r.corpus, rec)
}

// Run executes one session for the given trigger. ctx carries the session
// deadline; expiry cancels in-flight work and the session is recorded as
// timed out. Run never returns an error: every outcome is a session record.
func (o *Orchestrator) Run(ctx context.Context, trigger string) {
	sess, sessCtx, started := o.sessions.Begin(ctx, trigger)
	if !started {
		o.sessions.RecordSkipped(context.Background(), trigger, model.ErrSessionRunning.Error())
		return
	}

	o.gov.BeginSession()

	if d := o.gov.Authorize(sessCtx); !d.Allowed {
		o.logger.Warn("session refused", "reason", d.Reason, "hints", d.Hints)
		o.sessions.Finish(context.Background(), sess.ID, model.SessionSkipped, d.Reason)
		return
	}

	users, err := o.prefs.ActiveUsers(sessCtx)
	if err != nil {
		o.logger.Error("failed to load user preferences", "error", err)
		o.sessions.Finish(context.Background(), sess.ID, model.SessionFailed, "load preferences: "+err.Error())
		return
	}
	users = eligible(users)
	if len(users) == 0 {
		o.sessions.Finish(context.Background(), sess.ID, model.SessionCompleted, "no eligible users")
		return
	}

	r := &run{sessionID: sess.ID}
	if corpus, err := o.records.ListRecordsSince(sessCtx, time.Now().Add(-o.cfg.Dedup.Window)); err != nil {
		// Without the window the batch still dedups against itself.
		o.logger.Warn("dedup corpus unavailable", "error", err)
	} else {
		r.corpus = corpus
	}

	o.processBatches(sessCtx, r, users)

	switch {
	case sessCtx.Err() != nil:
		o.gov.RecordError(sessCtx.Err())
		o.sessions.Finish(context.Background(), sess.ID, model.SessionTimeout, "session deadline exceeded")
	default:
		if reason, ok := r.aborted(); ok {
			o.sessions.Finish(context.Background(), sess.ID, model.SessionFailed, reason)
			return
		}
		o.sessions.Finish(context.Background(), sess.ID, model.SessionCompleted, "")
	}
}

// eligible keeps users who opted in and stored at least one keyword.
func eligible(users []model.UserPreferences) []model.UserPreferences {
	out := users[:0]
	for _, u := range users {
		if u.NotificationsEnabled && len(u.Keywords) > 0 {
			out = append(out, u)
		}
	}
	return out
}

// processBatches walks users in bounded concurrent batches with a delay
// between batches.
func (o *Orchestrator) processBatches(ctx context.Context, r *run, users []model.UserPreferences) {
	size := o.cfg.Orchestrator.UserBatchSize
	for start := 0; start < len(users); start += size {
		if ctx.Err() != nil {
			return
		}
		if _, ok := r.aborted(); ok {
			return
		}

		end := start + size
		if end > len(users) {
			end = len(users)
		}

		var wg sync.WaitGroup
		for _, user := range users[start:end] {
			wg.Add(1)
			go func(u model.UserPreferences) {
				defer wg.Done()
				o.processUser(ctx, r, u)
			}(user)
		}
		wg.Wait()

		if end < len(users) {
			if err := wait(ctx, o.cfg.Orchestrator.BatchDelay); err != nil {
				return
			}
		}
	}
}

// processUser runs every query against every enabled site for one user,
// respecting the per-user acceptance cap.
func (o *Orchestrator) processUser(ctx context.Context, r *run, user model.UserPreferences) {
	o.sessions.Update(r.sessionID, func(s *model.Session) { s.UsersProcessed++ })

	userCap := o.gov.Config().MaxJobsPerUser
	saved := 0

	for _, site := range o.cfg.Sites {
		if !site.Enabled {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if _, ok := r.aborted(); ok {
			return
		}
		if d := o.gov.Authorize(ctx); !d.Allowed {
			r.abort(d.Reason)
			return
		}

		adapter := extract.AdapterFor(site.Name, site.SearchURL)
		for _, q := range queriesFor(user) {
			// Re-check per fetch; concurrent users share the quota.
			sd := o.gov.AuthorizeSite(site.Name)
			if !sd.Allowed {
				o.logger.Debug("site refused", "site", site.Name, "reason", sd.Reason)
				break
			}

			allowance := userCap - saved
			if sd.Remaining < allowance {
				allowance = sd.Remaining
			}
			n, err := o.runQuery(ctx, r, user, site.Name, adapter, q, allowance)
			if err != nil {
				return // context cancelled mid-query
			}
			saved += n
		}
	}
}

// queriesFor expands stored preferences into site searches, bounded by the
// per-user caps. No stored locations means one location-less query; remote
// listings still match.
func queriesFor(user model.UserPreferences) []model.Query {
	keywords := user.Keywords
	if len(keywords) > maxKeywordsPerUser {
		keywords = keywords[:maxKeywordsPerUser]
	}
	locations := user.Locations
	if len(locations) > maxLocationsPerUser {
		locations = locations[:maxLocationsPerUser]
	}
	if len(locations) == 0 {
		locations = []string{""}
	}

	queries := make([]model.Query, 0, len(keywords)*len(locations))
	for _, kw := range keywords {
		for _, loc := range locations {
			queries = append(queries, model.Query{Keyword: kw, Location: loc})
		}
	}
	return queries
}

// runQuery is one fetch through the full pipeline. It returns how many
// records were accepted for the user. A non-nil error means the context
// ended; site failures are absorbed into counters.
func (o *Orchestrator) runQuery(ctx context.Context, r *run, user model.UserPreferences, site string, adapter extract.SiteAdapter, q model.Query, remaining int) (int, error) {
	if err := o.limiter.Wait(ctx, site); err != nil {
		return 0, err
	}

	url := adapter.BuildSearchURL(q)
	res, err := retry.Do(ctx, o.cfg.Fetch.Attempts, o.cfg.Fetch.BaseDelay, o.logger, "fetch "+site,
		func(ctx context.Context) (model.FetchResult, error) {
			return o.fetcher.Fetch(ctx, url)
		})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		o.logger.Warn("fetch failed after retries", "site", site, "url", url, "error", err)
		o.gov.RecordError(err)
		o.sessions.Update(r.sessionID, func(s *model.Session) { s.Errors++ })
		return 0, nil
	}

	frags := o.extractor.Extract(res, adapter)
	cleaned := make([]model.CleanRecord, 0, len(frags))
	var valid []model.CleanRecord
	for _, f := range frags {
		rec := o.sanitizer.Sanitize(f)
		cleaned = append(cleaned, rec)
		if rec.Valid {
			valid = append(valid, rec)
		}
	}
	o.metrics.Record(ctx, metrics.Summarize(r.sessionID, site, len(frags), cleaned))

	if len(valid) == 0 {
		return 0, nil
	}

	kept, dropped := o.deduper.Filter(valid, r.corpusSnapshot())
	if dropped > 0 {
		o.logger.Debug("duplicates dropped", "site", site, "count", dropped)
	}

	return o.persist(ctx, r, user, site, kept, remaining), nil
}

// persist writes accepted records up to the user's remaining allowance.
// Overflow counts as skipped, not as an error.
func (o *Orchestrator) persist(ctx context.Context, r *run, user model.UserPreferences, site string, kept []model.CleanRecord, remaining int) int {
	saved := 0
	for _, rec := range kept {
		if saved >= remaining {
			o.sessions.Update(r.sessionID, func(s *model.Session) { s.JobsSkipped++ })
			continue
		}
		// The pre-fetch quota check is advisory; the claim here is what
		// holds the site ceiling across concurrent users.
		if o.gov.ClaimSite(site, 1) == 0 {
			o.sessions.Update(r.sessionID, func(s *model.Session) { s.JobsSkipped++ })
			continue
		}

		tier, _ := tagger.Tier(rec, user)
		job := model.JobRecord{
			ID:          uuid.NewString(),
			UserID:      user.UserID,
			SessionID:   r.sessionID,
			Site:        site,
			Title:       rec.Title,
			Company:     rec.Company,
			Location:    rec.Location,
			Pay:         rec.Pay,
			Schedule:    rec.Schedule,
			Description: rec.Description,
			URL:         rec.URL,
			Tags:        tagger.Tags(rec),
			Tier:        tier,
			Quality:     rec.Quality,
			Active:      true,
			CreatedAt:   time.Now(),
		}

		stored, err := o.records.CreateRecord(ctx, job)
		if err != nil {
			o.logger.Error("failed to persist record", "site", site, "title", rec.Title, "error", err)
			o.gov.ReleaseSite(site, 1)
			o.gov.RecordError(err)
			o.sessions.Update(r.sessionID, func(s *model.Session) { s.Errors++ })
			continue
		}

		saved++
		r.addToCorpus(stored)
		o.sessions.Update(r.sessionID, func(s *model.Session) {
			s.JobsSaved++
			s.SiteCounts[site]++
		})
	}
	return saved
}

// wait sleeps for d unless the context ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
