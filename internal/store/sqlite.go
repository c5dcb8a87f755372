// Package store is the SQLite persistence layer. One database holds the
// accepted job records, session outcomes, quality samples, and stored user
// preferences.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kestrelworks/gleaner/internal/model"
)

// SQLiteStore implements model.RecordStore, model.SessionStore,
// model.SampleStore, and model.PreferenceSource over a single database file.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS job_records (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	site        TEXT NOT NULL,
	title       TEXT NOT NULL,
	company     TEXT NOT NULL,
	location    TEXT,
	pay         TEXT,
	schedule    TEXT,
	description TEXT,
	url         TEXT,
	tags        TEXT, -- JSON array
	tier        TEXT NOT NULL,
	quality     INTEGER NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_records_created ON job_records (created_at);
CREATE INDEX IF NOT EXISTS idx_job_records_user ON job_records (user_id, active);

CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	trigger_kind    TEXT NOT NULL,
	status          TEXT NOT NULL,
	started_at      DATETIME NOT NULL,
	ended_at        DATETIME,
	site_counts     TEXT, -- JSON object
	users_processed INTEGER NOT NULL DEFAULT 0,
	jobs_saved      INTEGER NOT NULL DEFAULT 0,
	jobs_skipped    INTEGER NOT NULL DEFAULT 0,
	errors          INTEGER NOT NULL DEFAULT 0,
	reason          TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions (started_at);

CREATE TABLE IF NOT EXISTS quality_samples (
	session_id TEXT NOT NULL,
	site       TEXT NOT NULL,
	at         DATETIME NOT NULL,
	parsed     INTEGER NOT NULL,
	valid      INTEGER NOT NULL,
	quality    INTEGER NOT NULL,
	top_errors TEXT -- JSON array
);
CREATE INDEX IF NOT EXISTS idx_quality_samples_at ON quality_samples (at);

CREATE TABLE IF NOT EXISTS user_prefs (
	user_id               TEXT PRIMARY KEY,
	keywords              TEXT, -- JSON array
	locations             TEXT, -- JSON array
	schedules             TEXT, -- JSON array
	remote_ok             INTEGER NOT NULL DEFAULT 0,
	notifications_enabled INTEGER NOT NULL DEFAULT 1
);
`

// New opens (or creates) the database at path and ensures the schema exists.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRecord inserts an accepted record. The record is immutable once
// written.
func (s *SQLiteStore) CreateRecord(ctx context.Context, rec model.JobRecord) (model.JobRecord, error) {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return model.JobRecord{}, fmt.Errorf("encoding tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_records
			(id, user_id, session_id, site, title, company, location, pay,
			 schedule, description, url, tags, tier, quality, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SessionID, rec.Site, rec.Title, rec.Company,
		rec.Location, rec.Pay, rec.Schedule, rec.Description, rec.URL,
		string(tags), string(rec.Tier), rec.Quality, boolToInt(rec.Active),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return model.JobRecord{}, fmt.Errorf("inserting record %s: %w", rec.ID, err)
	}
	return rec, nil
}

// ListRecordsSince returns active records created at or after the cutoff.
func (s *SQLiteStore) ListRecordsSince(ctx context.Context, cutoff time.Time) ([]model.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, site, title, company, location, pay,
		       schedule, description, url, tags, tier, quality, active, created_at
		FROM job_records
		WHERE active = 1 AND created_at >= ?
		ORDER BY created_at DESC`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []model.JobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountRecords returns the total number of stored records, active or not.
func (s *SQLiteStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// DeactivateRecordsBefore retires old records from the active set so the
// dedup window and user-facing listings stay fresh. Returns how many rows
// were retired.
func (s *SQLiteStore) DeactivateRecordsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_records SET active = 0 WHERE active = 1 AND created_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("deactivating records: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanRecord(rows *sql.Rows) (model.JobRecord, error) {
	var rec model.JobRecord
	var tags string
	var tier string
	var active int
	err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Site, &rec.Title,
		&rec.Company, &rec.Location, &rec.Pay, &rec.Schedule, &rec.Description,
		&rec.URL, &tags, &tier, &rec.Quality, &active, &rec.CreatedAt)
	if err != nil {
		return model.JobRecord{}, fmt.Errorf("scanning record: %w", err)
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
			return model.JobRecord{}, fmt.Errorf("decoding tags for %s: %w", rec.ID, err)
		}
	}
	rec.Tier = model.MatchTier(tier)
	rec.Active = active == 1
	return rec, nil
}

// SaveSession upserts a session outcome.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess model.Session) error {
	counts, err := json.Marshal(sess.SiteCounts)
	if err != nil {
		return fmt.Errorf("encoding site counts: %w", err)
	}
	var ended any
	if sess.EndedAt != nil {
		ended = sess.EndedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
			(id, trigger_kind, status, started_at, ended_at, site_counts,
			 users_processed, jobs_saved, jobs_skipped, errors, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			ended_at = excluded.ended_at,
			site_counts = excluded.site_counts,
			users_processed = excluded.users_processed,
			jobs_saved = excluded.jobs_saved,
			jobs_skipped = excluded.jobs_skipped,
			errors = excluded.errors,
			reason = excluded.reason`,
		sess.ID, sess.Trigger, string(sess.Status), sess.StartedAt.UTC(), ended,
		string(counts), sess.UsersProcessed, sess.JobsSaved, sess.JobsSkipped,
		sess.Errors, sess.Reason,
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", sess.ID, err)
	}
	return nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, status, started_at, ended_at, site_counts,
		       users_processed, jobs_saved, jobs_skipped, errors, reason
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		var status, counts string
		var ended sql.NullTime
		err := rows.Scan(&sess.ID, &sess.Trigger, &status, &sess.StartedAt,
			&ended, &counts, &sess.UsersProcessed, &sess.JobsSaved,
			&sess.JobsSkipped, &sess.Errors, &sess.Reason)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.Status = model.SessionStatus(status)
		if ended.Valid {
			t := ended.Time
			sess.EndedAt = &t
		}
		if counts != "" && counts != "null" {
			if err := json.Unmarshal([]byte(counts), &sess.SiteCounts); err != nil {
				return nil, fmt.Errorf("decoding site counts for %s: %w", sess.ID, err)
			}
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// LastCompleted returns the most recent completed session for a trigger, or
// nil when none exists. Unlike ListSessions it searches the whole table, so
// the anchor survives any number of newer skip or manual rows.
func (s *SQLiteStore) LastCompleted(ctx context.Context, trigger string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trigger_kind, status, started_at, ended_at, site_counts,
		       users_processed, jobs_saved, jobs_skipped, errors, reason
		FROM sessions
		WHERE trigger_kind = ? AND status = ? AND ended_at IS NOT NULL
		ORDER BY ended_at DESC
		LIMIT 1`,
		trigger, string(model.SessionCompleted),
	)

	var sess model.Session
	var status, counts string
	var ended sql.NullTime
	err := row.Scan(&sess.ID, &sess.Trigger, &status, &sess.StartedAt,
		&ended, &counts, &sess.UsersProcessed, &sess.JobsSaved,
		&sess.JobsSkipped, &sess.Errors, &sess.Reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding last completed session: %w", err)
	}
	sess.Status = model.SessionStatus(status)
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	if counts != "" && counts != "null" {
		if err := json.Unmarshal([]byte(counts), &sess.SiteCounts); err != nil {
			return nil, fmt.Errorf("decoding site counts for %s: %w", sess.ID, err)
		}
	}
	return &sess, nil
}

// AddSample appends a quality sample. Samples are never updated or deleted.
func (s *SQLiteStore) AddSample(ctx context.Context, sample model.QualitySample) error {
	topErrors, err := json.Marshal(sample.TopErrors)
	if err != nil {
		return fmt.Errorf("encoding top errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quality_samples (session_id, site, at, parsed, valid, quality, top_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sample.SessionID, sample.Site, sample.At.UTC(), sample.Parsed,
		sample.Valid, sample.Quality, string(topErrors),
	)
	if err != nil {
		return fmt.Errorf("adding quality sample: %w", err)
	}
	return nil
}

// AverageQualitySince returns the mean quality of samples at or after the
// cutoff and how many samples were considered.
func (s *SQLiteStore) AverageQualitySince(ctx context.Context, cutoff time.Time) (float64, int, error) {
	var avg sql.NullFloat64
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(quality), COUNT(*) FROM quality_samples WHERE at >= ?`,
		cutoff.UTC(),
	).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("averaging quality samples: %w", err)
	}
	return avg.Float64, n, nil
}

// ListSamplesSince returns samples at or after the cutoff, newest first.
func (s *SQLiteStore) ListSamplesSince(ctx context.Context, cutoff time.Time) ([]model.QualitySample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, site, at, parsed, valid, quality, top_errors
		FROM quality_samples
		WHERE at >= ?
		ORDER BY at DESC`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing quality samples: %w", err)
	}
	defer rows.Close()

	var samples []model.QualitySample
	for rows.Next() {
		var sample model.QualitySample
		var topErrors string
		err := rows.Scan(&sample.SessionID, &sample.Site, &sample.At,
			&sample.Parsed, &sample.Valid, &sample.Quality, &topErrors)
		if err != nil {
			return nil, fmt.Errorf("scanning quality sample: %w", err)
		}
		if topErrors != "" && topErrors != "null" {
			if err := json.Unmarshal([]byte(topErrors), &sample.TopErrors); err != nil {
				return nil, fmt.Errorf("decoding top errors: %w", err)
			}
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// SaveUserPreferences upserts one user's stored search profile.
func (s *SQLiteStore) SaveUserPreferences(ctx context.Context, prefs model.UserPreferences) error {
	keywords, err := json.Marshal(prefs.Keywords)
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}
	locations, err := json.Marshal(prefs.Locations)
	if err != nil {
		return fmt.Errorf("encoding locations: %w", err)
	}
	schedules, err := json.Marshal(prefs.Schedules)
	if err != nil {
		return fmt.Errorf("encoding schedules: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_prefs (user_id, keywords, locations, schedules, remote_ok, notifications_enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			keywords = excluded.keywords,
			locations = excluded.locations,
			schedules = excluded.schedules,
			remote_ok = excluded.remote_ok,
			notifications_enabled = excluded.notifications_enabled`,
		prefs.UserID, string(keywords), string(locations), string(schedules),
		boolToInt(prefs.RemoteOK), boolToInt(prefs.NotificationsEnabled),
	)
	if err != nil {
		return fmt.Errorf("saving preferences for %s: %w", prefs.UserID, err)
	}
	return nil
}

// ActiveUsers returns every user with notifications enabled.
func (s *SQLiteStore) ActiveUsers(ctx context.Context) ([]model.UserPreferences, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, keywords, locations, schedules, remote_ok, notifications_enabled
		FROM user_prefs
		WHERE notifications_enabled = 1
		ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	defer rows.Close()

	var users []model.UserPreferences
	for rows.Next() {
		var u model.UserPreferences
		var keywords, locations, schedules string
		var remoteOK, notify int
		err := rows.Scan(&u.UserID, &keywords, &locations, &schedules, &remoteOK, &notify)
		if err != nil {
			return nil, fmt.Errorf("scanning user preferences: %w", err)
		}
		if err := decodeList(keywords, &u.Keywords); err != nil {
			return nil, fmt.Errorf("decoding keywords for %s: %w", u.UserID, err)
		}
		if err := decodeList(locations, &u.Locations); err != nil {
			return nil, fmt.Errorf("decoding locations for %s: %w", u.UserID, err)
		}
		if err := decodeList(schedules, &u.Schedules); err != nil {
			return nil, fmt.Errorf("decoding schedules for %s: %w", u.UserID, err)
		}
		u.RemoteOK = remoteOK == 1
		u.NotificationsEnabled = notify == 1
		users = append(users, u)
	}
	return users, rows.Err()
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
