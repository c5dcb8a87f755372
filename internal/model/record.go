package model

import (
	"context"
	"time"
)

// Fragment is a candidate listing straight out of extraction. Every field is
// optional (empty string means absent) and nothing is trusted yet; a
// fragment may be entirely garbage. Validity is judged by the sanitizer.
type Fragment struct {
	Title       string
	Company     string
	Location    string
	Pay         string
	Schedule    string
	Description string
	URL         string
	DatePosted  string
}

// Empty reports whether extraction found nothing at all for this fragment.
func (f Fragment) Empty() bool {
	return f.Title == "" && f.Company == "" && f.Location == "" &&
		f.Pay == "" && f.Schedule == "" && f.Description == ""
}

// CleanRecord is a fragment after sanitization and validation.
// Invariant: if Valid is true, every required field is non-empty, passes its
// field rule, and Quality is at least the validity floor.
type CleanRecord struct {
	Title       string
	Company     string
	Location    string
	Pay         string
	Schedule    string
	Description string
	URL         string
	PostedAt    *time.Time

	Quality  int // 0–100 heuristic fitness score
	Valid    bool
	Problems []string // hard validation errors; any entry costs quality
	Warnings []string // soft flags (odd location shape, suspicious phrasing)
}

// MatchTier is the coarse relevance bucket of a record for one user.
type MatchTier string

const (
	TierGreat     MatchTier = "great"
	TierGood      MatchTier = "good"
	TierPotential MatchTier = "potential"
)

// JobRecord is the persistable form of an accepted record. Once written the
// pipeline never mutates it; the store owns it from there.
type JobRecord struct {
	ID          string
	UserID      string
	SessionID   string
	Site        string
	Title       string
	Company     string
	Location    string
	Pay         string
	Schedule    string
	Description string
	URL         string
	Tags        []string
	Tier        MatchTier
	Quality     int
	Active      bool
	CreatedAt   time.Time
}

// Query is one site search derived from a user's stored preferences.
type Query struct {
	Keyword  string
	Location string
}

// FetchResult is the output of the external content-fetch collaborator.
// Either field may be empty; absence of both means zero candidates, not an
// error.
type FetchResult struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
}

// UserPreferences is the stored search profile for one job seeker.
type UserPreferences struct {
	UserID               string
	Keywords             []string
	Locations            []string
	Schedules            []string
	RemoteOK             bool
	NotificationsEnabled bool
}

// ContentFetcher retrieves raw page content for a search URL. Implementations
// talk to the external fetch service; the pipeline only consumes the result.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// RecordStore is the persistence collaborator for accepted job records.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec JobRecord) (JobRecord, error)
	// ListRecordsSince returns active records created at or after the cutoff,
	// used as the dedup comparison window.
	ListRecordsSince(ctx context.Context, cutoff time.Time) ([]JobRecord, error)
	CountRecords(ctx context.Context) (int, error)
}

// PreferenceSource yields the users eligible for a scraping session.
type PreferenceSource interface {
	ActiveUsers(ctx context.Context) ([]UserPreferences, error)
}
