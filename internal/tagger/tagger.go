// Package tagger derives category tags and a coarse match tier for a
// sanitized record. Both are pure functions over the record text and, for
// the tier, one user's stored preferences.
package tagger

import (
	"strings"

	"github.com/kestrelworks/gleaner/internal/model"
)

// fallbackTag guarantees every persisted record carries at least one tag.
const fallbackTag = "general"

// tagVocabulary maps each tag to the keywords that earn it. Matching is
// case-insensitive substring search over title + description + schedule.
var tagVocabulary = []struct {
	tag      string
	keywords []string
}{
	{"outdoor", []string{"outdoor", "garden", "landscap", "park", "trail", "farm", "nursery", "greenhouse"}},
	{"hands-on", []string{"hands-on", "repair", "build", "assembl", "craft", "workshop", "maintenance", "mechanic"}},
	{"creative", []string{"creativ", "design", "writ", "artist", "illustrat", "photo", "music", "edit"}},
	{"helping", []string{"help", "care", "tutor", "teach", "support", "assist", "mentor", "counsel"}},
	{"social", []string{"team", "customer", "communit", "event", "host", "greet", "outreach"}},
	{"quiet", []string{"quiet", "calm", "library", "archiv", "independent", "solo", "low-stress", "peaceful"}},
	{"tech", []string{"software", "developer", "engineer", "data", "comput", "technician", " it ", "coding"}},
	{"professional", []string{"office", "admin", "clerk", "accounting", "legal", "coordinator", "analyst", "reception"}},
	{"remote", []string{"remote", "work from home", "telecommut", "anywhere"}},
	{"part-time", []string{"part-time", "part time", "flexible hours", "evenings", "weekends", "seasonal"}},
}

// Tags maps keyword hits in title+description+schedule to the fixed tag
// vocabulary. At least one tag is always returned.
func Tags(rec model.CleanRecord) []string {
	text := strings.ToLower(rec.Title + " " + rec.Description + " " + rec.Schedule)
	// Location feeds the remote tag too: many boards put "Remote" there and
	// nowhere else.
	if strings.Contains(strings.ToLower(rec.Location), "remote") {
		text += " remote"
	}

	var tags []string
	for _, entry := range tagVocabulary {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				tags = append(tags, entry.tag)
				break
			}
		}
	}

	if len(tags) == 0 {
		tags = []string{fallbackTag}
	}
	return tags
}

// Tier weights and thresholds.
const (
	keywordWeight  = 0.4
	locationWeight = 0.3
	scheduleWeight = 0.3

	greatThreshold = 75
	goodThreshold  = 50
)

// Tier computes the coarse relevance bucket of a record for one user:
// keyword overlap 40%, location alignment 30%, schedule alignment 30%.
// Returns the tier and the underlying percentage.
func Tier(rec model.CleanRecord, prefs model.UserPreferences) (model.MatchTier, int) {
	text := strings.ToLower(rec.Title + " " + rec.Description + " " + rec.Schedule)

	score := keywordWeight*keywordOverlap(text, prefs.Keywords) +
		locationWeight*locationAlignment(rec, prefs) +
		scheduleWeight*scheduleAlignment(text, prefs.Schedules)

	percent := int(score*100 + 0.5)
	switch {
	case percent >= greatThreshold:
		return model.TierGreat, percent
	case percent >= goodThreshold:
		return model.TierGood, percent
	default:
		return model.TierPotential, percent
	}
}

// keywordOverlap is the fraction of the user's keywords found in the record
// text. No stored keywords means the dimension is neutral (full credit).
func keywordOverlap(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 1
	}
	matched := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func locationAlignment(rec model.CleanRecord, prefs model.UserPreferences) float64 {
	loc := strings.ToLower(rec.Location)
	if strings.Contains(loc, "remote") && prefs.RemoteOK {
		return 1
	}
	if len(prefs.Locations) == 0 {
		return 1
	}
	for _, want := range prefs.Locations {
		want = strings.ToLower(strings.TrimSpace(want))
		if want != "" && strings.Contains(loc, want) {
			return 1
		}
	}
	return 0
}

func scheduleAlignment(text string, schedules []string) float64 {
	if len(schedules) == 0 {
		return 1
	}
	for _, want := range schedules {
		want = strings.ToLower(strings.TrimSpace(want))
		if want != "" && strings.Contains(text, want) {
			return 1
		}
	}
	return 0
}
