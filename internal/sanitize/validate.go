package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kestrelworks/gleaner/internal/model"
	"github.com/kestrelworks/gleaner/internal/suspect"
)

// validityFloor is the minimum quality score a record needs even with zero
// hard errors. Soft fields alone can sink a record.
const validityFloor = 70

const (
	errorPenalty = 20 // per validation error

	missingTitlePenalty    = 15
	missingCompanyPenalty  = 10
	missingLocationPenalty = 10
	missingDescPenalty     = 15
	shortDescPenalty       = 10
	shortDescLen           = 40

	payBonus      = 5
	scheduleBonus = 5
)

var (
	bareURL       = regexp.MustCompile(`(?i)^(https?://|www\.)\S+$`)
	purelyNumeric = regexp.MustCompile(`^[\d\s.,#-]+$`)
	// Titles that are page furniture rather than roles.
	pageNoise = regexp.MustCompile(`(?i)\b(error|loading|page \d+|404|403|untitled|undefined)\b`)

	placeholderCompanies = map[string]bool{
		"unknown": true, "n/a": true, "na": true, "n-a": true,
		"null": true, "none": true, "-": true, "tbd": true,
	}

	cityState   = regexp.MustCompile(`^[A-Za-z][A-Za-z .'-]*,\s*[A-Z]{2}$`)
	remoteOnly  = regexp.MustCompile(`(?i)^(fully\s+)?remote$`)
	simplePlace = regexp.MustCompile(`^[A-Za-z][A-Za-z .'-]+$`)
)

// validate applies the per-field rules and the suspicious-content check,
// appending to rec.Problems (hard errors) and rec.Warnings (soft flags).
func validate(rec *model.CleanRecord) {
	validateTitle(rec)
	validateCompany(rec)
	validateLocation(rec)

	// Suspicious-content check over the fields a listing page would show.
	combined := rec.Title + " " + rec.Company + " " + rec.Description
	if phrase, hit := suspect.Hit(combined); hit {
		rec.Problems = append(rec.Problems, "suspicious content: "+phrase)
		rec.Warnings = append(rec.Warnings, "record looks like search-UI text, not a listing")
	}
}

func validateTitle(rec *model.CleanRecord) {
	t := rec.Title
	// Length rules count characters, not bytes; CJK titles are short in
	// runes long in bytes.
	switch {
	case strings.TrimSpace(t) == "":
		rec.Problems = append(rec.Problems, "title missing")
	case utf8.RuneCountInString(t) < 3:
		rec.Problems = append(rec.Problems, "title too short")
	case utf8.RuneCountInString(t) > 200:
		rec.Problems = append(rec.Problems, "title too long")
	case bareURL.MatchString(t):
		rec.Problems = append(rec.Problems, "title is a bare URL")
	case purelyNumeric.MatchString(t):
		rec.Problems = append(rec.Problems, "title is purely numeric")
	case pageNoise.MatchString(t):
		rec.Problems = append(rec.Problems, "title matches error/loading page pattern")
	}
}

func validateCompany(rec *model.CleanRecord) {
	c := rec.Company
	switch {
	case strings.TrimSpace(c) == "":
		rec.Problems = append(rec.Problems, "company missing")
	case utf8.RuneCountInString(c) < 2:
		rec.Problems = append(rec.Problems, "company too short")
	case utf8.RuneCountInString(c) > 150:
		rec.Problems = append(rec.Problems, "company too long")
	case placeholderCompanies[strings.ToLower(c)]:
		rec.Problems = append(rec.Problems, "company is a placeholder")
	case bareURL.MatchString(c):
		rec.Problems = append(rec.Problems, "company is a bare URL")
	}
}

// validateLocation only warns: an odd location shape is suspicious but not
// fatal on its own.
func validateLocation(rec *model.CleanRecord) {
	l := rec.Location
	if strings.TrimSpace(l) == "" {
		rec.Warnings = append(rec.Warnings, "location missing")
		return
	}
	if n := utf8.RuneCountInString(l); n < 2 || n > 100 {
		rec.Warnings = append(rec.Warnings, "location length out of range")
		return
	}
	if !cityState.MatchString(l) && !remoteOnly.MatchString(l) && !simplePlace.MatchString(l) {
		rec.Warnings = append(rec.Warnings, "location has unexpected shape")
	}
}

// score derives the quality score: start at 100, subtract a fixed amount per
// validation error, subtract penalties for weak required fields, add small
// bonuses for optional ones, clamp to [0,100].
func score(rec model.CleanRecord) int {
	q := 100

	q -= errorPenalty * len(rec.Problems)

	if utf8.RuneCountInString(rec.Title) < 3 {
		q -= missingTitlePenalty
	}
	if utf8.RuneCountInString(rec.Company) < 2 {
		q -= missingCompanyPenalty
	}
	if rec.Location == "" || hasWarning(rec, "location") {
		q -= missingLocationPenalty
	}
	switch {
	case rec.Description == "":
		q -= missingDescPenalty
	case len(rec.Description) < shortDescLen:
		q -= shortDescPenalty
	}

	if rec.Pay != "" {
		q += payBonus
	}
	if rec.Schedule != "" {
		q += scheduleBonus
	}

	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}

func hasWarning(rec model.CleanRecord, prefix string) bool {
	for _, w := range rec.Warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}
