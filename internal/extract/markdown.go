package extract

import (
	"regexp"
	"strings"

	"github.com/kestrelworks/gleaner/internal/model"
	"github.com/kestrelworks/gleaner/internal/suspect"
)

// Markdown-path heuristics. The markdown we get back from the fetch service
// is a lossy rendering of arbitrary job boards, so field assignment is
// pattern-based: a title line opens a fragment and subsequent lines fill in
// whichever field they look like until the next title line.
var (
	boldLine = regexp.MustCompile(`^(\*\*|__)(.+?)(\*\*|__)\s*$`)

	// Role nouns, seniority adjectives and schedule words that make a plain
	// line a plausible job title.
	titleWords = regexp.MustCompile(`(?i)\b(assistant|associate|specialist|coordinator|technician|tutor|teacher|instructor|aide|clerk|driver|courier|engineer|developer|designer|manager|supervisor|librarian|gardener|landscaper|caretaker|keeper|analyst|writer|editor|attendant|operator|helper|worker|nurse|therapist|receptionist|cashier|barista|cook|baker|cleaner|custodian|senior|junior|lead|entry[- ]level|part[- ]time|full[- ]time)\b`)

	payLine = regexp.MustCompile(`(?i)([$€£]\s?\d|\d+\s*(?:/|per\s+)\s*(?:hr|hour|yr|year|wk|week|mo|month)|\bhourly\b|\bsalary\b|\bcompensation\b|\ba year\b|\ban hour\b)`)

	cityStateLine = regexp.MustCompile(`^[A-Za-z][A-Za-z .'-]*,\s*[A-Z]{2}\b`)
	remoteLine    = regexp.MustCompile(`(?i)^\s*(fully\s+)?remote\b`)

	scheduleLine = regexp.MustCompile(`(?i)\b(full[- ]?time|part[- ]?time|contract|temporary|seasonal|per diem|weekend|evening|overnight|night shift|day shift|flexible (hours|schedule)|\d+\s*hours?/?\s*(per)?\s*week)\b`)

	hasDigit = regexp.MustCompile(`\d`)
)

const (
	minTitleLen = 5
	maxTitleLen = 100
)

// fromMarkdown scans markdown line by line, opening a new fragment at each
// title candidate and assigning following lines to fields by shape.
func (e *Extractor) fromMarkdown(raw string) []model.Fragment {
	var (
		frags   []model.Fragment
		current *model.Fragment
	)

	flush := func() {
		if current != nil && !current.Empty() {
			frags = append(frags, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if suspect.Line(line) {
			continue
		}

		if title, ok := titleCandidate(line); ok {
			flush()
			current = &model.Fragment{Title: title}
			continue
		}
		if current == nil {
			// Body text before any title is page preamble; skip it.
			continue
		}

		switch {
		case current.Pay == "" && payLine.MatchString(line):
			current.Pay = line
		case current.Location == "" && looksLikeLocation(line):
			current.Location = line
		case current.Schedule == "" && scheduleLine.MatchString(line):
			current.Schedule = line
		case current.Company == "" && looksLikeCompany(line):
			current.Company = line
		default:
			if current.Description != "" {
				current.Description += "\n"
			}
			current.Description += line
		}
	}
	flush()

	return frags
}

// titleCandidate reports whether a line opens a new fragment: a markdown
// heading, a bold span, or a job-title-shaped plain line, 5–100 characters
// after markers are stripped.
func titleCandidate(line string) (string, bool) {
	var text string
	switch {
	case strings.HasPrefix(line, "#"):
		text = strings.TrimSpace(strings.TrimLeft(line, "# "))
	case boldLine.MatchString(line):
		text = strings.TrimSpace(boldLine.FindStringSubmatch(line)[2])
	case titleWords.MatchString(line):
		text = line
	default:
		return "", false
	}

	if len(text) < minTitleLen || len(text) > maxTitleLen {
		return "", false
	}
	return text, true
}

// looksLikeLocation accepts "City, ST" shapes and remote markers.
func looksLikeLocation(line string) bool {
	return cityStateLine.MatchString(line) || remoteLine.MatchString(line)
}

// looksLikeCompany accepts a short capitalized line with no digits.
func looksLikeCompany(line string) bool {
	if len(line) < 2 || len(line) > 60 {
		return false
	}
	if hasDigit.MatchString(line) {
		return false
	}
	first := line[0]
	return first >= 'A' && first <= 'Z'
}
