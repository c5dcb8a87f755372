// Package sanitize cleans candidate fragments into validated records with a
// 0–100 quality score. Cleaning and validation are independent per field so
// one mangled field never hides another.
package sanitize

import (
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/kestrelworks/gleaner/internal/model"
)

const (
	maxDescriptionLen = 2000
	maxLineLen        = 1000
)

// Sanitizer cleans and validates one fragment at a time.
type Sanitizer struct {
	logger *slog.Logger
}

// New creates a Sanitizer.
func New(logger *slog.Logger) *Sanitizer {
	return &Sanitizer{logger: logger}
}

// Sanitize cleans every field of a fragment, validates the result, and
// attaches a quality score. It never fails; garbage in produces an invalid
// record out.
func (s *Sanitizer) Sanitize(f model.Fragment) model.CleanRecord {
	rec := model.CleanRecord{
		Title:       CleanField(f.Title),
		Company:     CleanField(f.Company),
		Location:    CleanField(f.Location),
		Pay:         CleanField(f.Pay),
		Schedule:    CleanField(f.Schedule),
		Description: CleanDescription(f.Description),
		URL:         strings.TrimSpace(f.URL),
		PostedAt:    parsePostedAt(f.DatePosted),
	}

	validate(&rec)
	rec.Quality = score(rec)
	rec.Valid = len(rec.Problems) == 0 && rec.Quality >= validityFloor

	return rec
}

var (
	markdownImage   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	markdownLink    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markdownHeader  = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	markdownList    = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	markdownQuote   = regexp.MustCompile(`(?m)^\s*>\s?`)
	paragraphBreak  = regexp.MustCompile(`\n{2,}`)
	emphasisMarkers = strings.NewReplacer("**", "", "__", "", "*", "", "`", "")
)

// punctReplacer maps typographic punctuation and stray entities to ASCII.
var punctReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
	"…", "...",
	" ", " ",
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&#39;", "'",
	"&quot;", `"`,
)

// CleanField runs the full cleaning chain on a single-line field: strip HTML,
// strip markdown syntax, normalize punctuation, collapse whitespace, cap
// length.
func CleanField(text string) string {
	if text == "" {
		return ""
	}
	text = stripHTML(text)
	text = stripMarkdown(text)
	text = punctReplacer.Replace(text)
	text = strings.Join(strings.Fields(text), " ")
	text = truncate(text, maxLineLen)
	return strings.TrimSpace(text)
}

// CleanDescription is CleanField for multi-paragraph text: paragraph breaks
// survive, everything else collapses. Length is capped to bound memory.
func CleanDescription(text string) string {
	if text == "" {
		return ""
	}
	text = stripHTML(text)
	text = stripMarkdown(text)
	text = punctReplacer.Replace(text)

	var paras []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" {
			continue
		}
		paras = append(paras, truncate(p, maxLineLen))
	}
	out := strings.Join(paras, "\n\n")
	out = truncate(out, maxDescriptionLen)
	return strings.TrimSpace(out)
}

// truncate caps s at max bytes, backing up so a multi-byte rune is never
// split at the boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// stripHTML removes markup DOM-aware: tags disappear, their text stays, and
// script/style bodies are dropped entirely. Plain text passes through
// unchanged (the parser wraps it without altering content).
func stripHTML(text string) string {
	if !strings.ContainsAny(text, "<>") {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		// Parser refused the input outright; fall back to the raw text.
		return text
	}
	doc.Find("script, style").Remove()
	// Block-level boundaries become newlines so paragraph structure survives
	// the flattening.
	doc.Find("p, br, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n\n")
	})
	return doc.Text()
}

// stripMarkdown removes markdown syntax: images vanish, links keep their
// text, headers/list markers/quotes/emphasis are unwrapped.
func stripMarkdown(text string) string {
	text = markdownImage.ReplaceAllString(text, "")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = markdownHeader.ReplaceAllString(text, "")
	text = markdownList.ReplaceAllString(text, "")
	text = markdownQuote.ReplaceAllString(text, "")
	return emphasisMarkers.Replace(text)
}

var postedAtFormats = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
}

func parsePostedAt(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range postedAtFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
