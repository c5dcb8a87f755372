// Package dedup drops near-duplicate listings, comparing candidates against
// the recently persisted corpus and against earlier candidates in the same
// batch.
package dedup

import (
	"log/slog"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/kestrelworks/gleaner/internal/model"
)

// DefaultThreshold is the similarity above which two records are treated as
// the same listing.
const DefaultThreshold = 0.85

// DefaultWindow bounds how far back in the corpus we compare. Older listings
// are unlikely to still be live duplicates, and the bound keeps the
// comparison set small.
const DefaultWindow = 7 * 24 * time.Hour

// key is the normalized identity used for similarity comparison.
type key struct {
	title   string
	company string
}

func keyOf(title, company string) key {
	return key{title: normalize(title), company: normalize(company)}
}

// normalize lowercases and collapses whitespace so "Reading Tutor " and
// "reading tutor" compare equal.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity scores two listings in [0,1]:
//
//	exact title+company            → 1.0
//	same company, title sim s      → s > 0.8 ? 0.9 : 0.7*s
//	different company, s > 0.9     → 0.6*s
//	otherwise                      → 0
func Similarity(titleA, companyA, titleB, companyB string) float64 {
	a, b := keyOf(titleA, companyA), keyOf(titleB, companyB)

	if a == b {
		return 1.0
	}

	s := titleSimilarity(a.title, b.title)
	if a.company == b.company && a.company != "" {
		if s > 0.8 {
			return 0.9
		}
		return 0.7 * s
	}
	if s > 0.9 {
		return 0.6 * s
	}
	return 0
}

// titleSimilarity is normalized Levenshtein similarity:
// (maxLen - editDistance) / maxLen.
func titleSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}

// Deduper filters batches against a corpus snapshot.
type Deduper struct {
	threshold float64
	logger    *slog.Logger
}

// New creates a Deduper with the given duplicate threshold.
func New(threshold float64, logger *slog.Logger) *Deduper {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Deduper{threshold: threshold, logger: logger}
}

// Filter returns the candidates that are not near-duplicates of any corpus
// record or of a candidate accepted earlier in the same batch, plus the
// number dropped. The corpus slice is a stable snapshot taken at batch
// start; a rare overlapping-batch race is an accepted tradeoff, not a bug to
// lock away.
func (d *Deduper) Filter(batch []model.CleanRecord, corpus []model.JobRecord) (kept []model.CleanRecord, dropped int) {
	for _, cand := range batch {
		if d.isDuplicate(cand, kept, corpus) {
			dropped++
			d.logger.Debug("dropping near-duplicate",
				"title", cand.Title,
				"company", cand.Company,
			)
			continue
		}
		kept = append(kept, cand)
	}
	return kept, dropped
}

func (d *Deduper) isDuplicate(cand model.CleanRecord, accepted []model.CleanRecord, corpus []model.JobRecord) bool {
	for _, rec := range corpus {
		if Similarity(cand.Title, cand.Company, rec.Title, rec.Company) > d.threshold {
			return true
		}
	}
	for _, rec := range accepted {
		if Similarity(cand.Title, cand.Company, rec.Title, rec.Company) > d.threshold {
			return true
		}
	}
	return false
}
