// Package metrics aggregates per-batch quality measurements. Samples are
// append-only; the governor reads them back as a sliding window to decide
// whether scraping may proceed.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kestrelworks/gleaner/internal/model"
)

// topErrorCount bounds how many distinct error reasons a sample carries.
const topErrorCount = 3

// Recorder writes quality samples and serves windowed aggregates.
type Recorder struct {
	store  model.SampleStore
	logger *slog.Logger
}

// New creates a Recorder backed by the given sample store.
func New(store model.SampleStore, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Summarize condenses one sanitized batch into a sample: parsed count, valid
// count, mean quality, and the most frequent error reasons.
func Summarize(sessionID, site string, parsed int, records []model.CleanRecord) model.QualitySample {
	sample := model.QualitySample{
		SessionID: sessionID,
		Site:      site,
		At:        time.Now(),
		Parsed:    parsed,
	}

	if len(records) == 0 {
		return sample
	}

	total := 0
	counts := make(map[string]int)
	for _, rec := range records {
		total += rec.Quality
		if rec.Valid {
			sample.Valid++
		}
		for _, p := range rec.Problems {
			counts[p]++
		}
	}
	sample.Quality = total / len(records)
	sample.TopErrors = topErrors(counts)

	return sample
}

func topErrors(counts map[string]int) []string {
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	if len(reasons) > topErrorCount {
		reasons = reasons[:topErrorCount]
	}
	return reasons
}

// Record persists one sample. Failures are logged and swallowed: losing a
// metric must never fail the batch that produced it.
func (r *Recorder) Record(ctx context.Context, sample model.QualitySample) {
	if err := r.store.AddSample(ctx, sample); err != nil {
		r.logger.Warn("failed to persist quality sample",
			"session", sample.SessionID,
			"site", sample.Site,
			"error", err,
		)
	}
}

// RollingAverage returns the mean quality over the lookback window and the
// number of samples considered.
func (r *Recorder) RollingAverage(ctx context.Context, lookback time.Duration) (float64, int, error) {
	avg, n, err := r.store.AverageQualitySince(ctx, time.Now().Add(-lookback))
	if err != nil {
		return 0, 0, fmt.Errorf("rolling quality average: %w", err)
	}
	return avg, n, nil
}

// Report is the operator-facing quality summary.
type Report struct {
	Window  string                `json:"window"`
	Average float64               `json:"average_quality"`
	Samples int                   `json:"samples"`
	PerSite map[string]SiteReport `json:"per_site"`
}

// SiteReport aggregates one site's samples inside the window.
type SiteReport struct {
	Parsed    int      `json:"parsed"`
	Valid     int      `json:"valid"`
	Average   float64  `json:"average_quality"`
	TopErrors []string `json:"top_errors"`
}

// Report builds the operator quality report over the lookback window.
func (r *Recorder) Report(ctx context.Context, lookback time.Duration) (Report, error) {
	cutoff := time.Now().Add(-lookback)

	samples, err := r.store.ListSamplesSince(ctx, cutoff)
	if err != nil {
		return Report{}, fmt.Errorf("quality report: %w", err)
	}

	rep := Report{
		Window:  lookback.String(),
		Samples: len(samples),
		PerSite: make(map[string]SiteReport),
	}

	totalQ := 0
	errCounts := make(map[string]map[string]int)
	for _, s := range samples {
		totalQ += s.Quality

		site := rep.PerSite[s.Site]
		site.Parsed += s.Parsed
		site.Valid += s.Valid
		site.Average += float64(s.Quality) // summed here, divided below
		rep.PerSite[s.Site] = site

		if errCounts[s.Site] == nil {
			errCounts[s.Site] = make(map[string]int)
		}
		for _, reason := range s.TopErrors {
			errCounts[s.Site][reason]++
		}
	}

	if len(samples) > 0 {
		rep.Average = float64(totalQ) / float64(len(samples))
	}

	siteSamples := make(map[string]int)
	for _, s := range samples {
		siteSamples[s.Site]++
	}
	for name, site := range rep.PerSite {
		if n := siteSamples[name]; n > 0 {
			site.Average /= float64(n)
		}
		site.TopErrors = topErrors(errCounts[name])
		rep.PerSite[name] = site
	}

	return rep, nil
}
