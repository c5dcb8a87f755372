package dedup

import (
	"io"
	"log/slog"
	"testing"

	"github.com/kestrelworks/gleaner/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name             string
		titleA, companyA string
		titleB, companyB string
		wantMin, wantMax float64
	}{
		{
			name:   "identical after normalization",
			titleA: "Reading Tutor", companyA: "Oakwood Elementary",
			titleB: "reading tutor ", companyB: "Oakwood Elementary",
			wantMin: 1.0, wantMax: 1.0,
		},
		{
			name:   "same company near-identical title",
			titleA: "Reading Tutor", companyA: "Oakwood Elementary",
			titleB: "Reading Tutors", companyB: "Oakwood Elementary",
			wantMin: 0.9, wantMax: 0.9,
		},
		{
			name:   "same company unrelated title",
			titleA: "Reading Tutor", companyA: "Oakwood Elementary",
			titleB: "Groundskeeper", companyB: "Oakwood Elementary",
			wantMin: 0.0, wantMax: 0.3,
		},
		{
			name:   "different company identical title",
			titleA: "Reading Tutor", companyA: "Oakwood Elementary",
			titleB: "Reading Tutor", companyB: "Westside School",
			wantMin: 0.6, wantMax: 0.6,
		},
		{
			name:   "different company different title",
			titleA: "Reading Tutor", companyA: "Oakwood Elementary",
			titleB: "Night Custodian", companyB: "Westside School",
			wantMin: 0.0, wantMax: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.titleA, tt.companyA, tt.titleB, tt.companyB)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Similarity = %v, want in [%v, %v]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestFilter_DropsCorpusDuplicates(t *testing.T) {
	d := New(DefaultThreshold, discardLogger())

	corpus := []model.JobRecord{
		{Title: "Reading Tutor", Company: "Oakwood Elementary"},
	}
	batch := []model.CleanRecord{
		{Title: "reading tutor ", Company: "Oakwood Elementary"}, // dup of corpus
		{Title: "Reading Tutor", Company: "Westside School"},     // different company, kept
	}

	kept, dropped := d.Filter(batch, corpus)
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if len(kept) != 1 || kept[0].Company != "Westside School" {
		t.Fatalf("kept = %+v", kept)
	}
}

func TestFilter_DropsWithinBatchDuplicates(t *testing.T) {
	d := New(DefaultThreshold, discardLogger())

	batch := []model.CleanRecord{
		{Title: "Greenhouse Assistant", Company: "Bloom & Grow"},
		{Title: "greenhouse assistant", Company: "Bloom & Grow"},
		{Title: "Greenhouse Assistant", Company: "Bloom & Grow"},
	}

	kept, dropped := d.Filter(batch, nil)
	if len(kept) != 1 {
		t.Fatalf("kept = %d records, want 1", len(kept))
	}
	if dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
}

func TestFilter_IdempotentIngestion(t *testing.T) {
	d := New(DefaultThreshold, discardLogger())

	batch := []model.CleanRecord{
		{Title: "Reading Tutor", Company: "Oakwood Elementary"},
	}

	// First run: nothing in the corpus, record accepted.
	kept, _ := d.Filter(batch, nil)
	if len(kept) != 1 {
		t.Fatalf("first run kept %d, want 1", len(kept))
	}

	// Second run over identical fetch output: now the corpus holds the
	// record, so the repeat is dropped and the persisted count cannot grow.
	corpus := []model.JobRecord{{Title: kept[0].Title, Company: kept[0].Company}}
	kept2, dropped := d.Filter(batch, corpus)
	if len(kept2) != 0 || dropped != 1 {
		t.Fatalf("second run kept %d dropped %d, want 0/1", len(kept2), dropped)
	}
}

func TestTitleSimilarity_NormalizedLevenshtein(t *testing.T) {
	// (maxLen - dist) / maxLen: "abcd" vs "abxd" → (4-1)/4 = 0.75
	if got := titleSimilarity("abcd", "abxd"); got != 0.75 {
		t.Errorf("titleSimilarity = %v, want 0.75", got)
	}
	if got := titleSimilarity("same", "same"); got != 1.0 {
		t.Errorf("identical strings = %v, want 1.0", got)
	}
}
