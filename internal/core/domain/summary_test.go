package domain

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarizeResultsMeanPerClass(t *testing.T) {
	results := []ImageResult{
		{ImageIndex: 0, Percentages: Percentages{Glioma: 0.8, Meningioma: 0.1, NoTumor: 0.05, Pituitary: 0.05}},
		{ImageIndex: 1, Percentages: Percentages{Glioma: 0.4, Meningioma: 0.3, NoTumor: 0.25, Pituitary: 0.05}},
	}

	summary, err := SummarizeResults(0, results)
	if err != nil {
		t.Fatalf("SummarizeResults() error = %v", err)
	}
	if !almostEqual(summary.ResultsMean.Glioma, 0.6) {
		t.Fatalf("glioma mean = %v, want 0.6", summary.ResultsMean.Glioma)
	}
	if !almostEqual(summary.ResultsMean.Meningioma, 0.2) {
		t.Fatalf("meningioma mean = %v, want 0.2", summary.ResultsMean.Meningioma)
	}
	if !almostEqual(summary.ResultsMean.NoTumor, 0.15) {
		t.Fatalf("noTumor mean = %v, want 0.15", summary.ResultsMean.NoTumor)
	}
	if !almostEqual(summary.ResultsMean.Pituitary, 0.05) {
		t.Fatalf("pituitary mean = %v, want 0.05", summary.ResultsMean.Pituitary)
	}
}

func TestSummarizeResultsOrderInsensitiveMean(t *testing.T) {
	forward := []ImageResult{
		{ImageIndex: 0, Percentages: Percentages{Glioma: 0.9}},
		{ImageIndex: 1, Percentages: Percentages{Glioma: 0.3}},
		{ImageIndex: 2, Percentages: Percentages{Glioma: 0.6}},
	}
	reversed := []ImageResult{forward[2], forward[0], forward[1]}

	a, err := SummarizeResults(4, forward)
	if err != nil {
		t.Fatalf("SummarizeResults(forward) error = %v", err)
	}
	b, err := SummarizeResults(4, reversed)
	if err != nil {
		t.Fatalf("SummarizeResults(reversed) error = %v", err)
	}
	if !almostEqual(a.ResultsMean.Glioma, b.ResultsMean.Glioma) {
		t.Fatalf("means differ by input order: %v vs %v", a.ResultsMean.Glioma, b.ResultsMean.Glioma)
	}
}

func TestSummarizeResultsSortsByImageIndex(t *testing.T) {
	results := []ImageResult{
		{ImageIndex: 2, ImageURL: "u2"},
		{ImageIndex: 0, ImageURL: "u0"},
		{ImageIndex: 1, ImageURL: "u1"},
	}

	summary, err := SummarizeResults(0, results)
	if err != nil {
		t.Fatalf("SummarizeResults() error = %v", err)
	}
	for i, result := range summary.Results {
		if result.ImageIndex != i {
			t.Fatalf("results[%d].ImageIndex = %d, want %d", i, result.ImageIndex, i)
		}
	}
	// Input slice must stay untouched.
	if results[0].ImageIndex != 2 {
		t.Fatalf("input slice mutated: %+v", results)
	}
}

func TestSummarizeResultsSequenceNumber(t *testing.T) {
	cases := []struct {
		priorCount int
		want       int
	}{
		{priorCount: 0, want: 1},
		{priorCount: 1, want: 2},
		{priorCount: 7, want: 8},
		{priorCount: -3, want: 1},
	}
	for _, tc := range cases {
		summary, err := SummarizeResults(tc.priorCount, []ImageResult{{ImageIndex: 0}})
		if err != nil {
			t.Fatalf("SummarizeResults(%d) error = %v", tc.priorCount, err)
		}
		if summary.Number != tc.want {
			t.Fatalf("number for priorCount=%d: got %d, want %d", tc.priorCount, summary.Number, tc.want)
		}
	}
}

func TestSummarizeResultsRejectsEmpty(t *testing.T) {
	_, err := SummarizeResults(0, nil)
	if err == nil {
		t.Fatalf("expected error for empty results")
	}
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPatientUpdatedEventChanges(t *testing.T) {
	name := "Jane Doe"
	event := PatientUpdatedEvent{ID: "p1", FullName: &name}

	changes := event.Changes()
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d: %v", len(changes), changes)
	}
	if changes["fullName"] != "Jane Doe" {
		t.Fatalf("unexpected change set: %v", changes)
	}
}

func TestSubmissionThumbnailUsesFirstImage(t *testing.T) {
	submission := Submission{
		ID:       "s1",
		FileName: "scan.zip",
		Number:   3,
		Results: []ImageResult{
			{ImageIndex: 0, ImageURL: "https://cdn/img0"},
			{ImageIndex: 1, ImageURL: "https://cdn/img1"},
		},
	}

	thumbnail := submission.Thumbnail()
	if thumbnail.ImageURL != "https://cdn/img0" {
		t.Fatalf("thumbnail image = %q, want first image", thumbnail.ImageURL)
	}
	if thumbnail.Number != 3 || thumbnail.ID != "s1" {
		t.Fatalf("unexpected thumbnail: %+v", thumbnail)
	}
}
