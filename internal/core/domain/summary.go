package domain

import (
	"errors"
	"sort"
)

// SubmissionSummary is the aggregate computed over one submission's
// per-image results before the submission is persisted.
type SubmissionSummary struct {
	Number      int
	ResultsMean Percentages
	Results     []ImageResult
}

// SummarizeResults computes the next sequence number for a patient, the
// per-class arithmetic mean and the index-ordered copy of the results.
// Pure: no store or network access. The first submission gets number 1.
func SummarizeResults(priorCount int, results []ImageResult) (SubmissionSummary, error) {
	if len(results) == 0 {
		return SubmissionSummary{}, WrapError(ErrInvalidInput, "summarize results", errors.New("no image results"))
	}
	if priorCount < 0 {
		priorCount = 0
	}

	sorted := make([]ImageResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ImageIndex < sorted[j].ImageIndex
	})

	return SubmissionSummary{
		Number:      priorCount + 1,
		ResultsMean: meanPercentages(sorted),
		Results:     sorted,
	}, nil
}

func meanPercentages(results []ImageResult) Percentages {
	var sum Percentages
	for _, result := range results {
		sum.Glioma += result.Percentages.Glioma
		sum.Meningioma += result.Percentages.Meningioma
		sum.NoTumor += result.Percentages.NoTumor
		sum.Pituitary += result.Percentages.Pituitary
	}

	n := float64(len(results))
	return Percentages{
		Glioma:     sum.Glioma / n,
		Meningioma: sum.Meningioma / n,
		NoTumor:    sum.NoTumor / n,
		Pituitary:  sum.Pituitary / n,
	}
}
