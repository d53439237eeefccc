package stats

import "github.com/sotruth/dualtrack/internal/domain"

// Summary bundles every statistic an analysis run needs. All fields are
// derived deterministically from the two evaluation sets.
type Summary struct {
	// Discrepancies holds every per-criterion discrepancy.
	Discrepancies []domain.ScoreDiscrepancy

	// Significant holds the significant discrepancies in pairing order.
	Significant []domain.ScoreDiscrepancy

	// Top holds up to domain.MaxSignificantDiscrepancies significant
	// discrepancies, largest |difference| first.
	Top []domain.ScoreDiscrepancy

	// Correlation is the unrounded Pearson coefficient of total scores.
	Correlation float64

	// AverageDifference is the mean |difference|, rounded to two decimals.
	AverageDifference float64

	// HumanEvaluations counts the human evaluations considered.
	HumanEvaluations int
}

// Summarize computes the discrepancy set, correlation and aggregate
// statistics for one pair of evaluation tracks.
func Summarize(humanEvals, aiEvals []domain.Evaluation) Summary {
	ds := ComputeDiscrepancies(humanEvals, aiEvals)
	return Summary{
		Discrepancies:     ds,
		Significant:       SignificantDiscrepancies(ds),
		Top:               TopDiscrepancies(ds, domain.MaxSignificantDiscrepancies),
		Correlation:       Correlate(humanEvals, aiEvals),
		AverageDifference: AverageAbsoluteDifference(ds),
		HumanEvaluations:  len(humanEvals),
	}
}

// RoundedCorrelation returns the correlation rounded to three decimals.
func (s Summary) RoundedCorrelation() float64 {
	return domain.Round(s.Correlation, 3)
}
