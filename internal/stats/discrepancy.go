// Package stats computes the deterministic agreement statistics between
// the human and AI scoring tracks. Every function is pure: no I/O and no
// shared mutable state, so callers may run them concurrently on disjoint
// inputs.
package stats

import (
	"cmp"
	"math"
	"slices"

	"github.com/sotruth/dualtrack/internal/domain"
)

// aiIndex maps each application id to its first AI evaluation. At most one
// AI evaluation per application is expected; later duplicates are ignored.
func aiIndex(aiEvals []domain.Evaluation) map[int64]*domain.Evaluation {
	idx := make(map[int64]*domain.Evaluation, len(aiEvals))
	for i := range aiEvals {
		if _, seen := idx[aiEvals[i].ApplicationID]; !seen {
			idx[aiEvals[i].ApplicationID] = &aiEvals[i]
		}
	}
	return idx
}

// ComputeDiscrepancies pairs every human evaluation with the AI evaluation
// of the same application and returns one discrepancy per criterion scored
// on both sides. Several human evaluations of one application each pair
// with the same AI evaluation. Human evaluations without an AI counterpart
// and criteria missing on either side are skipped.
//
// The result follows human evaluation order, then the human evaluation's
// criterion order. It is never nil.
func ComputeDiscrepancies(humanEvals, aiEvals []domain.Evaluation) []domain.ScoreDiscrepancy {
	out := make([]domain.ScoreDiscrepancy, 0)
	if len(humanEvals) == 0 || len(aiEvals) == 0 {
		return out
	}

	idx := aiIndex(aiEvals)
	for _, human := range humanEvals {
		ai, ok := idx[human.ApplicationID]
		if !ok {
			continue
		}
		for _, hs := range human.CriterionScores {
			as, ok := ai.ScoreFor(hs.CriterionID)
			if !ok {
				continue
			}
			out = append(out, NewDiscrepancy(human.ApplicationID, hs.CriterionID, hs.Score, as.Score))
		}
	}
	return out
}

// NewDiscrepancy builds the discrepancy for one pair of scores.
func NewDiscrepancy(applicationID int64, criterionID string, human, ai float64) domain.ScoreDiscrepancy {
	diff := human - ai
	return domain.ScoreDiscrepancy{
		ApplicationID:     applicationID,
		CriterionID:       criterionID,
		HumanScore:        human,
		AIScore:           ai,
		Difference:        diff,
		PercentDifference: PercentDifference(human, ai),
	}
}

// PercentDifference returns (human-ai)/ai*100 rounded to one decimal.
// When ai is exactly 0 it returns (human-ai)*100 instead of dividing.
func PercentDifference(human, ai float64) float64 {
	diff := human - ai
	var pct float64
	if ai != 0 {
		pct = diff / ai * 100
	} else {
		pct = diff * 100
	}
	return domain.Round(pct, 1)
}

// AverageAbsoluteDifference returns the mean of |difference| across ds,
// rounded to two decimals. It returns 0 for an empty slice.
func AverageAbsoluteDifference(ds []domain.ScoreDiscrepancy) float64 {
	if len(ds) == 0 {
		return 0
	}
	var sum float64
	for _, d := range ds {
		sum += math.Abs(d.Difference)
	}
	return domain.Round(sum/float64(len(ds)), 2)
}

// IsSignificant reports whether |difference| strictly exceeds the
// significance threshold.
func IsSignificant(d domain.ScoreDiscrepancy) bool {
	return math.Abs(d.Difference) > domain.SignificanceThreshold
}

// SignificantDiscrepancies returns the significant entries of ds in their
// original order.
func SignificantDiscrepancies(ds []domain.ScoreDiscrepancy) []domain.ScoreDiscrepancy {
	out := make([]domain.ScoreDiscrepancy, 0)
	for _, d := range ds {
		if IsSignificant(d) {
			out = append(out, d)
		}
	}
	return out
}

// TopDiscrepancies returns at most limit significant discrepancies ordered
// by |difference| descending. Ties keep their original relative order.
func TopDiscrepancies(ds []domain.ScoreDiscrepancy, limit int) []domain.ScoreDiscrepancy {
	sig := SignificantDiscrepancies(ds)
	slices.SortStableFunc(sig, func(a, b domain.ScoreDiscrepancy) int {
		return cmp.Compare(math.Abs(b.Difference), math.Abs(a.Difference))
	})
	if limit >= 0 && len(sig) > limit {
		sig = sig[:limit]
	}
	return sig
}
