package stats

import (
	"math"

	"github.com/sotruth/dualtrack/internal/domain"
)

// TotalScorePairs returns one (human, ai) total-score pair per human
// evaluation that has an AI counterpart, using the same first-match
// pairing as ComputeDiscrepancies.
func TotalScorePairs(humanEvals, aiEvals []domain.Evaluation) (human, ai []float64) {
	idx := aiIndex(aiEvals)
	for _, h := range humanEvals {
		a, ok := idx[h.ApplicationID]
		if !ok {
			continue
		}
		human = append(human, h.TotalScore)
		ai = append(ai, a.TotalScore)
	}
	return human, ai
}

// Correlate returns the Pearson correlation of paired total scores. It
// returns 0 when there are no pairs or either side has zero variance, and
// never returns NaN. The result is clamped to [-1, 1].
func Correlate(humanEvals, aiEvals []domain.Evaluation) float64 {
	return Pearson(TotalScorePairs(humanEvals, aiEvals))
}

// Pearson computes the Pearson correlation coefficient of x and y using
// centered sums. Mismatched lengths, empty input and zero variance all
// yield 0.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	mx, my := mean(x), mean(y)
	var num, dx2, dy2 float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		num += dx * dy
		dx2 += dx * dx
		dy2 += dy * dy
	}

	denom := math.Sqrt(dx2 * dy2)
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}
	r := num / denom
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

func mean(xs []float64) float64 {
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}
