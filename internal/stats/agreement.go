package stats

import "math"

// Agreement is the qualitative reading of a correlation coefficient.
type Agreement string

const (
	AgreementVeryStrong Agreement = "very strong"
	AgreementStrong     Agreement = "strong"
	AgreementModerate   Agreement = "moderate"
	AgreementWeak       Agreement = "weak"
	AgreementNone       Agreement = "very weak or none"
)

// agreementTiers is ordered from the highest lower bound down.
var agreementTiers = []struct {
	min  float64
	tier Agreement
}{
	{0.9, AgreementVeryStrong},
	{0.7, AgreementStrong},
	{0.5, AgreementModerate},
	{0.3, AgreementWeak},
}

// ClassifyCorrelation maps |r| onto the fixed agreement tiers.
func ClassifyCorrelation(r float64) Agreement {
	abs := math.Abs(r)
	for _, t := range agreementTiers {
		if abs >= t.min {
			return t.tier
		}
	}
	return AgreementNone
}

// Description returns the sentence-case label used in reports,
// e.g. "Strong agreement".
func (a Agreement) Description() string {
	switch a {
	case AgreementVeryStrong:
		return "Very strong agreement"
	case AgreementStrong:
		return "Strong agreement"
	case AgreementModerate:
		return "Moderate agreement"
	case AgreementWeak:
		return "Weak agreement"
	default:
		return "Very weak or no agreement"
	}
}

// InterpretCorrelation is shorthand for ClassifyCorrelation(r).Description().
func InterpretCorrelation(r float64) string {
	return ClassifyCorrelation(r).Description()
}
