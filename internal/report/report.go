// Package report renders a BiasAnalysis for people: a markdown report for
// program administrators and a discrepancy table for terminals.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/stats"
)

// TopDiscrepancies is the number of discrepancies listed in a report.
const TopDiscrepancies = 10

// TimeLayout formats the report's generation time.
const TimeLayout = "2006-01-02 15:04:05 MST"

var upper = cases.Upper(language.English)

// Generate renders analysis as a markdown report: an executive summary,
// the bias indicators, numbered recommendations and the largest
// discrepancies.
func Generate(analysis domain.BiasAnalysis) string {
	var b strings.Builder

	b.WriteString("# Bias Analysis Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", analysis.AnalyzedAt.Format(TimeLayout))

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "- **Overall Correlation**: %s (%s)\n",
		strconv.FormatFloat(analysis.OverallCorrelation, 'f', 3, 64),
		stats.InterpretCorrelation(analysis.OverallCorrelation))
	fmt.Fprintf(&b, "- **Average Score Difference**: %s points\n",
		strconv.FormatFloat(analysis.AverageScoreDifference, 'f', 2, 64))
	fmt.Fprintf(&b, "- **Significant Discrepancies**: %d\n", len(analysis.SignificantDiscrepancies))
	fmt.Fprintf(&b, "- **Bias Indicators Found**: %d\n\n", len(analysis.BiasIndicators))

	b.WriteString("## Bias Indicators\n\n")
	if len(analysis.BiasIndicators) == 0 {
		b.WriteString("None identified.\n")
	}
	for i, ind := range analysis.BiasIndicators {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %d. %s (%s severity)\n\n", i+1, ind.Type, upper.String(string(ind.Severity)))
		fmt.Fprintf(&b, "%s\n\n", ind.Description)
		fmt.Fprintf(&b, "**Affected Applications**: %d\n", len(ind.AffectedApplications))
	}

	b.WriteString("\n## Recommendations\n\n")
	if len(analysis.Recommendations) == 0 {
		b.WriteString("None.\n")
	}
	for i, rec := range analysis.Recommendations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
	}

	b.WriteString("\n## Top Score Discrepancies\n\n")
	top := analysis.SignificantDiscrepancies
	if len(top) > TopDiscrepancies {
		top = top[:TopDiscrepancies]
	}
	if len(top) == 0 {
		b.WriteString("No significant discrepancies.\n")
	}
	for _, d := range top {
		fmt.Fprintf(&b, "- Application %d, Criterion %s: Difference of %s points (%s%%)\n",
			d.ApplicationID, d.CriterionID, signed(d.Difference), number(d.PercentDifference))
	}

	return b.String()
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func signed(v float64) string {
	if v > 0 {
		return "+" + number(v)
	}
	return number(v)
}
