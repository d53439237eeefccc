package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/sotruth/dualtrack/internal/domain"
)

var discrepancyHeaders = []string{"Application", "Criterion", "Human", "AI", "Difference", "Percent"}

// newTable creates a markdown-styled table writer.
func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// WriteDiscrepancyTable writes one row per discrepancy, in the given order.
func WriteDiscrepancyTable(w io.Writer, ds []domain.ScoreDiscrepancy) error {
	table := newTable(discrepancyHeaders, w)
	for _, d := range ds {
		row := []string{
			strconv.FormatInt(d.ApplicationID, 10),
			d.CriterionID,
			number(d.HumanScore),
			number(d.AIScore),
			signed(d.Difference),
			number(d.PercentDifference) + "%",
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append discrepancy row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render discrepancy table: %w", err)
	}
	return nil
}

// WriteSummaryTable writes the analysis headline figures as a two-column table.
func WriteSummaryTable(w io.Writer, analysis domain.BiasAnalysis) error {
	table := newTable([]string{"Metric", "Value"}, w)
	rows := [][]string{
		{"Overall correlation", strconv.FormatFloat(analysis.OverallCorrelation, 'f', 3, 64)},
		{"Average score difference", strconv.FormatFloat(analysis.AverageScoreDifference, 'f', 2, 64)},
		{"Significant discrepancies", strconv.Itoa(len(analysis.SignificantDiscrepancies))},
		{"Bias indicators", strconv.Itoa(len(analysis.BiasIndicators))},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append summary row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render summary table: %w", err)
	}
	return nil
}
