// Package output provides utilities for formatting and displaying forecast results.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/internal/validate"
	"github.com/iwvelando/reserve-forecast/pkg/format"
	"github.com/iwvelando/reserve-forecast/pkg/optimization"
)

// Theme colors
var (
	colorBorder = lipgloss.Color("#575653")
	colorText   = lipgloss.Color("#FFFCF0")
	colorAccent = lipgloss.Color("#3AA99F")
	colorRed    = lipgloss.Color("#D14D41")
	colorMuted  = lipgloss.Color("#6F6E69")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	negativeStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// PrettyHeaders are the columns of the terminal forecast table.
var PrettyHeaders = []string{
	"Year", "Beginning", "Contributions", "Interest", "Expenses", "Ending",
	"Fully Funded", "% Funded", "Coverage 5yr",
}

// CsvHeaders are the columns written by CsvFormat.
var CsvHeaders = []string{
	"year", "beginning_balance", "contributions", "interest", "expenses", "ending_balance",
	"fully_funded_balance", "percent_funded", "coverage_5yr",
	"cumulative_contributions", "cumulative_interest",
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, scenarioName string, years []model.ForecastYear, summary *model.Summary) {
	fmt.Fprintln(w, titleStyle.Render("Reserve forecast for scenario "+scenarioName))

	rows := make([][]string, len(years))
	for i, fy := range years {
		ffb := format.NotApplicable
		if fy.FullyFundedBalance != nil {
			ffb = format.Currency(*fy.FullyFundedBalance)
		}
		rows[i] = []string{
			strconv.Itoa(fy.Year),
			format.Currency(fy.BeginningBalance),
			format.Currency(fy.Contributions),
			format.Currency(fy.Interest),
			format.Currency(fy.Expenses),
			format.Currency(fy.EndingBalance),
			ffb,
			format.Percent(fy.PercentFunded),
			format.Multiple(fy.Coverage5yr),
		}
	}

	widths := make([]int, len(PrettyHeaders))
	for i, h := range PrettyHeaders {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	cells := make([]string, len(PrettyHeaders))
	for i, h := range PrettyHeaders {
		cells[i] = headerStyle.Render(fmt.Sprintf("%-*s", widths[i], h))
	}
	fmt.Fprintln(w, strings.Join(cells, " | "))
	for i := range cells {
		cells[i] = mutedStyle.Render(strings.Repeat("_", widths[i]))
	}
	fmt.Fprintln(w, strings.Join(cells, " | "))

	for r, row := range rows {
		for i, cell := range row {
			padded := fmt.Sprintf("%*s", widths[i], cell)
			if i == 0 {
				padded = fmt.Sprintf("%-*s", widths[i], cell)
			}
			// Ending balance column
			if i == 5 && years[r].EndingBalance < 0 {
				padded = negativeStyle.Render(padded)
			}
			cells[i] = padded
		}
		fmt.Fprintln(w, strings.Join(cells, " | "))
	}

	if summary == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Lowest ending balance: %s (%d)\n",
		format.Currency(summary.LowestEndingBalance), summary.LowestBalanceYear)
	fmt.Fprintf(w, "Final ending balance: %s\n", format.Currency(summary.FinalEndingBalance))
	fmt.Fprintf(w, "Negative balance years: %d\n", summary.NegativeBalanceYears)
	fmt.Fprintf(w, "Schedule items: %d\n", summary.ScheduleItems)
}

// CsvFormat outputs in comma-separated value format. Ratios without a value
// are left empty.
func CsvFormat(w io.Writer, years []model.ForecastYear) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CsvHeaders); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, fy := range years {
		record := []string{
			strconv.Itoa(fy.Year),
			money(fy.BeginningBalance),
			money(fy.Contributions),
			money(fy.Interest),
			money(fy.Expenses),
			money(fy.EndingBalance),
			optional(fy.FullyFundedBalance),
			optional(fy.PercentFunded),
			optional(fy.Coverage5yr),
			money(fy.CumulativeContributions),
			money(fy.CumulativeInterest),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row for %d: %w", fy.Year, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ValidationReport writes every warning and then every error, one per line.
func ValidationReport(w io.Writer, result validate.Result) {
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warning)
	}
	for _, msg := range result.ErrorMessages() {
		fmt.Fprintf(w, "ERROR: %s\n", msg)
	}
}

// SolveReport describes a solver result.
func SolveReport(w io.Writer, scenarioName string, result *optimization.Summary) {
	fmt.Fprintln(w, titleStyle.Render("Level contribution for scenario "+scenarioName))
	fmt.Fprintf(w, "Annual contribution: %s\n", format.Currency(result.Contribution))
	fmt.Fprintf(w, "Floor: %s\n", format.Currency(result.Floor))
	fmt.Fprintf(w, "Lowest ending balance: %s (%d)\n", format.Currency(result.MinBalance), result.MinBalanceYear)
	fmt.Fprintf(w, "Iterations: %d\n", result.Iterations)
	fmt.Fprintf(w, "Converged: %t\n", result.Converged)
	for _, note := range result.Notes {
		fmt.Fprintf(w, "Note: %s\n", note)
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
