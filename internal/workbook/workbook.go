// Package workbook renders a built scenario run as an xlsx workbook. Computed
// values are written as-is; the Forecast sheet also carries live formula
// columns that repeat the roll-forward so reviewers can edit contributions and
// watch balances move.
package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iwvelando/reserve-forecast/internal/audit"
	"github.com/iwvelando/reserve-forecast/internal/scenario"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet names.
const (
	SheetReadme     = "README"
	SheetInputs     = "Inputs"
	SheetComponents = "Components"
	SheetSchedule   = "Schedule"
	SheetForecast   = "Forecast"
	SheetChecks     = "Checks"
	SheetDashboard  = "Dashboard"
	SheetAudit      = "Audit"
)

// Inputs sheet cells referenced by formulas.
const (
	inputBeginningBalance = "$B$3"
	inputReturnRate       = "$B$5"
)

// ForecastHeaders are the Forecast sheet columns A onwards.
var ForecastHeaders = []string{
	"Year",
	"Beginning Balance",
	"Contributions",
	"Interest",
	"Expenses",
	"Ending Balance",
	"Fully Funded Balance",
	"Percent Funded",
	"Coverage 5yr",
	"Cumulative Contributions",
	"Cumulative Interest",
	"What-if Beginning",
	"What-if Interest",
	"What-if Ending",
}

// FileName returns the workbook name for scenario.
func FileName(scenarioName string) string {
	return constants.WorkbookPrefix + scenarioName + ".xlsx"
}

type writer struct {
	f        *excelize.File
	currency int
	percent  int
	ratio    int
	header   int
	err      error
}

func (w *writer) set(sheet string, col, row int, value interface{}) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellValue(sheet, cell, value)
}

func (w *writer) formula(sheet string, col, row int, formula string) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellFormula(sheet, cell, formula)
}

func (w *writer) style(sheet string, fromCol, fromRow, toCol, toRow, style int) {
	if w.err != nil || toRow < fromRow {
		return
	}
	from, err := excelize.CoordinatesToCellName(fromCol, fromRow)
	if err != nil {
		w.err = err
		return
	}
	to, err := excelize.CoordinatesToCellName(toCol, toRow)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellStyle(sheet, from, to, style)
}

func (w *writer) headerRow(sheet string, headers ...string) {
	for i, h := range headers {
		w.set(sheet, i+1, 1, h)
	}
	w.style(sheet, 1, 1, len(headers), 1, w.header)
}

func (w *writer) sheet(name string) {
	if w.err != nil {
		return
	}
	_, w.err = w.f.NewSheet(name)
}

// Render builds the workbook for run in memory. run must have been built.
func Render(run *scenario.Run) (*excelize.File, error) {
	if run == nil || !run.Built() {
		return nil, fmt.Errorf("cannot render a scenario that did not build")
	}

	f := excelize.NewFile()
	w := &writer{f: f}
	if w.err = f.SetSheetName("Sheet1", SheetReadme); w.err != nil {
		return nil, w.err
	}
	w.currency, w.err = f.NewStyle(&excelize.Style{NumFmt: 4})
	if w.err == nil {
		w.percent, w.err = f.NewStyle(&excelize.Style{NumFmt: 10})
	}
	if w.err == nil {
		w.ratio, w.err = f.NewStyle(&excelize.Style{NumFmt: 2})
	}
	if w.err == nil {
		w.header, w.err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	}

	writeReadme(w, run)
	writeInputs(w, run)
	writeComponents(w, run)
	writeSchedule(w, run)
	writeForecast(w, run)
	if run.Config.Features.EnableChecks {
		writeChecks(w, run)
	}
	if run.Config.Features.EnableDashboard {
		writeDashboard(w, run)
	}
	if run.Audit != nil {
		writeAudit(w, run.Audit)
	}

	if w.err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to render workbook: %w", w.err)
	}
	return f, nil
}

// Write renders run and saves it into dist, returning the file path.
func Write(logger *zap.Logger, run *scenario.Run, dist string) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := Render(run)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if err := os.MkdirAll(dist, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dist, err)
	}
	path := filepath.Join(dist, FileName(run.Scenario))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook %s: %w", path, err)
	}

	logger.Info("wrote workbook",
		zap.String("op", "workbook.Write"),
		zap.String("path", path),
		zap.String("run_id", run.ID),
	)
	return path, nil
}

// Clean removes generated workbooks from dist and returns how many it removed.
// A missing dist directory is not an error.
func Clean(logger *zap.Logger, dist string) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	matches, err := filepath.Glob(filepath.Join(dist, constants.WorkbookPrefix+"*.xlsx"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed++
		logger.Debug("removed workbook",
			zap.String("op", "workbook.Clean"),
			zap.String("path", path),
		)
	}
	return removed, nil
}

func writeReadme(w *writer, run *scenario.Run) {
	lines := []string{
		"Reserve Forecast",
		"Scenario: " + run.Scenario,
		"Run ID: " + run.ID,
		"",
		"Inputs: assumptions used for this run.",
		"Components: capital expense definitions as read.",
		"Schedule: every dated expense event, by year then component order.",
		"Forecast: yearly roll-forward. Columns L to N recompute balances from the Inputs sheet and are safe to edit.",
		"Blank Percent Funded or Coverage cells mean the metric has no value that year.",
	}
	if run.Config.Features.EnableChecks {
		lines = append(lines, "Checks: balance and expense counts.")
	}
	if run.Config.Features.EnableDashboard {
		lines = append(lines, "Dashboard: headline figures.")
	}
	if run.Audit != nil {
		lines = append(lines, "Audit: independent recomputation of every forecast figure.")
	}
	for i, line := range lines {
		w.set(SheetReadme, 1, i+1, line)
	}
	w.style(SheetReadme, 1, 1, 1, 1, w.header)
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetReadme, "A", "A", 100)
	}
}

func writeInputs(w *writer, run *scenario.Run) {
	w.sheet(SheetInputs)
	conf := run.Config
	rows := []struct {
		key   string
		value interface{}
	}{
		{"starting_year", conf.StartingYear},
		{"beginning_reserve_balance", conf.BeginningReserveBalance},
		{"inflation_rate", conf.InflationRate},
		{"investment_return_rate", conf.InvestmentReturnRate},
		{"spend_inflation_timing", conf.SpendInflationTiming},
		{"spend_inflation_offset", conf.Offset()},
		{"forecast_years", conf.ForecastYears},
		{"max_components_rows", conf.Features.MaxComponentsRows},
		{"max_schedule_rows", conf.Features.MaxScheduleRows},
		{"enable_schedule_expansion", conf.Features.EnableScheduleExpansion},
		{"enable_checks", conf.Features.EnableChecks},
		{"enable_dashboard", conf.Features.EnableDashboard},
		{"enable_audit", conf.Features.EnableAudit},
	}
	w.headerRow(SheetInputs, "Input", "Value")
	for i, r := range rows {
		w.set(SheetInputs, 1, i+2, r.key)
		w.set(SheetInputs, 2, i+2, r.value)
	}
	w.style(SheetInputs, 2, 3, 2, 3, w.currency)
	w.style(SheetInputs, 2, 4, 2, 5, w.percent)
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetInputs, "A", "A", 28)
	}
}

func writeComponents(w *writer, run *scenario.Run) {
	w.sheet(SheetComponents)
	w.headerRow(SheetComponents, "Row", "ID", "Name", "Category", "Base Cost", "Recurring", "Interval Years", "Spend Year", "Include")
	for i, c := range run.Components {
		r := i + 2
		w.set(SheetComponents, 1, r, c.Row)
		w.set(SheetComponents, 2, r, c.ID)
		w.set(SheetComponents, 3, r, c.Name)
		w.set(SheetComponents, 4, r, c.Category)
		w.set(SheetComponents, 5, r, c.BaseCost)
		w.set(SheetComponents, 6, r, string(c.Recurring))
		if c.IntervalYears != nil {
			w.set(SheetComponents, 7, r, *c.IntervalYears)
		}
		if c.SpendYear != nil {
			w.set(SheetComponents, 8, r, *c.SpendYear)
		}
		w.set(SheetComponents, 9, r, string(c.Include))
	}
	w.style(SheetComponents, 5, 2, 5, len(run.Components)+1, w.currency)
}

func writeSchedule(w *writer, run *scenario.Run) {
	w.sheet(SheetSchedule)
	w.headerRow(SheetSchedule, "Year", "Component ID", "Component Name", "Component Row", "Base Cost", "Amount")
	for i, e := range run.Schedule.Events {
		r := i + 2
		w.set(SheetSchedule, 1, r, e.Year)
		w.set(SheetSchedule, 2, r, e.ComponentID)
		w.set(SheetSchedule, 3, r, e.ComponentName)
		w.set(SheetSchedule, 4, r, e.ComponentRow)
		w.set(SheetSchedule, 5, r, e.BaseCost)
		w.set(SheetSchedule, 6, r, e.Amount)
	}
	w.style(SheetSchedule, 5, 2, 6, len(run.Schedule.Events)+1, w.currency)
}

func writeForecast(w *writer, run *scenario.Run) {
	w.sheet(SheetForecast)
	w.headerRow(SheetForecast, ForecastHeaders...)

	for i, fy := range run.Forecast {
		r := i + 2
		w.set(SheetForecast, 1, r, fy.Year)
		w.set(SheetForecast, 2, r, fy.BeginningBalance)
		w.set(SheetForecast, 3, r, fy.Contributions)
		w.set(SheetForecast, 4, r, fy.Interest)
		w.set(SheetForecast, 5, r, fy.Expenses)
		w.set(SheetForecast, 6, r, fy.EndingBalance)
		if fy.FullyFundedBalance != nil {
			w.set(SheetForecast, 7, r, *fy.FullyFundedBalance)
		}
		if fy.PercentFunded != nil {
			w.set(SheetForecast, 8, r, *fy.PercentFunded)
		}
		if fy.Coverage5yr != nil {
			w.set(SheetForecast, 9, r, *fy.Coverage5yr)
		}
		w.set(SheetForecast, 10, r, fy.CumulativeContributions)
		w.set(SheetForecast, 11, r, fy.CumulativeInterest)

		if i == 0 {
			w.formula(SheetForecast, 12, r, fmt.Sprintf("%s!%s", SheetInputs, inputBeginningBalance))
		} else {
			w.formula(SheetForecast, 12, r, fmt.Sprintf("N%d", r-1))
		}
		w.formula(SheetForecast, 13, r, fmt.Sprintf("L%d*%s!%s", r, SheetInputs, inputReturnRate))
		w.formula(SheetForecast, 14, r, fmt.Sprintf("L%d+C%d+M%d-E%d", r, r, r, r))
	}

	last := len(run.Forecast) + 1
	w.style(SheetForecast, 2, 2, 7, last, w.currency)
	w.style(SheetForecast, 8, 2, 8, last, w.percent)
	w.style(SheetForecast, 9, 2, 9, last, w.ratio)
	w.style(SheetForecast, 10, 2, 14, last, w.currency)
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetForecast, "A", "N", 18)
	}
}

func writeChecks(w *writer, run *scenario.Run) {
	w.sheet(SheetChecks)
	last := len(run.Forecast) + 1
	w.headerRow(SheetChecks, "Check", "Value", "Live")

	w.set(SheetChecks, 1, 2, "Negative balance years")
	w.set(SheetChecks, 2, 2, run.Summary.NegativeBalanceYears)
	w.formula(SheetChecks, 3, 2, fmt.Sprintf(`COUNTIF(%s!F2:F%d,"<0")`, SheetForecast, last))

	w.set(SheetChecks, 1, 3, "Zero expense years")
	w.set(SheetChecks, 2, 3, run.Summary.ZeroExpenseYears)
	w.formula(SheetChecks, 3, 3, fmt.Sprintf(`COUNTIF(%s!E2:E%d,0)`, SheetForecast, last))

	w.set(SheetChecks, 1, 4, "Schedule items")
	w.set(SheetChecks, 2, 4, run.Summary.ScheduleItems)
	w.formula(SheetChecks, 3, 4, fmt.Sprintf(`COUNTA(%s!A2:A%d)`, SheetSchedule, run.Schedule.Rows()+1))

	w.set(SheetChecks, 1, 5, "Forecast years")
	w.set(SheetChecks, 2, 5, run.Summary.ForecastYears)
	w.formula(SheetChecks, 3, 5, fmt.Sprintf(`COUNT(%s!A2:A%d)`, SheetForecast, last))

	w.set(SheetChecks, 1, 6, "Validation warnings")
	w.set(SheetChecks, 2, 6, len(run.Validation.Warnings))
	for i, warning := range run.Validation.Warnings {
		w.set(SheetChecks, 1, 8+i, warning)
	}
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetChecks, "A", "A", 60)
	}
}

func writeDashboard(w *writer, run *scenario.Run) {
	w.sheet(SheetDashboard)
	s := run.Summary
	last := len(run.Forecast) + 1
	w.headerRow(SheetDashboard, "Metric", "Value")
	rows := []struct {
		label string
		value interface{}
	}{
		{"Lowest ending balance", s.LowestEndingBalance},
		{"Lowest balance year", s.LowestBalanceYear},
		{"Final ending balance", s.FinalEndingBalance},
		{"Total contributions", s.TotalContributions},
		{"Total interest", s.TotalInterest},
		{"Total expenses", s.TotalExpenses},
	}
	for i, r := range rows {
		w.set(SheetDashboard, 1, i+2, r.label)
		w.set(SheetDashboard, 2, i+2, r.value)
	}
	w.style(SheetDashboard, 2, 2, 2, 2, w.currency)
	w.style(SheetDashboard, 2, 4, 2, 7, w.currency)
	w.set(SheetDashboard, 1, 9, "What-if lowest ending balance")
	w.formula(SheetDashboard, 2, 9, fmt.Sprintf("MIN(%s!N2:N%d)", SheetForecast, last))
	w.style(SheetDashboard, 2, 9, 2, 9, w.currency)
	if w.err == nil {
		w.err = w.f.SetColWidth(SheetDashboard, "A", "A", 32)
	}
}

func writeAudit(w *writer, result *audit.Result) {
	w.sheet(SheetAudit)
	w.set(SheetAudit, 1, 1, "Checked")
	w.set(SheetAudit, 2, 1, result.Checked)
	w.set(SheetAudit, 1, 2, "Failures")
	w.set(SheetAudit, 2, 2, result.Failures)

	header := 4
	w.set(SheetAudit, 1, header, "Year")
	for i, column := range audit.Columns {
		w.set(SheetAudit, i+2, header, column)
	}
	w.style(SheetAudit, 1, header, len(audit.Columns)+1, header, w.header)

	grid := result.Grid()
	row := header + 1
	seen := make(map[int]bool)
	for _, check := range result.Checks {
		if seen[check.Year] {
			continue
		}
		seen[check.Year] = true
		w.set(SheetAudit, 1, row, check.Year)
		for i, column := range audit.Columns {
			status := "FAIL"
			if grid[check.Year][column] {
				status = "PASS"
			}
			w.set(SheetAudit, i+2, row, status)
		}
		row++
	}

	if len(result.Mismatches) > 0 {
		row++
		w.set(SheetAudit, 1, row, "Mismatches")
		for _, m := range result.Mismatches {
			row++
			w.set(SheetAudit, 1, row, strings.TrimSpace(m.Message))
		}
	}
}
