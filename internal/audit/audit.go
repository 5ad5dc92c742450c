// Package audit recomputes a forecast with decimal arithmetic, independently
// of the forecast and schedule packages, and compares the published figures
// against it. Disagreements are reported as data; nothing is modified.
package audit

import (
	"fmt"
	"math"

	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Audited columns, in display order.
const (
	ColumnBeginningBalance        = "beginning_balance"
	ColumnContributions           = "contributions"
	ColumnInterest                = "interest"
	ColumnExpenses                = "expenses"
	ColumnEndingBalance           = "ending_balance"
	ColumnFullyFundedBalance      = "fully_funded_balance"
	ColumnPercentFunded           = "percent_funded"
	ColumnCoverage5yr             = "coverage_5yr"
	ColumnCumulativeContributions = "cumulative_contributions"
	ColumnCumulativeInterest      = "cumulative_interest"
)

// Columns lists every audited ForecastYear column.
var Columns = []string{
	ColumnBeginningBalance,
	ColumnContributions,
	ColumnInterest,
	ColumnExpenses,
	ColumnEndingBalance,
	ColumnFullyFundedBalance,
	ColumnPercentFunded,
	ColumnCoverage5yr,
	ColumnCumulativeContributions,
	ColumnCumulativeInterest,
}

var ratioColumns = map[string]bool{
	ColumnPercentFunded: true,
	ColumnCoverage5yr:   true,
}

// Check is one cell of the audit grid.
type Check struct {
	Year      int      `json:"year"`
	Column    string   `json:"column"`
	Published *float64 `json:"published"`
	Expected  *float64 `json:"expected"`
	Pass      bool     `json:"pass"`
}

// EventCheck compares one published schedule event amount.
type EventCheck struct {
	Index       int     `json:"index"`
	Year        int     `json:"year"`
	ComponentID string  `json:"component_id"`
	Published   float64 `json:"published"`
	Expected    float64 `json:"expected"`
	Pass        bool    `json:"pass"`
}

// Mismatch describes a failed check.
type Mismatch struct {
	Year    int    `json:"year"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// Result is the outcome of one audit.
type Result struct {
	Checks     []Check      `json:"checks"`
	Events     []EventCheck `json:"events"`
	Mismatches []Mismatch   `json:"mismatches"`
	Checked    int          `json:"checked"`
	Failures   int          `json:"failures"`
}

// Passed reports whether every check agreed within tolerance.
func (r Result) Passed() bool {
	return r.Failures == 0
}

// Grid returns pass/fail per year and column.
func (r Result) Grid() map[int]map[string]bool {
	grid := make(map[int]map[string]bool)
	for _, c := range r.Checks {
		if grid[c.Year] == nil {
			grid[c.Year] = make(map[string]bool, len(Columns))
		}
		grid[c.Year][c.Column] = c.Pass
	}
	return grid
}

// Input carries the published results and the inputs they were derived from.
type Input struct {
	Config     config.Configuration
	Components []model.Component
	// Contributions are the raw plan rows, duplicates included.
	Contributions []model.ContributionRow
	Events        []model.ScheduleEvent
	Years         []model.ForecastYear
}

// ledger is the decimal re-computation of one forecast year.
type ledger struct {
	values map[string]*decimal.Decimal
}

type engine struct {
	conf       config.Configuration
	one        decimal.Decimal
	growth     decimal.Decimal
	halfGrowth decimal.Decimal
	offset     float64
}

func newEngine(conf config.Configuration) engine {
	one := decimal.NewFromInt(1)
	growth := one.Add(decimal.NewFromFloat(conf.InflationRate))
	offset, err := config.ParseSpendInflationTiming(conf.SpendInflationTiming)
	if err != nil {
		offset = 1.0
	}
	return engine{
		conf:       conf,
		one:        one,
		growth:     growth,
		halfGrowth: decimal.NewFromFloat(math.Sqrt(1 + conf.InflationRate)),
		offset:     offset,
	}
}

// inflate escalates base to year by repeated multiplication. A half-year
// offset is applied as the square root of the annual growth factor.
func (e engine) inflate(base float64, year int) decimal.Decimal {
	amount := decimal.NewFromFloat(base)
	for i := 0; i < year-e.conf.StartingYear; i++ {
		amount = amount.Mul(e.growth)
	}
	switch e.offset {
	case 1.0:
		amount = amount.Mul(e.growth)
	case 0.5:
		amount = amount.Mul(e.halfGrowth)
	}
	return amount
}

// occurrences lists the in-window years a component is spent in.
func (e engine) occurrences(c model.Component) []int {
	if c.Include != constants.FlagYes {
		return nil
	}
	last := e.conf.StartingYear + e.conf.ForecastYears - 1
	if c.Recurring == constants.FlagYes {
		if c.IntervalYears == nil || *c.IntervalYears <= 0 {
			return nil
		}
		interval := *c.IntervalYears
		if last < e.conf.StartingYear {
			return nil
		}
		count := (last-e.conf.StartingYear)/interval + 1
		years := make([]int, count)
		for k := range years {
			years[k] = e.conf.StartingYear + k*interval
		}
		return years
	}
	if c.SpendYear == nil || *c.SpendYear < e.conf.StartingYear || *c.SpendYear > last {
		return nil
	}
	return []int{*c.SpendYear}
}

// target returns a component's accrued share of its inflated cost in year.
func (e engine) target(c model.Component, year int) decimal.Decimal {
	cost := e.inflate(c.BaseCost, year)
	elapsed := int64(year - e.conf.StartingYear)
	if c.Recurring == constants.FlagYes {
		interval := int64(*c.IntervalYears)
		return cost.Mul(decimal.NewFromInt(elapsed % interval)).Div(decimal.NewFromInt(interval))
	}
	spend := int64(*c.SpendYear)
	if int64(year) > spend {
		return decimal.Zero
	}
	span := spend - int64(e.conf.StartingYear)
	if span <= 0 {
		return cost
	}
	fraction := decimal.NewFromInt(elapsed).Div(decimal.NewFromInt(span))
	if fraction.GreaterThan(e.one) {
		fraction = e.one
	}
	if fraction.IsNegative() {
		fraction = decimal.Zero
	}
	return cost.Mul(fraction)
}

func ratio(numerator, denominator decimal.Decimal) *decimal.Decimal {
	if !denominator.IsPositive() {
		return nil
	}
	r := numerator.Div(denominator)
	return &r
}

func (e engine) recompute(components []model.Component, contributions []model.ContributionRow) []ledger {
	n := e.conf.ForecastYears
	if n <= 0 {
		return nil
	}
	start := e.conf.StartingYear

	plan := make([]decimal.Decimal, n)
	for _, row := range contributions {
		if idx := row.Year - start; idx >= 0 && idx < n {
			plan[idx] = decimal.NewFromFloat(row.Amount)
		}
	}

	expenses := make([]decimal.Decimal, n)
	var active []model.Component
	expand := e.conf.Features.EnableScheduleExpansion
	if expand {
		for _, c := range components {
			years := e.occurrences(c)
			if len(years) == 0 {
				continue
			}
			active = append(active, c)
			for _, y := range years {
				expenses[y-start] = expenses[y-start].Add(e.inflate(c.BaseCost, y))
			}
		}
	}

	rate := decimal.NewFromFloat(e.conf.InvestmentReturnRate)
	balance := decimal.NewFromFloat(e.conf.BeginningReserveBalance)
	cumContrib, cumInterest := decimal.Zero, decimal.Zero

	ledgers := make([]ledger, n)
	for i := 0; i < n; i++ {
		year := start + i
		interest := balance.Mul(rate)
		ending := balance.Add(plan[i]).Add(interest).Sub(expenses[i])
		cumContrib = cumContrib.Add(plan[i])
		cumInterest = cumInterest.Add(interest)

		upcoming := decimal.Zero
		for j := i; j < n && j < i+constants.CoverageWindowYears; j++ {
			upcoming = upcoming.Add(expenses[j])
		}

		begin := balance
		contrib := plan[i]
		expense := expenses[i]
		cc, ci := cumContrib, cumInterest
		values := map[string]*decimal.Decimal{
			ColumnBeginningBalance:        &begin,
			ColumnContributions:           &contrib,
			ColumnInterest:                &interest,
			ColumnExpenses:                &expense,
			ColumnEndingBalance:           &ending,
			ColumnCoverage5yr:             ratio(begin, upcoming),
			ColumnCumulativeContributions: &cc,
			ColumnCumulativeInterest:      &ci,
		}
		if expand {
			ffb := decimal.Zero
			for _, c := range active {
				ffb = ffb.Add(e.target(c, year))
			}
			values[ColumnFullyFundedBalance] = &ffb
			values[ColumnPercentFunded] = ratio(begin, ffb)
		}

		ledgers[i] = ledger{values: values}
		balance = ending
	}
	return ledgers
}

func published(fy model.ForecastYear, column string) *float64 {
	value := func(v float64) *float64 { return &v }
	switch column {
	case ColumnBeginningBalance:
		return value(fy.BeginningBalance)
	case ColumnContributions:
		return value(fy.Contributions)
	case ColumnInterest:
		return value(fy.Interest)
	case ColumnExpenses:
		return value(fy.Expenses)
	case ColumnEndingBalance:
		return value(fy.EndingBalance)
	case ColumnFullyFundedBalance:
		return fy.FullyFundedBalance
	case ColumnPercentFunded:
		return fy.PercentFunded
	case ColumnCoverage5yr:
		return fy.Coverage5yr
	case ColumnCumulativeContributions:
		return value(fy.CumulativeContributions)
	case ColumnCumulativeInterest:
		return value(fy.CumulativeInterest)
	}
	return nil
}

func (e engine) agree(column string, got *float64, want *decimal.Decimal) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	diff := decimal.NewFromFloat(*got).Sub(*want).Abs()
	if ratioColumns[column] {
		scale := want.Abs()
		if scale.IsZero() {
			return diff.LessThanOrEqual(decimal.NewFromFloat(e.conf.AuditToleranceRatio))
		}
		return diff.LessThanOrEqual(scale.Mul(decimal.NewFromFloat(e.conf.AuditToleranceRatio)))
	}
	return diff.LessThanOrEqual(decimal.NewFromFloat(e.conf.AuditToleranceAmount))
}

func render(v *float64) string {
	if v == nil {
		return "no value"
	}
	return fmt.Sprintf("%.4f", *v)
}

// Run audits in.Years and in.Events against an independent recomputation.
func Run(logger *zap.Logger, in Input) Result {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := newEngine(in.Config)
	ledgers := e.recompute(in.Components, in.Contributions)

	var result Result
	mismatch := func(year int, column, msg string) {
		result.Failures++
		result.Mismatches = append(result.Mismatches, Mismatch{Year: year, Column: column, Message: msg})
	}

	if len(in.Years) != len(ledgers) {
		mismatch(0, "years", fmt.Sprintf("published %d forecast years, expected %d", len(in.Years), len(ledgers)))
	}

	for i, fy := range in.Years {
		if i >= len(ledgers) {
			break
		}
		for _, column := range Columns {
			got := published(fy, column)
			want := ledgers[i].values[column]
			var expected *float64
			if want != nil {
				f, _ := want.Float64()
				expected = &f
			}
			pass := e.agree(column, got, want)
			result.Checked++
			result.Checks = append(result.Checks, Check{Year: fy.Year, Column: column, Published: got, Expected: expected, Pass: pass})
			if !pass {
				mismatch(fy.Year, column, fmt.Sprintf("%d %s: published %s, expected %s", fy.Year, column, render(got), render(expected)))
			}
		}
	}

	for i, event := range in.Events {
		want := e.inflate(event.BaseCost, event.Year)
		expected, _ := want.Float64()
		pass := e.agree("amount", &event.Amount, &want)
		result.Checked++
		result.Events = append(result.Events, EventCheck{
			Index:       i,
			Year:        event.Year,
			ComponentID: event.ComponentID,
			Published:   event.Amount,
			Expected:    expected,
			Pass:        pass,
		})
		if !pass {
			mismatch(event.Year, "amount", fmt.Sprintf("%d %s amount: published %.4f, expected %.4f", event.Year, event.ComponentID, event.Amount, expected))
		}
	}

	logger.Debug("audit complete",
		zap.String("op", "audit.Run"),
		zap.Int("checked", result.Checked),
		zap.Int("failures", result.Failures),
	)
	return result
}
