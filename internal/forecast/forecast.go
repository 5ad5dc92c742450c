// Package forecast rolls the reserve balance forward year by year and computes
// the funding metrics for each year.
package forecast

import (
	"fmt"
	"math"

	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/internal/schedule"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/mathutil"
	"go.uber.org/zap"
)

// ResolvePlan maps each contribution year to its amount. When a year appears
// more than once the last row wins.
func ResolvePlan(rows []model.ContributionRow) map[int]float64 {
	plan := make(map[int]float64, len(rows))
	for _, row := range rows {
		plan[row.Year] = row.Amount
	}
	return plan
}

// Compute produces one ForecastYear per forecast year. The schedule must be
// the expansion of components under conf.
func Compute(logger *zap.Logger, conf config.Configuration, components []model.Component, sched schedule.Result, plan map[int]float64) []model.ForecastYear {
	if logger == nil {
		logger = zap.NewNop()
	}

	years := conf.Years()
	expenses := sched.ExpensesByYear()
	active := sched.ActiveRows()

	results := make([]model.ForecastYear, len(years))
	balance := conf.BeginningReserveBalance
	var cumulativeContributions, cumulativeInterest float64

	for i, year := range years {
		fy := model.ForecastYear{
			Year:             year,
			BeginningBalance: balance,
			Contributions:    plan[year],
			Expenses:         expenses[year],
		}
		// Interest accrues on the beginning balance only.
		fy.Interest = fy.BeginningBalance * conf.InvestmentReturnRate
		fy.EndingBalance = fy.BeginningBalance + fy.Contributions + fy.Interest - fy.Expenses

		cumulativeContributions += fy.Contributions
		cumulativeInterest += fy.Interest
		fy.CumulativeContributions = cumulativeContributions
		fy.CumulativeInterest = cumulativeInterest

		if conf.Features.EnableScheduleExpansion {
			ffb := FullyFundedBalance(conf, components, active, year)
			fy.FullyFundedBalance = &ffb
			fy.PercentFunded = mathutil.Ratio(fy.BeginningBalance, ffb)
		}

		upcoming := 0.0
		for _, y := range years[i:min(i+constants.CoverageWindowYears, len(years))] {
			upcoming += expenses[y]
		}
		fy.Coverage5yr = mathutil.Ratio(fy.BeginningBalance, upcoming)

		results[i] = fy
		balance = fy.EndingBalance
	}

	logger.Debug("computed forecast",
		zap.String("op", "forecast.Compute"),
		zap.Int("years", len(results)),
		zap.Float64("final_balance", balance),
	)
	return results
}

// FullyFundedBalance returns the target balance for year: the linearly accrued
// share of each active component's inflated cost. Only components whose row is
// in active contribute.
func FullyFundedBalance(conf config.Configuration, components []model.Component, active map[int]bool, year int) float64 {
	total := 0.0
	for _, c := range components {
		if !c.Included() || !active[c.Row] {
			continue
		}
		total += schedule.InflatedCost(conf, c.BaseCost, year) * FundedFraction(conf, c, year)
	}
	return total
}

// FundedFraction returns how much of a component's cost should be reserved
// by year. A recurring component restarts at zero on each replacement year;
// a one-time component reaches one in its spend year and is zero afterwards.
func FundedFraction(conf config.Configuration, c model.Component, year int) float64 {
	elapsed := year - conf.StartingYear
	if c.Kind() == model.KindRecurring {
		interval := c.Interval()
		if interval <= 0 {
			return 0
		}
		age := elapsed % interval
		if age < 0 {
			age += interval
		}
		return float64(age) / float64(interval)
	}

	if c.SpendYear == nil || year > *c.SpendYear {
		return 0
	}
	span := *c.SpendYear - conf.StartingYear
	if span <= 0 {
		return 1
	}
	return mathutil.Clamp(float64(elapsed)/float64(span), 0, 1)
}

// Summarize aggregates a computed forecast.
func Summarize(years []model.ForecastYear, sched schedule.Result) model.Summary {
	summary := model.Summary{
		ForecastYears: len(years),
		ScheduleItems: sched.Rows(),
	}
	if len(years) == 0 {
		return summary
	}

	summary.LowestEndingBalance = math.Inf(1)
	for _, fy := range years {
		if fy.EndingBalance < 0 {
			summary.NegativeBalanceYears++
		}
		if fy.Expenses == 0 {
			summary.ZeroExpenseYears++
		}
		if fy.EndingBalance < summary.LowestEndingBalance {
			summary.LowestEndingBalance = fy.EndingBalance
			summary.LowestBalanceYear = fy.Year
		}
		summary.TotalExpenses += fy.Expenses
	}

	last := years[len(years)-1]
	summary.FinalEndingBalance = last.EndingBalance
	summary.TotalContributions = last.CumulativeContributions
	summary.TotalInterest = last.CumulativeInterest
	return summary
}

// CheckRollForward verifies that the forecast is contiguous, that each year
// begins where the previous one ended and that the beginning balance plus
// every net flow equals the final ending balance.
func CheckRollForward(conf config.Configuration, years []model.ForecastYear, tolerance float64) error {
	if len(years) != conf.ForecastYears {
		return fmt.Errorf("forecast has %d years, expected %d", len(years), conf.ForecastYears)
	}
	if len(years) == 0 {
		return nil
	}
	if !mathutil.WithinTolerance(years[0].BeginningBalance, conf.BeginningReserveBalance, tolerance) {
		return fmt.Errorf("year %d begins at %.2f, expected %.2f",
			years[0].Year, years[0].BeginningBalance, conf.BeginningReserveBalance)
	}

	net := conf.BeginningReserveBalance
	for i, fy := range years {
		if fy.Year != conf.StartingYear+i {
			return fmt.Errorf("forecast year %d out of sequence at index %d", fy.Year, i)
		}
		if i > 0 && !mathutil.WithinTolerance(years[i-1].EndingBalance, fy.BeginningBalance, tolerance) {
			return fmt.Errorf("year %d begins at %.2f but %d ended at %.2f",
				fy.Year, fy.BeginningBalance, years[i-1].Year, years[i-1].EndingBalance)
		}
		net += fy.Contributions + fy.Interest - fy.Expenses
	}

	last := years[len(years)-1]
	if !mathutil.WithinTolerance(net, last.EndingBalance, tolerance) {
		return fmt.Errorf("net flows give %.2f but year %d ended at %.2f", net, last.Year, last.EndingBalance)
	}
	return nil
}
