// Package optimizer searches for the smallest level annual contribution that
// keeps every forecast year's ending balance at or above a floor.
package optimizer

import (
	"fmt"
	"math"

	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/forecast"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/internal/schedule"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/format"
	"github.com/iwvelando/reserve-forecast/pkg/optimization"
	"go.uber.org/zap"
)

// Runner evaluates candidate contributions against a fixed schedule.
type Runner struct {
	logger     *zap.Logger
	conf       config.Configuration
	components []model.Component
	sched      schedule.Result
}

// Options bounds the search. Zero values select the defaults.
type Options struct {
	Floor         float64  `json:"floor" yaml:"floor"`
	Min           float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Tolerance     float64  `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

type evaluation struct {
	value      float64
	minBalance float64
	minYear    int
	floor      float64
}

func (e evaluation) feasible() bool {
	return e.minBalance >= e.floor
}

func (e evaluation) headroom() float64 {
	return e.minBalance - e.floor
}

// NewRunner constructs a Runner. sched must be the expansion of components
// under conf.
func NewRunner(logger *zap.Logger, conf config.Configuration, components []model.Component, sched schedule.Result) (*Runner, error) {
	if conf.ForecastYears < 1 {
		return nil, fmt.Errorf("optimizer: forecast_years must be >= 1")
	}
	if conf.ForecastYears > constants.MaxForecastYears {
		return nil, fmt.Errorf("optimizer: forecast_years must be <= %d", constants.MaxForecastYears)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, conf: conf, components: components, sched: sched}, nil
}

// Solve bisects between opts.Min and the upper bound for the smallest level
// contribution whose forecast never ends a year below opts.Floor.
func (r *Runner) Solve(opts Options) (*optimization.Summary, error) {
	if opts.Max != nil && *opts.Max < opts.Min {
		return nil, fmt.Errorf("optimizer: max %s is below min %s",
			format.Currency(*opts.Max), format.Currency(opts.Min))
	}
	opts = r.withDefaults(opts)

	lowerEval := r.evaluate(opts.Min, opts.Floor)
	if lowerEval.feasible() {
		return r.finish(lowerEval, 0, true, nil), nil
	}

	upperEval := r.evaluate(*opts.Max, opts.Floor)
	if !upperEval.feasible() {
		note := fmt.Sprintf("unable to keep balances above %s with contributions between %s and %s",
			format.Currency(opts.Floor), format.Currency(opts.Min), format.Currency(*opts.Max))
		return r.finish(upperEval, 0, false, []string{note}), nil
	}

	iterations := 0
	lower := lowerEval.value
	best := upperEval
	for iterations < opts.MaxIterations && best.value-lower > opts.Tolerance {
		mid := lower + (best.value-lower)/2
		evalMid := r.evaluate(mid, opts.Floor)
		iterations++
		if evalMid.feasible() {
			best = evalMid
		} else {
			lower = mid
		}
	}

	converged := best.value-lower <= opts.Tolerance
	var notes []string
	if !converged {
		notes = append(notes, fmt.Sprintf("stopped after %d iterations with a %s gap",
			iterations, format.Currency(best.value-lower)))
	}
	return r.finish(best, iterations, converged, notes), nil
}

func (r *Runner) withDefaults(opts Options) Options {
	if opts.Tolerance <= 0 {
		opts.Tolerance = constants.SolverPrecision
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = constants.SolverMaxIterations
	}
	if opts.Min < 0 {
		opts.Min = 0
	}
	if opts.Max == nil {
		upper := r.defaultUpperBound(opts.Floor)
		opts.Max = &upper
	}
	return opts
}

// defaultUpperBound funds every scheduled expense, any shortfall in the
// opening balance and the floor itself within the first year.
func (r *Runner) defaultUpperBound(floor float64) float64 {
	total := 0.0
	for _, amount := range r.sched.ExpensesByYear() {
		total += amount
	}
	return total + math.Abs(floor) + math.Abs(math.Min(r.conf.BeginningReserveBalance, 0))
}

func (r *Runner) evaluate(amount, floor float64) evaluation {
	plan := make(map[int]float64, r.conf.ForecastYears)
	for _, year := range r.conf.Years() {
		plan[year] = amount
	}
	years := forecast.Compute(r.logger, r.conf, r.components, r.sched, plan)

	eval := evaluation{value: amount, minBalance: math.Inf(1), floor: floor}
	for _, fy := range years {
		if fy.EndingBalance < eval.minBalance {
			eval.minBalance = fy.EndingBalance
			eval.minYear = fy.Year
		}
	}
	return eval
}

func (r *Runner) finish(eval evaluation, iterations int, converged bool, notes []string) *optimization.Summary {
	result := &optimization.Summary{
		Contribution:   eval.value,
		Floor:          eval.floor,
		MinBalance:     eval.minBalance,
		MinBalanceYear: eval.minYear,
		Headroom:       eval.headroom(),
		Iterations:     iterations,
		Converged:      converged,
		Notes:          notes,
	}
	result.ContributionDisplay = format.Currency(result.Contribution)

	r.logger.Info("solved level contribution",
		zap.String("op", "optimizer.Solve"),
		zap.Float64("contribution", result.Contribution),
		zap.Float64("floor", result.Floor),
		zap.Float64("minBalance", result.MinBalance),
		zap.Int("minBalanceYear", result.MinBalanceYear),
		zap.Float64("headroom", result.Headroom),
		zap.Int("iterations", result.Iterations),
		zap.Bool("converged", result.Converged),
	)
	return result
}
