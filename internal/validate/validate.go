// Package validate checks a scenario's assumptions, components and
// contribution plan. Every problem found is reported in a single pass: errors
// block a build, warnings do not.
package validate

import (
	"errors"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/internal/schedule"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/mathutil"
	"go.uber.org/zap"
)

// Names used in row-indexed messages.
const (
	ComponentsFile    = "components.csv"
	ContributionsFile = "contributions"
)

// Result holds the ordered errors and warnings of one validation pass.
type Result struct {
	Errors   []error
	Warnings []string
}

// Valid reports whether a build may proceed.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// ErrorMessages renders Errors as strings, in order.
func (r Result) ErrorMessages() []string {
	messages := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// MarshalJSON renders errors by message so results can be served and stored.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}{
		Errors:   r.ErrorMessages(),
		Warnings: r.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	return json.Marshal(out)
}

// Input bundles everything a validation pass looks at.
type Input struct {
	Config        config.Configuration
	Components    []model.Component
	Contributions []model.ContributionRow
	// Issues are row-level problems reported by the loader; they lead the
	// error list.
	Issues []error
	// Schedule is the expansion of Components under Config, computed once by
	// the caller and shared with the build.
	Schedule schedule.Result
}

type rowField struct {
	row   int
	field string
}

// Validate runs every check against in.
func Validate(logger *zap.Logger, in Input) Result {
	if logger == nil {
		logger = zap.NewNop()
	}

	var result Result
	result.Errors = append(result.Errors, in.Issues...)

	// Fields the loader already complained about are not reported twice.
	reported := make(map[rowField]bool)
	for _, issue := range in.Issues {
		var compErr *model.ComponentValidationError
		if errors.As(issue, &compErr) && compErr.Row > 0 {
			reported[rowField{compErr.Row, compErr.Field}] = true
		}
	}

	configErrors := CheckConfig(in.Config)
	result.Errors = append(result.Errors, configErrors...)

	componentErrors, componentWarnings := checkComponents(in.Config, in.Components, reported)
	result.Errors = append(result.Errors, componentErrors...)
	result.Warnings = append(result.Warnings, componentWarnings...)
	result.Errors = append(result.Errors, checkAmounts(in.Contributions)...)

	// Window checks need a usable starting year and horizon.
	if len(configErrors) > 0 {
		logger.Debug("skipping window checks on invalid config",
			zap.String("op", "validate.Validate"),
			zap.Int("configErrors", len(configErrors)),
		)
		return result
	}

	for _, dropped := range in.Schedule.Dropped {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s row %d: spend_year %d outside forecast window", ComponentsFile, dropped.Row, dropped.Year))
	}

	contributionErrors, contributionWarnings := checkContributions(in.Config, in.Contributions)
	result.Errors = append(result.Errors, contributionErrors...)
	result.Warnings = append(result.Warnings, contributionWarnings...)

	if rows, max := in.Schedule.Rows(), in.Config.Features.MaxScheduleRows; max > 0 && rows > max {
		result.Errors = append(result.Errors, &model.ScheduleOverflowError{Rows: rows, Max: max})
	}

	logger.Debug("validation complete",
		zap.String("op", "validate.Validate"),
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result
}

// CheckConfig reports configuration problems. A configuration with errors
// has no usable forecast window, so nothing should be expanded from it.
func CheckConfig(conf config.Configuration) []error {
	var errs []error
	add := func(key, msg string) {
		errs = append(errs, &model.ConfigError{Key: key, Message: msg})
	}

	if conf.StartingYear < constants.MinStartingYear || conf.StartingYear > constants.MaxStartingYear {
		add("starting_year", fmt.Sprintf("starting_year must be between %d and %d",
			constants.MinStartingYear, constants.MaxStartingYear))
	}
	if conf.ForecastYears < 1 {
		add("forecast_years", "forecast_years must be >= 1")
	} else if conf.ForecastYears > constants.MaxForecastYears {
		add("forecast_years", fmt.Sprintf("forecast_years must be <= %d", constants.MaxForecastYears))
	}
	for _, field := range []struct {
		key   string
		value float64
	}{
		{"beginning_reserve_balance", conf.BeginningReserveBalance},
		{"inflation_rate", conf.InflationRate},
		{"investment_return_rate", conf.InvestmentReturnRate},
		{"audit_tolerance_amount", conf.AuditToleranceAmount},
		{"audit_tolerance_ratio", conf.AuditToleranceRatio},
	} {
		if !mathutil.IsFinite(field.value) {
			add(field.key, field.key+" must be a number")
		}
	}
	if conf.Features.MaxScheduleRows < 1 {
		add("max_schedule_rows", "max_schedule_rows must be >= 1")
	}
	if conf.Features.MaxComponentsRows < 1 {
		add("max_components_rows", "max_components_rows must be >= 1")
	}
	if conf.AuditToleranceAmount < 0 {
		add("audit_tolerance_amount", "audit_tolerance_amount must be >= 0")
	}
	if conf.AuditToleranceRatio < 0 {
		add("audit_tolerance_ratio", "audit_tolerance_ratio must be >= 0")
	}
	if conf.InflationRate <= -1 {
		add("inflation_rate", "inflation_rate must be > -1")
	}
	if _, err := config.ParseSpendInflationTiming(conf.SpendInflationTiming); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func checkComponents(conf config.Configuration, components []model.Component, reported map[rowField]bool) ([]error, []string) {
	var errs []error
	var warnings []string

	if max := conf.Features.MaxComponentsRows; max > 0 && len(components) > max {
		errs = append(errs, &model.ComponentValidationError{
			File:    ComponentsFile,
			Message: fmt.Sprintf("rows %d exceed max_components_rows %d", len(components), max),
		})
	}

	for _, c := range components {
		add := func(field, msg string) {
			if reported[rowField{c.Row, field}] {
				return
			}
			errs = append(errs, &model.ComponentValidationError{File: ComponentsFile, Row: c.Row, Field: field, Message: msg})
		}

		if !c.Recurring.Valid() {
			add("recurring", "recurring must be Y or N")
		}
		if !c.Include.Valid() {
			add("include", "include must be Y or N")
		}

		switch {
		case c.Recurring.Yes():
			if c.IntervalYears == nil {
				add("interval_years", "interval_years required for recurring items")
			} else if *c.IntervalYears <= 0 {
				add("interval_years", "interval_years must be > 0")
			} else if *c.IntervalYears > constants.MaxIntervalYears {
				add("interval_years", fmt.Sprintf("interval_years must be <= %d", constants.MaxIntervalYears))
			}
			if c.SpendYear != nil {
				warnings = append(warnings,
					fmt.Sprintf("%s row %d: spend_year ignored for recurring items", ComponentsFile, c.Row))
			}
		case c.Recurring == constants.FlagNo:
			if c.SpendYear == nil {
				add("spend_year", "spend_year is required")
			}
		}

		if !mathutil.IsFinite(c.BaseCost) {
			add("base_cost", "base_cost must be a number")
		} else if c.BaseCost <= 0 {
			add("base_cost", "base_cost must be > 0")
		} else if c.BaseCost > constants.MaxBaseCost {
			add("base_cost", fmt.Sprintf("base_cost must be <= %.0f", constants.MaxBaseCost))
		}
	}

	return errs, warnings
}

// checkAmounts rejects plan rows decoded without the CSV loader, such as
// over HTTP, whose amount is not a finite number.
func checkAmounts(rows []model.ContributionRow) []error {
	var errs []error
	for _, row := range rows {
		if !mathutil.IsFinite(row.Amount) {
			errs = append(errs, &model.ContributionValidationError{
				File:    ContributionsFile,
				Row:     row.Row,
				Message: "contribution must be a number",
			})
		}
	}
	return errs
}

func checkContributions(conf config.Configuration, rows []model.ContributionRow) ([]error, []string) {
	var errs []error
	var warnings []string

	seen := make(map[int]int)
	for _, row := range rows {
		seen[row.Year]++
	}

	var missing []int
	for _, year := range conf.Years() {
		if seen[year] == 0 {
			missing = append(missing, year)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, &model.ContributionValidationError{Years: missing, Message: "Missing contributions for years"})
	}

	var duplicates, outside []int
	for year, count := range seen {
		if count > 1 {
			duplicates = append(duplicates, year)
		}
		if !conf.InWindow(year) {
			outside = append(outside, year)
		}
	}
	sort.Ints(duplicates)
	sort.Ints(outside)
	if len(duplicates) > 0 {
		warnings = append(warnings, "Duplicate contribution years: "+model.JoinYears(duplicates))
	}
	if len(outside) > 0 {
		warnings = append(warnings, "Contribution years outside forecast window: "+model.JoinYears(outside))
	}

	return errs, warnings
}
