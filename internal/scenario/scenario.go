// Package scenario ties the stages of a reserve forecast together: it loads a
// scenario's inputs, validates them and, when they are clean, computes the
// schedule, the forecast and the optional audit.
package scenario

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/iwvelando/reserve-forecast/internal/audit"
	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/forecast"
	"github.com/iwvelando/reserve-forecast/internal/loader"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/internal/schedule"
	"github.com/iwvelando/reserve-forecast/internal/validate"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"go.uber.org/zap"
)

// Paths locates the files of one scenario. Empty fields fall back to the
// standard layout under DataDir.
type Paths struct {
	Scenario   string
	DataDir    string
	Inputs     string
	Components string
}

func (p Paths) dataDir() string {
	if p.DataDir == "" {
		return constants.DefaultDataDir
	}
	return p.DataDir
}

// InputsPath returns the assumptions file.
func (p Paths) InputsPath() string {
	if p.Inputs != "" {
		return p.Inputs
	}
	return filepath.Join(p.dataDir(), constants.InputsFile)
}

// ComponentsPath returns the component definitions file.
func (p Paths) ComponentsPath() string {
	if p.Components != "" {
		return p.Components
	}
	return filepath.Join(p.dataDir(), constants.ComponentsFile)
}

// ContributionsPath returns the scenario's contribution plan.
func (p Paths) ContributionsPath() string {
	return loader.ContributionsPath(p.dataDir(), p.Scenario)
}

// Sources are the parsed inputs of one scenario.
type Sources struct {
	Config        config.Configuration
	Components    []model.Component
	Contributions []model.ContributionRow
	// Issues are row-level parse problems; validation reports them first.
	Issues []error
}

// Load reads the inputs, components and contribution plan in that order. An
// error means a file could not be read at all and the run cannot continue.
func Load(logger *zap.Logger, paths Paths) (*Sources, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conf, err := config.LoadInputs(paths.InputsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load inputs at %s: %w", paths.InputsPath(), err)
	}

	components, componentIssues, err := loader.ReadComponentsFile(paths.ComponentsPath())
	if err != nil {
		return nil, err
	}

	rows, contributionIssues, err := loader.ReadContributionsFile(paths.ContributionsPath())
	if err != nil {
		return nil, err
	}

	logger.Debug("loaded scenario sources",
		zap.String("op", "scenario.Load"),
		zap.String("scenario", paths.Scenario),
		zap.Int("components", len(components)),
		zap.Int("contributions", len(rows)),
	)

	return &Sources{
		Config:        *conf,
		Components:    components,
		Contributions: rows,
		Issues:        append(componentIssues, contributionIssues...),
	}, nil
}

// Run is everything produced by one evaluation. Forecast, Summary and Audit
// are only set when validation passed.
type Run struct {
	ID         string                  `json:"run_id"`
	Scenario   string                  `json:"scenario"`
	Config     config.Configuration    `json:"config"`
	Components []model.Component       `json:"components"`
	Rows       []model.ContributionRow `json:"contributions"`
	Plan       map[int]float64         `json:"plan,omitempty"`
	Schedule   schedule.Result         `json:"schedule"`
	Validation validate.Result         `json:"validation"`
	Forecast   []model.ForecastYear    `json:"forecast,omitempty"`
	Summary    *model.Summary          `json:"summary,omitempty"`
	Audit      *audit.Result           `json:"audit,omitempty"`
}

// Built reports whether the run produced a forecast.
func (r *Run) Built() bool {
	return r.Forecast != nil
}

// Evaluate runs validation and, when it passes, the forecast and audit. The
// schedule is expanded once and shared by the validator and the forecast.
func Evaluate(logger *zap.Logger, name string, src Sources) *Run {
	if logger == nil {
		logger = zap.NewNop()
	}

	run := &Run{
		ID:         uuid.NewString(),
		Scenario:   name,
		Config:     src.Config,
		Components: src.Components,
		Rows:       src.Contributions,
	}
	logger = logger.With(zap.String("scenario", name), zap.String("run_id", run.ID))

	// An unusable window would make expansion unbounded; validation reports it.
	if len(validate.CheckConfig(src.Config)) == 0 {
		run.Schedule = schedule.Expand(logger, src.Config, src.Components)
	}
	run.Validation = validate.Validate(logger, validate.Input{
		Config:        src.Config,
		Components:    src.Components,
		Contributions: src.Contributions,
		Issues:        src.Issues,
		Schedule:      run.Schedule,
	})

	for _, warning := range run.Validation.Warnings {
		logger.Warn("validation warning: "+warning,
			zap.String("op", "scenario.Evaluate"),
		)
	}
	if !run.Validation.Valid() {
		logger.Info("validation failed",
			zap.String("op", "scenario.Evaluate"),
			zap.Int("errors", len(run.Validation.Errors)),
		)
		return run
	}

	run.Plan = forecast.ResolvePlan(src.Contributions)
	run.Forecast = forecast.Compute(logger, src.Config, src.Components, run.Schedule, run.Plan)
	summary := forecast.Summarize(run.Forecast, run.Schedule)
	run.Summary = &summary

	if err := forecast.CheckRollForward(src.Config, run.Forecast, constants.CurrencyTolerance); err != nil {
		logger.Error("roll-forward check failed",
			zap.String("op", "scenario.Evaluate"),
			zap.Error(err),
		)
	}

	if src.Config.Features.EnableAudit {
		result := audit.Run(logger, audit.Input{
			Config:        src.Config,
			Components:    src.Components,
			Contributions: src.Contributions,
			Events:        run.Schedule.Events,
			Years:         run.Forecast,
		})
		run.Audit = &result
		if !result.Passed() {
			logger.Warn("audit found mismatches",
				zap.String("op", "scenario.Evaluate"),
				zap.Int("failures", result.Failures),
			)
		}
	}

	logger.Info("scenario evaluated",
		zap.String("op", "scenario.Evaluate"),
		zap.Int("schedule_items", summary.ScheduleItems),
		zap.Int("negative_balance_years", summary.NegativeBalanceYears),
	)
	return run
}

// BuildError is returned by Build when validation reported errors.
type BuildError struct {
	Scenario   string
	Validation validate.Result
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("scenario %s failed validation with %d error(s)", e.Scenario, len(e.Validation.Errors))
}

// Validate loads and evaluates the scenario at paths. Validation findings are
// reported on the returned Run, not as an error.
func Validate(logger *zap.Logger, paths Paths) (*Run, error) {
	src, err := Load(logger, paths)
	if err != nil {
		return nil, err
	}
	return Evaluate(logger, paths.Scenario, *src), nil
}

// Build is Validate that fails with a *BuildError when the scenario does not
// validate. The returned Run is non-nil in that case so callers can report.
func Build(logger *zap.Logger, paths Paths) (*Run, error) {
	run, err := Validate(logger, paths)
	if err != nil {
		return nil, err
	}
	if !run.Validation.Valid() {
		return run, &BuildError{Scenario: paths.Scenario, Validation: run.Validation}
	}
	return run, nil
}
