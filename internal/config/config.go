// Package config defines the assumptions and feature toggles for one reserve
// forecast run and loads them from inputs.yaml.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/spf13/viper"
)

// Configuration holds all assumptions for one run. It is built once by the
// loader and only read afterwards.
type Configuration struct {
	StartingYear            int           `mapstructure:"starting_year" yaml:"starting_year" json:"starting_year"`
	BeginningReserveBalance float64       `mapstructure:"beginning_reserve_balance" yaml:"beginning_reserve_balance" json:"beginning_reserve_balance"`
	InflationRate           float64       `mapstructure:"inflation_rate" yaml:"inflation_rate" json:"inflation_rate"`
	InvestmentReturnRate    float64       `mapstructure:"investment_return_rate" yaml:"investment_return_rate" json:"investment_return_rate"`
	SpendInflationTiming    string        `mapstructure:"spend_inflation_timing" yaml:"spend_inflation_timing" json:"spend_inflation_timing"`
	ForecastYears           int           `mapstructure:"forecast_years" yaml:"forecast_years" json:"forecast_years"`
	AuditToleranceAmount    float64       `mapstructure:"audit_tolerance_amount" yaml:"audit_tolerance_amount" json:"audit_tolerance_amount"`
	AuditToleranceRatio     float64       `mapstructure:"audit_tolerance_ratio" yaml:"audit_tolerance_ratio" json:"audit_tolerance_ratio"`
	Features                Features      `mapstructure:"features" yaml:"FEATURES" json:"features"`
	Logging                 LoggingConfig `mapstructure:"logging" yaml:"logging,omitempty" json:"logging,omitempty"`
	Output                  OutputConfig  `mapstructure:"output" yaml:"output,omitempty" json:"output,omitempty"`
}

// Features holds the FEATURES toggles.
type Features struct {
	ForecastYears           int  `mapstructure:"forecast_years" yaml:"forecast_years" json:"forecast_years"`
	EnableChecks            bool `mapstructure:"enable_checks" yaml:"enable_checks" json:"enable_checks"`
	EnableDashboard         bool `mapstructure:"enable_dashboard" yaml:"enable_dashboard" json:"enable_dashboard"`
	EnableScheduleExpansion bool `mapstructure:"enable_schedule_expansion" yaml:"enable_schedule_expansion" json:"enable_schedule_expansion"`
	EnableAudit             bool `mapstructure:"enable_audit" yaml:"enable_audit" json:"enable_audit"`
	MaxComponentsRows       int  `mapstructure:"max_components_rows" yaml:"max_components_rows" json:"max_components_rows"`
	MaxScheduleRows         int  `mapstructure:"max_schedule_rows" yaml:"max_schedule_rows" json:"max_schedule_rows"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level,omitempty" json:"level,omitempty"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format,omitempty" json:"format,omitempty"`          // json, console
	OutputFile string `mapstructure:"outputfile" yaml:"outputFile,omitempty" json:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format,omitempty" json:"format,omitempty"` // pretty, csv
}

var requiredInputs = []string{
	"starting_year",
	"beginning_reserve_balance",
	"inflation_rate",
	"investment_return_rate",
}

// Default returns a configuration carrying every default. The required
// assumptions are left zero.
func Default() Configuration {
	return Configuration{
		SpendInflationTiming: constants.DefaultSpendInflationTiming,
		ForecastYears:        constants.DefaultForecastYears,
		AuditToleranceAmount: constants.DefaultAuditToleranceAmount,
		AuditToleranceRatio:  constants.DefaultAuditToleranceRatio,
		Features: Features{
			ForecastYears:           constants.DefaultForecastYears,
			EnableChecks:            true,
			EnableDashboard:         true,
			EnableScheduleExpansion: true,
			EnableAudit:             false,
			MaxComponentsRows:       constants.DefaultMaxComponentsRows,
			MaxScheduleRows:         constants.DefaultMaxScheduleRows,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("spend_inflation_timing", d.SpendInflationTiming)
	v.SetDefault("audit_tolerance_amount", d.AuditToleranceAmount)
	v.SetDefault("audit_tolerance_ratio", d.AuditToleranceRatio)
	v.SetDefault("features.forecast_years", d.Features.ForecastYears)
	v.SetDefault("features.enable_checks", d.Features.EnableChecks)
	v.SetDefault("features.enable_dashboard", d.Features.EnableDashboard)
	v.SetDefault("features.enable_schedule_expansion", d.Features.EnableScheduleExpansion)
	v.SetDefault("features.enable_audit", d.Features.EnableAudit)
	v.SetDefault("features.max_components_rows", d.Features.MaxComponentsRows)
	v.SetDefault("features.max_schedule_rows", d.Features.MaxScheduleRows)
}

// LoadInputs takes a file path as input and loads the YAML-formatted
// assumptions there. Environment variables prefixed with RESERVE_ override
// file values.
func LoadInputs(path string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading inputs file, %w", err)
	}
	return decodeInputs(v)
}

// ReadInputs loads YAML-formatted assumptions from r. Unlike LoadInputs it
// ignores the environment, so uploaded inputs are taken as sent.
func ReadInputs(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading inputs, %w", err)
	}
	return decodeInputs(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func decodeInputs(v *viper.Viper) (*Configuration, error) {
	for _, key := range requiredInputs {
		if !v.IsSet(key) {
			return nil, &model.ConfigError{Key: key, Message: "Missing required input: " + key}
		}
	}

	var conf Configuration
	if err := v.Unmarshal(&conf); err != nil {
		return nil, &model.ConfigError{Message: fmt.Sprintf("unable to decode inputs: %v", err)}
	}

	// A top-level forecast_years takes precedence over FEATURES.forecast_years.
	if !v.IsSet("forecast_years") {
		conf.ForecastYears = conf.Features.ForecastYears
	}

	if err := conf.Normalize(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Normalize canonicalizes enum values and keeps the duplicated forecast
// horizon fields in agreement. It is used by every loader, including the HTTP
// surface which decodes JSON directly.
func (c *Configuration) Normalize() error {
	timing := strings.ToLower(strings.TrimSpace(c.SpendInflationTiming))
	if timing == "" {
		timing = constants.DefaultSpendInflationTiming
	}
	if _, err := ParseSpendInflationTiming(timing); err != nil {
		return err
	}
	c.SpendInflationTiming = timing

	if c.ForecastYears == 0 {
		c.ForecastYears = c.Features.ForecastYears
	}
	c.Features.ForecastYears = c.ForecastYears
	return nil
}

// ParseSpendInflationTiming maps a timing name to its inflation exponent offset.
func ParseSpendInflationTiming(value string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case constants.TimingStartOfYear:
		return 0.0, nil
	case constants.TimingMidYear:
		return 0.5, nil
	case constants.TimingEndOfYear:
		return 1.0, nil
	}
	return 0, &model.ConfigError{
		Key: "spend_inflation_timing",
		Message: fmt.Sprintf("spend_inflation_timing must be one of: %s, %s, %s",
			constants.TimingStartOfYear, constants.TimingMidYear, constants.TimingEndOfYear),
	}
}

// Offset returns the inflation exponent offset for SpendInflationTiming. An
// unrecognized timing falls back to end of year.
func (c Configuration) Offset() float64 {
	offset, err := ParseSpendInflationTiming(c.SpendInflationTiming)
	if err != nil {
		return 1.0
	}
	return offset
}

// EndYear returns the last forecast year.
func (c Configuration) EndYear() int {
	return c.StartingYear + c.ForecastYears - 1
}

// InWindow reports whether year lies inside the inclusive forecast window.
func (c Configuration) InWindow(year int) bool {
	return year >= c.StartingYear && year <= c.EndYear()
}

// Years returns every forecast year in order.
func (c Configuration) Years() []int {
	if c.ForecastYears <= 0 {
		return nil
	}
	years := make([]int, c.ForecastYears)
	for i := range years {
		years[i] = c.StartingYear + i
	}
	return years
}
