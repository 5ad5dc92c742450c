// Package constants provides shared constants for the reserve-forecast application.
package constants

import "time"

// Feature defaults applied when inputs.yaml omits a FEATURES key.
const (
	// DefaultForecastYears is the forecast horizon used when none is configured
	DefaultForecastYears = 40

	// DefaultMaxComponentsRows is the capacity reserved for component rows
	DefaultMaxComponentsRows = 500

	// DefaultMaxScheduleRows is the capacity reserved for expanded schedule rows
	DefaultMaxScheduleRows = 10000

	// MaxIntervalYears is the longest replacement cycle validation accepts
	MaxIntervalYears = 1000

	// MaxForecastYears is the longest horizon validation accepts
	MaxForecastYears = 200

	// MinStartingYear and MaxStartingYear bound starting_year
	MinStartingYear = 1
	MaxStartingYear = 9999
)

// Financial constants
const (
	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100

	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01

	// MaxBaseCost is the largest component base cost accepted by validation
	MaxBaseCost = 10000000.0

	// CoverageWindowYears is the number of years summed for coverage_5yr
	CoverageWindowYears = 5

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0
)

// Audit defaults
const (
	// DefaultAuditToleranceAmount is the absolute tolerance for dollar columns
	DefaultAuditToleranceAmount = 0.01

	// DefaultAuditToleranceRatio is the relative tolerance for ratio columns
	DefaultAuditToleranceRatio = 0.0001
)

// Spend inflation timing values accepted in inputs.yaml.
const (
	TimingStartOfYear = "start_of_year"
	TimingMidYear     = "mid_year"
	TimingEndOfYear   = "end_of_year"

	// DefaultSpendInflationTiming applies when inputs.yaml omits the key
	DefaultSpendInflationTiming = TimingEndOfYear
)

// Component flag literals.
const (
	FlagYes = "Y"
	FlagNo  = "N"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// File layout constants
const (
	// DefaultDataDir holds inputs.yaml, components.csv and contributions/
	DefaultDataDir = "data"

	// InputsFile is the assumptions file name inside the data directory
	InputsFile = "inputs.yaml"

	// ComponentsFile is the component definitions file name inside the data directory
	ComponentsFile = "components.csv"

	// ContributionsDir is the directory of per-scenario contribution plans
	ContributionsDir = "contributions"

	// FixturesDir is the fixtures root inside the data directory
	FixturesDir = "fixtures"

	// ExpectedValuesFile names the expectation file inside a fixture directory
	ExpectedValuesFile = "expected_values.yaml"

	// DefaultDistDir receives generated workbooks
	DefaultDistDir = "dist"

	// WorkbookPrefix is the file name prefix of generated workbooks
	WorkbookPrefix = "Reserve_Forecast_"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix is the prefix for environment overrides of inputs.yaml keys
	EnvPrefix = "RESERVE"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultRequestTimeout bounds reading a request and writing its response
	DefaultRequestTimeout = 30 * time.Second
)

// Solver defaults
const (
	// SolverMaxIterations bounds the bisection search
	SolverMaxIterations = 60

	// SolverPrecision is the contribution precision the solver stops at
	SolverPrecision = 0.01
)
