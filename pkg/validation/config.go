// Package validation checks command line and request parameters before a run
// starts.
package validation

import (
	"fmt"
	"strings"

	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"go.uber.org/zap/zapcore"
)

// ValidateScenarioName rejects names that cannot be used as a contribution
// file name or workbook suffix.
func ValidateScenarioName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("scenario name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\:*?"<>|`) {
		return fmt.Errorf("invalid scenario name %q", name)
	}
	return nil
}

// ValidateLogLevel checks that level names a zap level. Empty selects the default.
func ValidateLogLevel(level string) error {
	if level == "" {
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return nil
}

// ValidateOutputFormat accepts the terminal renderings the CLI supports. The
// match is exact; inputs.yaml and --output-format are not case folded.
func ValidateOutputFormat(format string) error {
	switch format {
	case constants.OutputFormatPretty, constants.OutputFormatCSV:
		return nil
	}
	return fmt.Errorf("output format must be %s or %s, got %q",
		constants.OutputFormatPretty, constants.OutputFormatCSV, format)
}
