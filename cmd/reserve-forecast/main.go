package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/scenario"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// errFailed marks a command that already reported why it failed.
var errFailed = errors.New("command failed")

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info" // Default to info level
	}

	// Parse log level
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	// Determine output format
	format := loggingConfig.Format
	if format == "" {
		format = "json" // Default to JSON for production
	}

	// Configure encoder
	var config zap.Config
	switch format {
	case "console":
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	case "json":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	// Configure output file if specified
	if loggingConfig.OutputFile != "" {
		// Ensure the directory exists
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		// Test if we can create/write to the file
		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		config.OutputPaths = []string{loggingConfig.OutputFile}
		config.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return config.Build()
}

// app holds the shared flags and the logger of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	scenario     string
	dataDir      string
	inputs       string
	components   string
	distDir      string
	logLevel     string
	outputFormat string

	logger *zap.Logger
}

func (a *app) paths() scenario.Paths {
	return scenario.Paths{
		Scenario:   a.scenario,
		DataDir:    a.dataDir,
		Inputs:     a.inputs,
		Components: a.components,
	}
}

// setup builds the logger and resolves the output format. The logging and
// output blocks of inputs.yaml apply when the file can be read; the command
// itself reports any problem loading it.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := validation.ValidateLogLevel(a.logLevel); err != nil {
		return err
	}

	var loggingConfig config.LoggingConfig
	var outputConfig config.OutputConfig
	if cmd.Name() != "serve" && cmd.Name() != "clean" {
		if conf, err := config.LoadInputs(a.paths().InputsPath()); err == nil {
			loggingConfig = conf.Logging
			outputConfig = conf.Output
		}
	}

	logger, err := initializeLogger(loggingConfig, a.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	if a.outputFormat == "" {
		a.outputFormat = outputConfig.Format
	}
	if a.outputFormat == "" {
		a.outputFormat = constants.OutputFormatPretty
	}
	return validation.ValidateOutputFormat(a.outputFormat)
}

func (a *app) teardown(*cobra.Command, []string) {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:               "reserve-forecast",
		Short:             "Reserve fund forecast workbook builder",
		Long:              "Validate reserve study inputs, forecast the reserve balance and build the review workbook.",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.scenario, "scenario", "", "scenario name (contributions/<scenario>.csv)")
	flags.StringVar(&a.dataDir, "data-dir", constants.DefaultDataDir, "directory holding inputs.yaml, components.csv and contributions/")
	flags.StringVar(&a.inputs, "inputs", "", "path to inputs.yaml (overrides --data-dir)")
	flags.StringVar(&a.components, "components", "", "path to components.csv (overrides --data-dir)")
	flags.StringVar(&a.distDir, "dist-dir", constants.DefaultDistDir, "directory receiving generated workbooks")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.outputFormat, "output-format", "", "type of output override: pretty, csv")

	root.AddCommand(
		newValidateCmd(a),
		newBuildCmd(a),
		newFixtureCheckCmd(a),
		newCleanCmd(a),
		newSolveCmd(a),
		newServeCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		}
		os.Exit(1)
	}
}
