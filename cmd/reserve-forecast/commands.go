package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"github.com/iwvelando/reserve-forecast/internal/fixture"
	"github.com/iwvelando/reserve-forecast/internal/optimizer"
	"github.com/iwvelando/reserve-forecast/internal/scenario"
	"github.com/iwvelando/reserve-forecast/internal/server"
	"github.com/iwvelando/reserve-forecast/internal/workbook"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/output"
	"github.com/iwvelando/reserve-forecast/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) requireScenario() error {
	return validation.ValidateScenarioName(a.scenario)
}

// loadRun validates the scenario and reports the findings. It returns
// errFailed when the scenario could not be loaded or did not validate.
func (a *app) loadRun() (*scenario.Run, error) {
	if err := a.requireScenario(); err != nil {
		return nil, err
	}
	run, err := scenario.Validate(a.logger, a.paths())
	if err != nil {
		fmt.Fprintf(a.stderr, "ERROR: %v\n", err)
		return nil, errFailed
	}
	output.ValidationReport(a.stderr, run.Validation)
	if !run.Validation.Valid() {
		return run, errFailed
	}
	return run, nil
}

func (a *app) printForecast(run *scenario.Run) error {
	switch a.outputFormat {
	case constants.OutputFormatCSV:
		return output.CsvFormat(a.stdout, run.Forecast)
	default:
		output.PrettyFormat(a.stdout, run.Scenario, run.Forecast, run.Summary)
	}
	return nil
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a scenario's inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.loadRun(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Validation passed for scenario %s.\n", a.scenario)
			return nil
		},
	}
}

func newBuildCmd(a *app) *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the forecast workbook for a scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.loadRun()
			if err != nil {
				return err
			}
			path, err := workbook.Write(a.logger, run, a.distDir)
			if err != nil {
				return err
			}
			if err := a.printForecast(run); err != nil {
				return err
			}

			// Keep stdout machine-readable in csv mode.
			wrote := a.stdout
			if a.outputFormat == constants.OutputFormatCSV {
				wrote = a.stderr
			}
			fmt.Fprintf(wrote, "Wrote %s\n", path)

			if open {
				openFile(a.logger, path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "open the workbook after building it")
	return cmd
}

// openFile hands path to the desktop's default application. Failures are
// logged only; the workbook has already been written.
func openFile(logger *zap.Logger, path string) {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", path)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		c = exec.Command("xdg-open", path)
	}
	if err := c.Start(); err != nil {
		logger.Warn("failed to open workbook",
			zap.String("op", "main.openFile"),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func newFixtureCheckCmd(a *app) *cobra.Command {
	var all, clean bool
	cmd := &cobra.Command{
		Use:   "fixture-check",
		Short: "Build fixtures and compare them with expected_values.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := a.selectFixtures(all, cmd.Flags().Changed("data-dir"))
			if err != nil {
				fmt.Fprintf(a.stderr, "ERROR: %v\n", err)
				return errFailed
			}

			failed := 0
			generated := make(map[string]bool)
			for _, f := range fixtures {
				result := fixture.Run(a.logger, f, a.distDir)
				if result.Output != "" {
					generated[result.Output] = true
				}
				if !result.Passed() {
					failed++
					fmt.Fprintf(a.stderr, "FAIL fixture %s (%s)\n", f.Name, f.Scenario)
					for _, issue := range result.Issues {
						fmt.Fprintf(a.stderr, " - %s\n", issue)
					}
					continue
				}
				fmt.Fprintf(a.stdout, "OK fixture %s (%s)\n", f.Name, f.Scenario)
				if len(result.Warnings) > 0 {
					fmt.Fprintf(a.stderr, "WARN fixture %s (%s)\n", f.Name, f.Scenario)
					for _, warning := range result.Warnings {
						fmt.Fprintf(a.stderr, " - %s\n", warning)
					}
				}
			}
			fmt.Fprintln(a.stdout, fixture.Summary(len(fixtures)-failed, failed))

			if clean && len(generated) > 0 {
				paths := make([]string, 0, len(generated))
				for path := range generated {
					paths = append(paths, path)
				}
				sort.Strings(paths)
				removed := 0
				for _, path := range paths {
					if err := os.Remove(path); err == nil {
						removed++
					}
				}
				fmt.Fprintf(a.stdout, "Removed %d fixture workbook(s).\n", removed)
			}

			if failed > 0 {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run every fixture under data/fixtures")
	cmd.Flags().BoolVar(&clean, "clean", false, "remove generated fixture workbooks")
	return cmd
}

// selectFixtures resolves which fixtures to run: every fixture with all, the
// single fixture in an explicit data directory, or the fixture matching the
// scenario.
func (a *app) selectFixtures(all, explicitDataDir bool) ([]*fixture.Fixture, error) {
	root := filepath.Join(constants.DefaultDataDir, constants.FixturesDir)
	if all {
		fixtures, err := fixture.Find(root)
		if err != nil {
			return nil, err
		}
		if len(fixtures) == 0 {
			return nil, fmt.Errorf("%w under %s", fixture.ErrNoFixtures, root)
		}
		return fixtures, nil
	}

	if explicitDataDir {
		expected := filepath.Join(a.dataDir, constants.ExpectedValuesFile)
		if _, err := os.Stat(expected); err != nil {
			return nil, fmt.Errorf("Missing %s", expected)
		}
		f, err := fixture.Load(expected)
		if err != nil {
			return nil, err
		}
		if a.scenario != "" && a.scenario != f.Scenario {
			return nil, fmt.Errorf("Scenario mismatch. expected %s", f.Scenario)
		}
		return []*fixture.Fixture{f}, nil
	}

	if a.scenario == "" {
		return nil, errors.New("Provide --scenario or --all.")
	}
	fixtures, err := fixture.Find(root)
	if err != nil {
		return nil, err
	}
	f, err := fixture.Select(fixtures, a.scenario)
	if err != nil {
		return nil, err
	}
	return []*fixture.Fixture{f}, nil
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove generated workbooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := workbook.Clean(a.logger, a.distDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Removed %d workbook(s).\n", removed)
			return nil
		},
	}
}

func newSolveCmd(a *app) *cobra.Command {
	var opts optimizer.Options
	var maxContribution float64
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Find the smallest level annual contribution that keeps balances above a floor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.loadRun()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max") {
				opts.Max = &maxContribution
			}

			runner, err := optimizer.NewRunner(a.logger, run.Config, run.Components, run.Schedule)
			if err != nil {
				return err
			}
			result, err := runner.Solve(opts)
			if err != nil {
				return err
			}
			output.SolveReport(a.stdout, run.Scenario, result)
			if !result.Converged {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&opts.Floor, "floor", 0, "lowest acceptable ending balance")
	cmd.Flags().Float64Var(&opts.Min, "min", 0, "smallest contribution to consider")
	cmd.Flags().Float64Var(&maxContribution, "max", 0, "largest contribution to consider (default: enough to fund every expense)")
	cmd.Flags().Float64Var(&opts.Tolerance, "tolerance", constants.SolverPrecision, "stop once the search interval is this narrow")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", constants.SolverMaxIterations, "bisection iteration limit")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var configPath, address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the forecast HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Address = address
			}

			logger, err := initializeLogger(cfg.Logging, a.logLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			srv := &http.Server{
				Addr:              cfg.Address,
				Handler:           server.NewHandler(logger, cfg.UploadSizeBytes(), version),
				ReadHeaderTimeout: cfg.Timeout(),
				ReadTimeout:       cfg.Timeout(),
				WriteTimeout:      cfg.Timeout(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server",
					zap.String("op", "main.serve"),
					zap.String("address", cfg.Address),
					zap.Int64("maxUploadSize", cfg.UploadSizeBytes()),
					zap.String("version", version),
				)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
			defer cancel()
			logger.Info("shutting down server", zap.String("op", "main.serve"))
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", constants.DefaultServerConfigFile, "path to server configuration file")
	cmd.Flags().StringVar(&address, "address", "", "listen address override")
	return cmd
}
