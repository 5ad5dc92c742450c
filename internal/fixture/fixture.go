// Package fixture runs scenario fixtures: directories holding a complete data
// set plus an expected_values.yaml describing what validation, the model and
// the rendered workbook must produce.
package fixture

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/internal/scenario"
	"github.com/iwvelando/reserve-forecast/internal/workbook"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultTolerance = 1e-6

// Expectations is the content of expected_values.yaml.
type Expectations struct {
	Scenario string `yaml:"scenario"`
	Expect   Expect `yaml:"expect"`
}

// Expect groups the assertions of a fixture.
type Expect struct {
	Validation ValidationExpect `yaml:"validation"`
	Model      ModelExpect      `yaml:"model"`
	Workbook   WorkbookExpect   `yaml:"workbook"`
}

// ValidationExpect lists expected messages; order does not matter.
type ValidationExpect struct {
	Errors   []string `yaml:"errors"`
	Warnings []string `yaml:"warnings"`
}

// ModelExpect holds assertions on computed schedule and forecast values.
type ModelExpect struct {
	Schedule []ScheduleExpect `yaml:"schedule"`
	Forecast []ForecastExpect `yaml:"forecast"`
	Counts   map[string]int   `yaml:"counts"`
}

// ScheduleExpect asserts one event amount.
type ScheduleExpect struct {
	Year        int      `yaml:"year"`
	ComponentID string   `yaml:"component_id"`
	Amount      float64  `yaml:"amount"`
	Tolerance   *float64 `yaml:"tolerance"`
}

// ForecastExpect asserts any subset of one year's balances.
type ForecastExpect struct {
	Year             int      `yaml:"year"`
	BeginningBalance *float64 `yaml:"beginning_balance"`
	Contributions    *float64 `yaml:"contributions"`
	Interest         *float64 `yaml:"interest"`
	Expenses         *float64 `yaml:"expenses"`
	EndingBalance    *float64 `yaml:"ending_balance"`
	Tolerance        *float64 `yaml:"tolerance"`
}

// WorkbookExpect holds assertions on rendered cells.
type WorkbookExpect struct {
	Values   []CellExpect `yaml:"values"`
	Formulas []CellExpect `yaml:"formulas"`
}

// CellExpect asserts one cell. Equals may be a number or a string.
type CellExpect struct {
	Sheet     string      `yaml:"sheet"`
	Cell      string      `yaml:"cell"`
	Equals    interface{} `yaml:"equals"`
	Tolerance *float64    `yaml:"tolerance"`
}

func (e Expect) empty() bool {
	return len(e.Workbook.Values) == 0 && len(e.Workbook.Formulas) == 0
}

// Fixture is one discovered fixture directory.
type Fixture struct {
	Name         string
	DataDir      string
	ExpectedPath string
	Scenario     string
	Expectations Expectations
}

// Load reads the expectations at path. The containing directory is the
// fixture's data directory.
func Load(path string) (*Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var expectations Expectations
	if err := yaml.Unmarshal(content, &expectations); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	if expectations.Scenario == "" {
		return nil, fmt.Errorf("missing scenario in %s", path)
	}
	dir := filepath.Dir(path)
	return &Fixture{
		Name:         filepath.Base(dir),
		DataDir:      dir,
		ExpectedPath: path,
		Scenario:     expectations.Scenario,
		Expectations: expectations,
	}, nil
}

// Find loads every expected_values.yaml below root, sorted by path.
func Find(root string) ([]*Fixture, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == constants.ExpectedValuesFile {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s for fixtures: %w", root, err)
	}
	sort.Strings(paths)

	fixtures := make([]*Fixture, 0, len(paths))
	for _, path := range paths {
		f, err := Load(path)
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

// Result is the outcome of running one fixture.
type Result struct {
	Fixture  *Fixture
	Issues   []string
	Warnings []string
	Output   string
}

// Passed reports whether the fixture met every expectation.
func (r Result) Passed() bool {
	return len(r.Issues) == 0
}

// Run validates and, when no errors are expected, builds the fixture into
// dist and checks every expectation.
func Run(logger *zap.Logger, f *Fixture, dist string) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := Result{Fixture: f}
	expect := f.Expectations.Expect

	run, err := scenario.Validate(logger, scenario.Paths{Scenario: f.Scenario, DataDir: f.DataDir})
	if err != nil {
		result.Issues = append(result.Issues, err.Error())
		return result
	}
	result.Warnings = run.Validation.Warnings

	result.Issues = append(result.Issues, compareLists("validation errors", expect.Validation.Errors, run.Validation.ErrorMessages())...)
	result.Issues = append(result.Issues, compareLists("validation warnings", expect.Validation.Warnings, run.Validation.Warnings)...)

	if len(expect.Validation.Errors) > 0 {
		return result
	}
	if !run.Validation.Valid() {
		result.Issues = append(result.Issues, "Validation produced errors but none were expected.")
		return result
	}

	result.Issues = append(result.Issues, checkModel(run, expect.Model)...)

	path, err := workbook.Write(logger, run, dist)
	if err != nil {
		result.Issues = append(result.Issues, "Build failed: "+err.Error())
		return result
	}
	result.Output = path
	if !expect.empty() {
		result.Issues = append(result.Issues, checkWorkbook(path, expect.Workbook)...)
	}

	logger.Debug("fixture checked",
		zap.String("op", "fixture.Run"),
		zap.String("fixture", f.Name),
		zap.Int("issues", len(result.Issues)),
	)
	return result
}

// Summary renders the closing line of a fixture run.
func Summary(passed, failed int) string {
	return fmt.Sprintf("Fixture summary: %d passed, %d failed, %d total.", passed, failed, passed+failed)
}

func tolerance(t *float64) float64 {
	if t == nil {
		return defaultTolerance
	}
	return *t
}

func compareLists(label string, expected, actual []string) []string {
	e := append([]string{}, expected...)
	a := append([]string{}, actual...)
	sort.Strings(e)
	sort.Strings(a)
	if strings.Join(e, "\x00") == strings.Join(a, "\x00") && len(e) == len(a) {
		return nil
	}
	return []string{fmt.Sprintf("Mismatch in %s. expected=%q actual=%q", label, e, a)}
}

func checkModel(run *scenario.Run, expect ModelExpect) []string {
	var issues []string

	type eventKey struct {
		year int
		id   string
	}
	events := make(map[eventKey]float64)
	for _, e := range run.Schedule.Events {
		events[eventKey{e.Year, e.ComponentID}] += e.Amount
	}
	for _, want := range expect.Schedule {
		got, ok := events[eventKey{want.Year, want.ComponentID}]
		if !ok {
			issues = append(issues, fmt.Sprintf("Schedule missing %s in %d", want.ComponentID, want.Year))
			continue
		}
		if math.Abs(got-want.Amount) > tolerance(want.Tolerance) {
			issues = append(issues, fmt.Sprintf("Schedule %s %d expected %v got %v", want.ComponentID, want.Year, want.Amount, got))
		}
	}

	years := make(map[int]model.ForecastYear, len(run.Forecast))
	for _, fy := range run.Forecast {
		years[fy.Year] = fy
	}
	for _, want := range expect.Forecast {
		fy, ok := years[want.Year]
		if !ok {
			issues = append(issues, fmt.Sprintf("Forecast missing year %d", want.Year))
			continue
		}
		fields := []struct {
			name     string
			expected *float64
			actual   float64
		}{
			{"beginning_balance", want.BeginningBalance, fy.BeginningBalance},
			{"contributions", want.Contributions, fy.Contributions},
			{"interest", want.Interest, fy.Interest},
			{"expenses", want.Expenses, fy.Expenses},
			{"ending_balance", want.EndingBalance, fy.EndingBalance},
		}
		for _, field := range fields {
			if field.expected == nil {
				continue
			}
			if math.Abs(field.actual-*field.expected) > tolerance(want.Tolerance) {
				issues = append(issues, fmt.Sprintf("Forecast %d %s expected %v got %v", want.Year, field.name, *field.expected, field.actual))
			}
		}
	}

	if len(expect.Counts) > 0 && run.Summary != nil {
		actual := run.Summary.Counts()
		keys := make([]string, 0, len(expect.Counts))
		for key := range expect.Counts {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			got, ok := actual[key]
			if !ok {
				issues = append(issues, fmt.Sprintf("Count %s is not a known count", key))
				continue
			}
			if got != expect.Counts[key] {
				issues = append(issues, fmt.Sprintf("Count %s expected %d got %d", key, expect.Counts[key], got))
			}
		}
	}

	return issues
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func checkWorkbook(path string, expect WorkbookExpect) []string {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return []string{fmt.Sprintf("failed to open %s: %v", path, err)}
	}
	defer func() { _ = f.Close() }()

	sheets := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		sheets[name] = true
	}

	var issues []string
	for _, want := range expect.Values {
		if !sheets[want.Sheet] {
			issues = append(issues, "Missing sheet: "+want.Sheet)
			continue
		}
		got, err := f.GetCellValue(want.Sheet, want.Cell, excelize.Options{RawCellValue: true})
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s!%s: %v", want.Sheet, want.Cell, err))
			continue
		}
		if expected, ok := number(want.Equals); ok {
			actual, parseErr := strconv.ParseFloat(got, 64)
			if parseErr != nil || math.Abs(actual-expected) > tolerance(want.Tolerance) {
				issues = append(issues, fmt.Sprintf("%s!%s expected %v got %s", want.Sheet, want.Cell, want.Equals, got))
			}
			continue
		}
		expected := ""
		if want.Equals != nil {
			expected = fmt.Sprint(want.Equals)
		}
		if got != expected {
			issues = append(issues, fmt.Sprintf("%s!%s expected %v got %s", want.Sheet, want.Cell, want.Equals, got))
		}
	}

	for _, want := range expect.Formulas {
		if !sheets[want.Sheet] {
			issues = append(issues, "Missing sheet: "+want.Sheet)
			continue
		}
		got, err := f.GetCellFormula(want.Sheet, want.Cell)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s!%s: %v", want.Sheet, want.Cell, err))
			continue
		}
		expected := strings.TrimPrefix(fmt.Sprint(want.Equals), "=")
		if got != expected {
			issues = append(issues, fmt.Sprintf("%s!%s formula expected %v got %s", want.Sheet, want.Cell, want.Equals, got))
		}
	}
	return issues
}

// ErrNoFixtures is returned by Select when nothing matches.
var ErrNoFixtures = errors.New("no fixture found")

// Select picks the single fixture for scenarioName from fixtures.
func Select(fixtures []*Fixture, scenarioName string) (*Fixture, error) {
	var matches []*Fixture
	for _, f := range fixtures {
		if f.Scenario == scenarioName {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w for scenario %s", ErrNoFixtures, scenarioName)
	case 1:
		return matches[0], nil
	}
	return nil, fmt.Errorf("multiple fixtures found for scenario %s", scenarioName)
}
