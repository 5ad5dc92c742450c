package fixture

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func writeFixture(t *testing.T, root, name, expected string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	writeFile(t, filepath.Join(dir, "inputs.yaml"), `starting_year: 2025
beginning_reserve_balance: 100
inflation_rate: 0
investment_return_rate: 0
forecast_years: 2
`)
	writeFile(t, filepath.Join(dir, "components.csv"),
		"id,name,category,base_cost,spend_year,recurring,interval_years,include\nfence,Fence,Grounds,50,2026,N,,Y\n")
	writeFile(t, filepath.Join(dir, "contributions", "baseline.csv"), "year,contribution\n2025,10\n2026,10\n")
	writeFile(t, filepath.Join(dir, "expected_values.yaml"), expected)
	return dir
}

func TestRunRepositoryFixtures(t *testing.T) {
	fixtures, err := Find(filepath.Join("..", "..", "data", "fixtures"))
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(fixtures) != 3 {
		t.Fatalf("Expected 3 fixtures, got %d", len(fixtures))
	}

	dist := t.TempDir()
	for _, f := range fixtures {
		t.Run(f.Name, func(t *testing.T) {
			result := Run(zap.NewNop(), f, dist)
			if !result.Passed() {
				t.Errorf("Fixture %s failed: %v", f.Name, result.Issues)
			}
		})
	}
}

func TestRunPassing(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "fence", `scenario: baseline
expect:
  model:
    forecast:
      - {year: 2026, ending_balance: 70}
    schedule:
      - {year: 2026, component_id: fence, amount: 50}
    counts:
      schedule_items: 1
  workbook:
    values:
      - {sheet: Forecast, cell: F3, equals: 70}
      - {sheet: Schedule, cell: B2, equals: fence}
    formulas:
      - {sheet: Forecast, cell: N2, equals: "=L2+C2+M2-E2"}
`)

	fixtures, err := Find(root)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	result := Run(zap.NewNop(), fixtures[0], filepath.Join(root, "dist"))
	if !result.Passed() {
		t.Fatalf("Expected fixture to pass, got %v", result.Issues)
	}
	if _, err := os.Stat(result.Output); err != nil {
		t.Errorf("Expected workbook at %s: %v", result.Output, err)
	}
}

func TestRunReportsIssues(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "fence", `scenario: baseline
expect:
  validation:
    warnings:
      - "Duplicate contribution years: 2025"
  model:
    forecast:
      - {year: 2026, ending_balance: 71}
      - {year: 2030, ending_balance: 0}
    schedule:
      - {year: 2025, component_id: fence, amount: 50}
    counts:
      negative_balance_years: 1
  workbook:
    values:
      - {sheet: Forecast, cell: F3, equals: 75}
      - {sheet: Nowhere, cell: A1, equals: 1}
    formulas:
      - {sheet: Forecast, cell: N2, equals: "=L2"}
`)

	f, err := Load(filepath.Join(root, "fence", "expected_values.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	result := Run(zap.NewNop(), f, filepath.Join(root, "dist"))

	expected := []string{
		"Mismatch in validation warnings.",
		"Forecast 2026 ending_balance expected 71 got 70",
		"Forecast missing year 2030",
		"Schedule missing fence in 2025",
		"Count negative_balance_years expected 1 got 0",
		"Forecast!F3 expected 75 got 70",
		"Missing sheet: Nowhere",
		"Forecast!N2 formula expected =L2 got L2+C2+M2-E2",
	}
	joined := strings.Join(result.Issues, "\n")
	for _, want := range expected {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected issue containing %q in:\n%s", want, joined)
		}
	}
}

func TestRunExpectedErrorsStopBeforeBuild(t *testing.T) {
	root := t.TempDir()
	dir := writeFixture(t, root, "broken", `scenario: baseline
expect:
  validation:
    errors:
      - "Missing contributions for years: 2026"
`)
	writeFile(t, filepath.Join(dir, "contributions", "baseline.csv"), "year,contribution\n2025,10\n")

	f, err := Load(filepath.Join(dir, "expected_values.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	result := Run(zap.NewNop(), f, filepath.Join(root, "dist"))
	if !result.Passed() {
		t.Errorf("Expected fixture to pass, got %v", result.Issues)
	}
	if result.Output != "" {
		t.Errorf("Expected no workbook, got %s", result.Output)
	}
}

func TestLoadRequiresScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expected_values.yaml")
	writeFile(t, path, "expect: {}\n")
	if _, err := Load(path); err == nil {
		t.Error("Expected error for missing scenario")
	}
}

func TestSelect(t *testing.T) {
	fixtures := []*Fixture{
		{Name: "a", Scenario: "baseline"},
		{Name: "b", Scenario: "lean"},
		{Name: "c", Scenario: "lean"},
	}

	if f, err := Select(fixtures, "baseline"); err != nil || f.Name != "a" {
		t.Errorf("Select(baseline) = %v, %v", f, err)
	}
	if _, err := Select(fixtures, "lean"); err == nil {
		t.Error("Expected error for ambiguous scenario")
	}
	if _, err := Select(fixtures, "none"); !errors.Is(err, ErrNoFixtures) {
		t.Errorf("Expected ErrNoFixtures, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(2, 1); got != "Fixture summary: 2 passed, 1 failed, 3 total." {
		t.Errorf("Summary() = %q", got)
	}
}
