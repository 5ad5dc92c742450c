package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const componentHeader = "id,name,category,base_cost,spend_year,recurring,interval_years,include\n"

func issueStrings(issues []error) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Error()
	}
	return out
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestReadComponents(t *testing.T) {
	input := componentHeader +
		"roof,Roof,Building,1000,,Y,5,Y\n" +
		",,,,,,,\n" +
		"paint,Paint,Exterior,300,2027,N,N/A,Y\n"

	components, issues, err := ReadComponents(strings.NewReader(input), "components.csv")
	if err != nil {
		t.Fatalf("ReadComponents() error = %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("Unexpected issues: %v", issueStrings(issues))
	}
	if len(components) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(components))
	}

	roof := components[0]
	if roof.Row != 2 || roof.ID != "roof" || roof.Interval() != 5 || roof.SpendYear != nil {
		t.Errorf("Unexpected roof component: %+v", roof)
	}
	if !roof.Recurring.Yes() || !roof.Included() {
		t.Errorf("Expected roof recurring and included")
	}

	paint := components[1]
	if paint.Row != 4 {
		t.Errorf("Expected blank row to be counted, paint row = %d", paint.Row)
	}
	if paint.SpendYear == nil || *paint.SpendYear != 2027 {
		t.Errorf("Expected paint spend year 2027, got %v", paint.SpendYear)
	}
	if paint.IntervalYears != nil {
		t.Errorf("Expected N/A interval to be ignored for one-time component")
	}
}

func TestReadComponentsIssues(t *testing.T) {
	tests := []struct {
		name     string
		row      string
		expected string
	}{
		{"Missing base cost", "item,Item,General,,2025,N,,Y\n", "components.csv row 2: base_cost is required"},
		{"Non numeric base cost", "item,Item,General,abc,2025,N,,Y\n", "components.csv row 2: base_cost must be a number"},
		{"NaN base cost", "item,Item,General,NaN,2025,N,,Y\n", "components.csv row 2: base_cost must be a number"},
		{"Infinite base cost", "item,Item,General,+Inf,2025,N,,Y\n", "components.csv row 2: base_cost must be a number"},
		{"Non integer spend year", "item,Item,General,100,202A,N,,Y\n", "components.csv row 2: spend_year must be an integer"},
		{"Non integer interval", "item,Item,General,100,,Y,3.5,Y\n", "components.csv row 2: interval_years must be an integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, issues, err := ReadComponents(strings.NewReader(componentHeader+tt.row), "components.csv")
			if err != nil {
				t.Fatalf("ReadComponents() error = %v", err)
			}
			got := issueStrings(issues)
			if !contains(got, tt.expected) {
				t.Errorf("Expected issue %q, got %v", tt.expected, got)
			}
		})
	}
}

func TestReadComponentsMissingColumns(t *testing.T) {
	input := "id,name,category,base_cost,spend_year,recurring,interval_years\nitem,Item,General,100,2025,N,\n"
	components, issues, err := ReadComponents(strings.NewReader(input), "components.csv")
	if err != nil {
		t.Fatalf("ReadComponents() error = %v", err)
	}
	if components != nil {
		t.Errorf("Expected no components when columns are missing")
	}
	got := issueStrings(issues)
	if !contains(got, "components.csv missing columns: include") {
		t.Errorf("Unexpected issues: %v", got)
	}
}

func TestReadComponentsEmptyFile(t *testing.T) {
	_, issues, err := ReadComponents(strings.NewReader(""), "components.csv")
	if err != nil {
		t.Fatalf("ReadComponents() error = %v", err)
	}
	got := issueStrings(issues)
	if !contains(got, "components.csv is missing a header row") {
		t.Errorf("Unexpected issues: %v", got)
	}
}

func TestReadContributions(t *testing.T) {
	input := "year,contribution\n2025,100\n2025,150\n,\n2026,\n202X,5\n2027,abc\n"
	rows, issues, err := ReadContributions(strings.NewReader(input), "scenario.csv")
	if err != nil {
		t.Fatalf("ReadContributions() error = %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].Year != 2025 || rows[0].Amount != 100 || rows[1].Amount != 150 {
		t.Errorf("Expected duplicates kept in file order, got %+v", rows[:2])
	}
	if rows[2].Year != 2026 || rows[2].Amount != 0 {
		t.Errorf("Expected blank contribution to read as zero, got %+v", rows[2])
	}

	got := issueStrings(issues)
	for _, want := range []string{
		"scenario.csv row 6: year must be an integer",
		"scenario.csv row 7: contribution must be a number",
	} {
		if !contains(got, want) {
			t.Errorf("Expected issue %q, got %v", want, got)
		}
	}
}

func TestReadContributionsNonFinite(t *testing.T) {
	input := "year,contribution\n2025,NaN\n2026,inf\n2027,-Inf\n2028,10\n"
	rows, issues, err := ReadContributions(strings.NewReader(input), "scenario.csv")
	if err != nil {
		t.Fatalf("ReadContributions() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Year != 2028 {
		t.Errorf("Expected only the finite row, got %+v", rows)
	}
	got := issueStrings(issues)
	for _, want := range []string{
		"scenario.csv row 2: contribution must be a number",
		"scenario.csv row 3: contribution must be a number",
		"scenario.csv row 4: contribution must be a number",
	} {
		if !contains(got, want) {
			t.Errorf("Expected issue %q, got %v", want, got)
		}
	}
}

func TestReadContributionsMissingColumns(t *testing.T) {
	_, issues, err := ReadContributions(strings.NewReader("year,amount\n2025,0\n"), "scenario.csv")
	if err != nil {
		t.Fatalf("ReadContributions() error = %v", err)
	}
	got := issueStrings(issues)
	if !contains(got, "scenario.csv missing columns: contribution") {
		t.Errorf("Unexpected issues: %v", got)
	}
}

func TestReadContributionsFileNotFound(t *testing.T) {
	dir := t.TempDir()
	path := ContributionsPath(dir, "missing")
	_, _, err := ReadContributionsFile(path)
	if err == nil {
		t.Fatal("Expected error for missing scenario file")
	}
	if !strings.Contains(err.Error(), "Scenario file not found") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestReadComponentsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "components.csv")
	if err := os.WriteFile(path, []byte(componentHeader+"roof,Roof,Building,1000,,Y,5,Y\n"), 0o644); err != nil {
		t.Fatalf("failed to write components: %v", err)
	}
	components, issues, err := ReadComponentsFile(path)
	if err != nil {
		t.Fatalf("ReadComponentsFile() error = %v", err)
	}
	if len(issues) != 0 || len(components) != 1 {
		t.Errorf("Unexpected result: components=%d issues=%v", len(components), issueStrings(issues))
	}
}
