// Package loader reads component definitions and contribution plans from CSV
// files. Problems with individual rows are returned as row-indexed issues so
// validation can report all of them at once; only failures to read the file
// itself are returned as errors.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iwvelando/reserve-forecast/internal/model"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/mathutil"
)

// ComponentColumns lists the required header of components.csv.
var ComponentColumns = []string{
	"id",
	"name",
	"category",
	"base_cost",
	"spend_year",
	"recurring",
	"interval_years",
	"include",
}

// ContributionColumns lists the required header of a contribution plan.
var ContributionColumns = []string{"year", "contribution"}

type table struct {
	name   string
	index  map[string]int
	reader *csv.Reader
	row    int
}

func openTable(r io.Reader, name string, required []string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("is missing a header row")
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}

	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	return &table{name: name, index: index, reader: reader, row: 1}, nil
}

// next returns the following record, or nil at end of input.
func (t *table) next() (map[string]string, error) {
	record, err := t.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	// Blank lines are skipped by the csv reader, so take the row from the
	// reader's position rather than counting records.
	t.row, _ = t.reader.FieldPos(0)
	values := make(map[string]string, len(t.index))
	for col, i := range t.index {
		if i < len(record) {
			values[col] = strings.TrimSpace(record[i])
		}
	}
	return values, nil
}

// ReadComponentsFile opens path and reads it with ReadComponents.
func ReadComponentsFile(path string) ([]model.Component, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open components file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadComponents(f, filepath.Base(path))
}

// ReadComponents parses component rows. Rows with neither id nor name are
// skipped but still counted, so row numbers match the source file.
func ReadComponents(r io.Reader, name string) ([]model.Component, []error, error) {
	t, err := openTable(r, name, ComponentColumns)
	if err != nil {
		return nil, []error{&model.ComponentValidationError{File: name, Message: err.Error()}}, nil
	}

	var components []model.Component
	var issues []error
	issue := func(row int, field, msg string) {
		issues = append(issues, &model.ComponentValidationError{File: name, Row: row, Field: field, Message: msg})
	}

	for {
		values, err := t.next()
		if err != nil {
			return nil, nil, err
		}
		if values == nil {
			break
		}
		if values["id"] == "" && values["name"] == "" {
			continue
		}

		c := model.Component{
			Row:       t.row,
			ID:        values["id"],
			Name:      values["name"],
			Category:  values["category"],
			Recurring: model.Flag(values["recurring"]),
			Include:   model.Flag(values["include"]),
		}

		if raw := values["base_cost"]; raw == "" {
			issue(t.row, "base_cost", "base_cost is required")
		} else if cost, err := parseAmount(raw); err != nil {
			issue(t.row, "base_cost", "base_cost must be a number")
		} else {
			c.BaseCost = cost
		}

		// Only the field the component kind uses is parsed strictly; the other
		// one may hold free text such as N/A.
		recurring := c.Recurring.Yes()
		if raw := values["spend_year"]; raw != "" {
			if year, err := strconv.Atoi(raw); err == nil {
				c.SpendYear = model.IntPtr(year)
			} else if !recurring {
				issue(t.row, "spend_year", "spend_year must be an integer")
			}
		}
		if raw := values["interval_years"]; raw != "" {
			if interval, err := strconv.Atoi(raw); err == nil {
				if recurring {
					c.IntervalYears = model.IntPtr(interval)
				}
			} else if recurring {
				issue(t.row, "interval_years", "interval_years must be an integer")
			}
		}

		components = append(components, c)
	}

	return components, issues, nil
}

// ContributionsPath returns the plan file for scenario inside dataDir.
func ContributionsPath(dataDir, scenario string) string {
	return filepath.Join(dataDir, constants.ContributionsDir, scenario+".csv")
}

// ReadContributionsFile opens path and reads it with ReadContributions.
func ReadContributionsFile(path string) ([]model.ContributionRow, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("Scenario file not found: %s", path)
		}
		return nil, nil, fmt.Errorf("failed to open contributions file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadContributions(f, filepath.Base(path))
}

// ReadContributions parses plan rows in file order, duplicates included. Rows
// with a blank year are skipped and a blank contribution reads as zero.
func ReadContributions(r io.Reader, name string) ([]model.ContributionRow, []error, error) {
	t, err := openTable(r, name, ContributionColumns)
	if err != nil {
		return nil, []error{&model.ContributionValidationError{File: name, Message: err.Error()}}, nil
	}

	var rows []model.ContributionRow
	var issues []error
	for {
		values, err := t.next()
		if err != nil {
			return nil, nil, err
		}
		if values == nil {
			break
		}
		rawYear := values["year"]
		if rawYear == "" {
			continue
		}
		year, err := strconv.Atoi(rawYear)
		if err != nil {
			issues = append(issues, &model.ContributionValidationError{File: name, Row: t.row, Message: "year must be an integer"})
			continue
		}

		amount := 0.0
		if raw := values["contribution"]; raw != "" {
			amount, err = parseAmount(raw)
			if err != nil {
				issues = append(issues, &model.ContributionValidationError{File: name, Row: t.row, Message: "contribution must be a number"})
				continue
			}
		}

		rows = append(rows, model.ContributionRow{Row: t.row, Year: year, Amount: amount})
	}

	return rows, issues, nil
}

var errNotFinite = errors.New("not a finite number")

// parseAmount parses a dollar amount. NaN and infinities are rejected since
// they would pass every range check and poison each later balance.
func parseAmount(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if !mathutil.IsFinite(v) {
		return 0, errNotFinite
	}
	return v, nil
}
