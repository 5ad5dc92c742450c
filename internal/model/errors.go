package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ConfigError reports malformed assumptions in inputs.yaml.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// ComponentValidationError reports a problem with the components file. Row is
// the 1-based CSV row (the header is row 1); zero means the file as a whole.
type ComponentValidationError struct {
	File    string
	Row     int
	Field   string
	Message string
}

func (e *ComponentValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s row %d: %s", e.File, e.Row, e.Message)
	}
	return fmt.Sprintf("%s %s", e.File, e.Message)
}

// ContributionValidationError reports missing forecast years, or a malformed
// row of a contribution plan.
type ContributionValidationError struct {
	File    string
	Row     int
	Years   []int
	Message string
}

func (e *ContributionValidationError) Error() string {
	if len(e.Years) > 0 {
		return e.Message + ": " + JoinYears(e.Years)
	}
	if e.Row > 0 {
		return fmt.Sprintf("%s row %d: %s", e.File, e.Row, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s %s", e.File, e.Message)
	}
	return e.Message
}

// ScheduleOverflowError reports more expanded events than configured capacity.
type ScheduleOverflowError struct {
	Rows int
	Max  int
}

func (e *ScheduleOverflowError) Error() string {
	return fmt.Sprintf("Schedule rows %d exceed max_schedule_rows %d", e.Rows, e.Max)
}

// JoinYears renders years ascending and comma separated. The input is not
// modified.
func JoinYears(years []int) string {
	sorted := append([]int(nil), years...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, y := range sorted {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}
