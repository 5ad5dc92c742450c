// Package model defines the records that flow between the reserve forecast
// stages: component definitions, contribution rows, schedule events, forecast
// years and the validation error taxonomy.
package model

import "github.com/iwvelando/reserve-forecast/pkg/constants"

// Flag holds a Y/N column exactly as it was read from the source row.
type Flag string

// Valid reports whether the flag is literally Y or N.
func (f Flag) Valid() bool {
	return f == constants.FlagYes || f == constants.FlagNo
}

// Yes reports whether the flag is literally Y.
func (f Flag) Yes() bool {
	return f == constants.FlagYes
}

// Kind discriminates recurring components from one-time ones.
type Kind int

const (
	// KindOneTime components are spent once, in SpendYear.
	KindOneTime Kind = iota
	// KindRecurring components are replaced every IntervalYears.
	KindRecurring
)

func (k Kind) String() string {
	if k == KindRecurring {
		return "recurring"
	}
	return "one-time"
}

// Component is one capital expense definition. Exactly one of IntervalYears
// (recurring) or SpendYear (one-time) is meaningful, selected by Kind.
type Component struct {
	Row           int     `json:"row"`
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	BaseCost      float64 `json:"base_cost"`
	Recurring     Flag    `json:"recurring"`
	Include       Flag    `json:"include"`
	IntervalYears *int    `json:"interval_years,omitempty"`
	SpendYear     *int    `json:"spend_year,omitempty"`
}

// Kind returns the discriminant derived from the recurring flag.
func (c Component) Kind() Kind {
	if c.Recurring.Yes() {
		return KindRecurring
	}
	return KindOneTime
}

// Included reports whether the component takes part in the forecast.
func (c Component) Included() bool {
	return c.Include.Yes()
}

// Interval returns the replacement interval, or 0 when it is absent.
func (c Component) Interval() int {
	if c.IntervalYears == nil {
		return 0
	}
	return *c.IntervalYears
}

// IntPtr returns a pointer to v. Handy for building components in code.
func IntPtr(v int) *int {
	return &v
}
