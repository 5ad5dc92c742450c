// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/model"
)

// FindYear finds a forecast year in the results slice.
// Returns a pointer to the year if found, nil otherwise.
func FindYear(results []model.ForecastYear, year int) *model.ForecastYear {
	for i := range results {
		if results[i].Year == year {
			return &results[i]
		}
	}
	return nil
}

// Scenario bundles the inputs of one worked example.
type Scenario struct {
	Config        config.Configuration
	Components    []model.Component
	Contributions []model.ContributionRow
}

// Plan builds contribution rows for consecutive years starting at start.
func Plan(start int, amounts ...float64) []model.ContributionRow {
	rows := make([]model.ContributionRow, len(amounts))
	for i, amount := range amounts {
		rows[i] = model.ContributionRow{Row: i + 2, Year: start + i, Amount: amount}
	}
	return rows
}

// TwoComponentScenario is a five year horizon from 2025 with a 10% return, no
// inflation, a roof replaced every other year and a one-time paint job in 2027.
// Its ending balances are 1400, 1640, 1604, 1864.40 and 2350.84.
func TwoComponentScenario() Scenario {
	conf := config.Default()
	conf.StartingYear = 2025
	conf.ForecastYears = 5
	conf.Features.ForecastYears = 5
	conf.BeginningReserveBalance = 1000
	conf.InvestmentReturnRate = 0.10
	conf.InflationRate = 0

	return Scenario{
		Config: conf,
		Components: []model.Component{
			{Row: 2, ID: "roof", Name: "Roof", Category: "Building", BaseCost: 200, Recurring: "Y", Include: "Y", IntervalYears: model.IntPtr(2)},
			{Row: 3, ID: "paint", Name: "Paint", Category: "Exterior", BaseCost: 300, Recurring: "N", Include: "Y", SpendYear: model.IntPtr(2027)},
		},
		Contributions: Plan(2025, 500, 100, 300, 100, 500),
	}
}

// UnderfundedScenario is a three year horizon from 2025 with a single 2000
// expense due in the first year and no contributions. Every year ends at -1000.
func UnderfundedScenario() Scenario {
	conf := config.Default()
	conf.StartingYear = 2025
	conf.ForecastYears = 3
	conf.Features.ForecastYears = 3
	conf.BeginningReserveBalance = 1000

	return Scenario{
		Config: conf,
		Components: []model.Component{
			{Row: 2, ID: "elevator", Name: "Elevator", Category: "Mechanical", BaseCost: 2000, Recurring: "N", Include: "Y", SpendYear: model.IntPtr(2025)},
		},
		Contributions: Plan(2025, 0, 0, 0),
	}
}
