// Package schedule expands component definitions into dated expense events
// inside the forecast window.
package schedule

import (
	"math"
	"sort"

	"github.com/iwvelando/reserve-forecast/internal/config"
	"github.com/iwvelando/reserve-forecast/internal/model"
	"go.uber.org/zap"
)

// Result is the ordered event list plus the one-time components whose spend
// year fell outside the window.
type Result struct {
	Events  []model.ScheduleEvent
	Dropped []model.DroppedRow
}

// Rows returns the expanded event count checked against max_schedule_rows.
func (r Result) Rows() int {
	return len(r.Events)
}

// ExpensesByYear sums event amounts per year.
func (r Result) ExpensesByYear() map[int]float64 {
	totals := make(map[int]float64)
	for _, e := range r.Events {
		totals[e.Year] += e.Amount
	}
	return totals
}

// ActiveRows returns the source rows of components with at least one event.
func (r Result) ActiveRows() map[int]bool {
	active := make(map[int]bool)
	for _, e := range r.Events {
		active[e.ComponentRow] = true
	}
	return active
}

// InflatedCost returns base escalated to year using the configured inflation
// rate and spend timing offset.
func InflatedCost(conf config.Configuration, base float64, year int) float64 {
	exponent := float64(year-conf.StartingYear) + conf.Offset()
	return base * math.Pow(1+conf.InflationRate, exponent)
}

// Expand produces the schedule for components. Components that are not
// included, or whose kind-specific field is missing or invalid, produce no
// events; the validator reports those rows.
func Expand(logger *zap.Logger, conf config.Configuration, components []model.Component) Result {
	if logger == nil {
		logger = zap.NewNop()
	}

	var result Result
	if !conf.Features.EnableScheduleExpansion {
		logger.Debug("schedule expansion disabled",
			zap.String("op", "schedule.Expand"),
		)
		return result
	}

	type ordered struct {
		event model.ScheduleEvent
		index int
	}
	var pending []ordered

	emit := func(index int, c model.Component, year int) {
		pending = append(pending, ordered{
			index: index,
			event: model.ScheduleEvent{
				Year:          year,
				ComponentID:   c.ID,
				ComponentName: c.Name,
				ComponentRow:  c.Row,
				BaseCost:      c.BaseCost,
				Amount:        InflatedCost(conf, c.BaseCost, year),
			},
		})
	}

	end := conf.EndYear()
	for i, c := range components {
		if !c.Included() {
			continue
		}
		switch c.Kind() {
		case model.KindRecurring:
			interval := c.Interval()
			if interval <= 0 {
				continue
			}
			if end < conf.StartingYear {
				continue
			}
			for k := 0; k <= (end-conf.StartingYear)/interval; k++ {
				emit(i, c, conf.StartingYear+k*interval)
			}
		default:
			if c.SpendYear == nil {
				continue
			}
			year := *c.SpendYear
			if !conf.InWindow(year) {
				result.Dropped = append(result.Dropped, model.DroppedRow{Row: c.Row, ComponentID: c.ID, Year: year})
				continue
			}
			emit(i, c, year)
		}
	}

	sort.SliceStable(pending, func(a, b int) bool {
		if pending[a].event.Year != pending[b].event.Year {
			return pending[a].event.Year < pending[b].event.Year
		}
		return pending[a].index < pending[b].index
	})

	result.Events = make([]model.ScheduleEvent, len(pending))
	for i, p := range pending {
		result.Events[i] = p.event
	}

	logger.Debug("expanded schedule",
		zap.String("op", "schedule.Expand"),
		zap.Int("events", len(result.Events)),
		zap.Int("dropped", len(result.Dropped)),
	)
	return result
}
