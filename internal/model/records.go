package model

// ContributionRow is one line of a contribution plan, duplicates included.
type ContributionRow struct {
	Row    int     `json:"row"`
	Year   int     `json:"year"`
	Amount float64 `json:"amount"`
}

// ScheduleEvent is one concrete dated expense derived from a component.
type ScheduleEvent struct {
	Year          int     `json:"year"`
	ComponentID   string  `json:"component_id"`
	ComponentName string  `json:"component_name"`
	ComponentRow  int     `json:"component_row"`
	BaseCost      float64 `json:"base_cost"`
	Amount        float64 `json:"amount"`
}

// DroppedRow records a component whose event fell outside the forecast window.
type DroppedRow struct {
	Row         int    `json:"row"`
	ComponentID string `json:"component_id"`
	Year        int    `json:"year"`
}

// ForecastYear is one year of the balance roll-forward. Nil ratios mean the
// metric has no value for the year because its denominator was not positive.
type ForecastYear struct {
	Year                    int      `json:"year"`
	BeginningBalance        float64  `json:"beginning_balance"`
	Contributions           float64  `json:"contributions"`
	Interest                float64  `json:"interest"`
	Expenses                float64  `json:"expenses"`
	EndingBalance           float64  `json:"ending_balance"`
	FullyFundedBalance      *float64 `json:"fully_funded_balance"`
	PercentFunded           *float64 `json:"percent_funded"`
	Coverage5yr             *float64 `json:"coverage_5yr"`
	CumulativeContributions float64  `json:"cumulative_contributions"`
	CumulativeInterest      float64  `json:"cumulative_interest"`
}

// Summary aggregates a forecast for dashboards and fixture counts.
type Summary struct {
	ForecastYears        int     `json:"forecast_years"`
	ScheduleItems        int     `json:"schedule_items"`
	NegativeBalanceYears int     `json:"negative_balance_years"`
	ZeroExpenseYears     int     `json:"zero_expense_years"`
	LowestEndingBalance  float64 `json:"lowest_ending_balance"`
	LowestBalanceYear    int     `json:"lowest_balance_year"`
	FinalEndingBalance   float64 `json:"final_ending_balance"`
	TotalContributions   float64 `json:"total_contributions"`
	TotalInterest        float64 `json:"total_interest"`
	TotalExpenses        float64 `json:"total_expenses"`
}

// Counts exposes the integer summary values by the names fixtures use.
func (s Summary) Counts() map[string]int {
	return map[string]int{
		"schedule_items":         s.ScheduleItems,
		"negative_balance_years": s.NegativeBalanceYears,
		"zero_expense_years":     s.ZeroExpenseYears,
		"forecast_years":         s.ForecastYears,
	}
}
