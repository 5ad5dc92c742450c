// Package optimization provides shared data structures for optimization results.
package optimization

// Summary captures the level contribution a search settled on.
type Summary struct {
	Contribution        float64  `json:"contribution"`
	Floor               float64  `json:"floor"`
	MinBalance          float64  `json:"min_balance"`
	MinBalanceYear      int      `json:"min_balance_year"`
	Headroom            float64  `json:"headroom"`
	Iterations          int      `json:"iterations"`
	Converged           bool     `json:"converged"`
	Notes               []string `json:"notes,omitempty"`
	ContributionDisplay string   `json:"contribution_display,omitempty"`
}
