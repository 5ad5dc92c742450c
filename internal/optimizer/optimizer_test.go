package optimizer

import (
	"math"
	"testing"

	"github.com/iwvelando/reserve-forecast/internal/schedule"
	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"github.com/iwvelando/reserve-forecast/pkg/testutil"
	"go.uber.org/zap"
)

func newRunner(t *testing.T, s testutil.Scenario) *Runner {
	t.Helper()
	sched := schedule.Expand(zap.NewNop(), s.Config, s.Components)
	runner, err := NewRunner(zap.NewNop(), s.Config, s.Components, sched)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return runner
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestSolve(t *testing.T) {
	tests := []struct {
		name           string
		scenario       testutil.Scenario
		opts           Options
		contribution   float64
		tolerance      float64
		minBalanceYear int
		converged      bool
		notes          int
	}{
		{
			name:           "Already funded at zero",
			scenario:       testutil.TwoComponentScenario(),
			contribution:   0,
			minBalanceYear: 2029,
			converged:      true,
		},
		{
			name:           "Underfunded first year",
			scenario:       testutil.UnderfundedScenario(),
			contribution:   1000,
			tolerance:      0.01,
			minBalanceYear: 2025,
			converged:      true,
		},
		{
			name:           "Underfunded with floor",
			scenario:       testutil.UnderfundedScenario(),
			opts:           Options{Floor: 500},
			contribution:   1500,
			tolerance:      0.01,
			minBalanceYear: 2025,
			converged:      true,
		},
		{
			name:           "Upper bound too low",
			scenario:       testutil.UnderfundedScenario(),
			opts:           Options{Max: floatPtr(500)},
			contribution:   500,
			minBalanceYear: 2025,
			converged:      false,
			notes:          1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newRunner(t, tt.scenario).Solve(tt.opts)
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}
			if result.Contribution < tt.contribution || result.Contribution-tt.contribution > tt.tolerance {
				t.Errorf("Contribution = %v, expected %v (+%v)", result.Contribution, tt.contribution, tt.tolerance)
			}
			if result.MinBalanceYear != tt.minBalanceYear {
				t.Errorf("MinBalanceYear = %d, expected %d", result.MinBalanceYear, tt.minBalanceYear)
			}
			if result.Converged != tt.converged {
				t.Errorf("Converged = %v, expected %v", result.Converged, tt.converged)
			}
			if len(result.Notes) != tt.notes {
				t.Errorf("Notes = %v, expected %d", result.Notes, tt.notes)
			}
			if tt.converged && result.MinBalance < tt.opts.Floor {
				t.Errorf("MinBalance %v is below floor %v", result.MinBalance, tt.opts.Floor)
			}
			if math.Abs(result.Headroom-(result.MinBalance-result.Floor)) > 1e-9 {
				t.Errorf("Headroom = %v, expected %v", result.Headroom, result.MinBalance-result.Floor)
			}
		})
	}
}

func TestSolveAlreadyFundedSkipsSearch(t *testing.T) {
	result, err := newRunner(t, testutil.TwoComponentScenario()).Solve(Options{})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if result.Iterations != 0 {
		t.Errorf("Iterations = %d, expected 0", result.Iterations)
	}
	if result.ContributionDisplay != "$0.00" {
		t.Errorf("ContributionDisplay = %q, expected $0.00", result.ContributionDisplay)
	}
	if math.Abs(result.MinBalance-512.69) > 0.001 {
		t.Errorf("MinBalance = %v, expected 512.69", result.MinBalance)
	}
}

func TestSolveIterationLimit(t *testing.T) {
	result, err := newRunner(t, testutil.UnderfundedScenario()).Solve(Options{MaxIterations: 2})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if result.Iterations != 2 {
		t.Errorf("Iterations = %d, expected 2", result.Iterations)
	}
	if result.Converged {
		t.Error("Expected search to stop before converging")
	}
	if result.MinBalance < 0 {
		t.Errorf("Expected a feasible contribution, got min balance %v", result.MinBalance)
	}
}

func TestSolveRejectsInvertedBounds(t *testing.T) {
	_, err := newRunner(t, testutil.UnderfundedScenario()).Solve(Options{Min: 100, Max: floatPtr(50)})
	if err == nil {
		t.Error("Expected error for max below min")
	}
}

func TestNewRunnerForecastYearsBounds(t *testing.T) {
	for _, years := range []int{0, constants.MaxForecastYears + 1, math.MaxInt} {
		s := testutil.UnderfundedScenario()
		s.Config.ForecastYears = years
		if _, err := NewRunner(nil, s.Config, s.Components, schedule.Result{}); err == nil {
			t.Errorf("Expected error for %d forecast years", years)
		}
	}
}
