package format

import "testing"

func ptr(v float64) *float64 {
	return &v
}

func TestCurrency(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		expected string
	}{
		{"Zero", 0, "$0.00"},
		{"Small", 5.6, "$5.60"},
		{"Thousands", 1864.4, "$1,864.40"},
		{"Millions", 1234567.891, "$1,234,567.89"},
		{"Negative", -1000, "-$1,000.00"},
		{"Negative rounds to zero", -0.001, "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Currency(tt.amount); got != tt.expected {
				t.Errorf("Currency(%v) = %q, expected %q", tt.amount, got, tt.expected)
			}
		})
	}
}

func TestNumericCurrency(t *testing.T) {
	if got := NumericCurrency(-2350.844); got != "-2,350.84" {
		t.Errorf("NumericCurrency() = %q, expected -2,350.84", got)
	}
}

func TestRatios(t *testing.T) {
	tests := []struct {
		name     string
		fn       func(*float64) string
		ratio    *float64
		expected string
	}{
		{"Percent", Percent, ptr(0.5), "50.0%"},
		{"Percent over funded", Percent, ptr(5.6), "560.0%"},
		{"Percent nil", Percent, nil, NotApplicable},
		{"Multiple", Multiple, ptr(1.25), "1.25x"},
		{"Multiple nil", Multiple, nil, NotApplicable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.ratio); got != tt.expected {
				t.Errorf("got %q, expected %q", got, tt.expected)
			}
		})
	}
}
