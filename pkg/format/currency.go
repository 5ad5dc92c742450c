// Package format renders forecast amounts and ratios for people.
package format

import (
	"math"

	"github.com/iwvelando/reserve-forecast/pkg/constants"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NotApplicable is shown for ratios that have no value in a year.
const NotApplicable = "n/a"

var printer = message.NewPrinter(language.English)

// Currency returns a currency string with a dollar sign and thousands separators (e.g., "-$1,234.56").
func Currency(amount float64) string {
	formatted := NumericCurrency(math.Abs(amount))
	if amount < 0 && formatted != "0.00" {
		return "-$" + formatted
	}
	return "$" + formatted
}

// NumericCurrency returns a currency string without a currency symbol but with separators (e.g., "-1,234.56").
func NumericCurrency(amount float64) string {
	return printer.Sprintf("%.2f", amount)
}

// Percent renders a ratio as a percentage with one decimal, or NotApplicable.
func Percent(ratio *float64) string {
	if ratio == nil {
		return NotApplicable
	}
	return printer.Sprintf("%.1f%%", *ratio*constants.PercentageMultiplier)
}

// Multiple renders a coverage ratio such as "1.25x", or NotApplicable.
func Multiple(ratio *float64) string {
	if ratio == nil {
		return NotApplicable
	}
	return printer.Sprintf("%.2fx", *ratio)
}
