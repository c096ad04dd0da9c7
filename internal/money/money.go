// Package money holds the rounding rules for rupee amounts.
//
// Amounts travel through the API and the document store as float64 major units (rupees).
// Every value returned to a client or written to an order passes through Round, and
// amounts sent to Stripe are converted to minor units (paise) with ToMinor.
package money

import (
	"errors"
	"math"
	"strconv"
)

// ErrNegativeAmount occurs when a negative amount is invalid for an operation.
var ErrNegativeAmount = errors.New("money: negative amount not allowed")

// MinorUnitsPerMajor is the number of paise in a rupee.
const MinorUnitsPerMajor = 100

// Round rounds an amount to 2 decimal places, half away from zero.
func Round(v float64) float64 {
	return RoundTo(v, 2)
}

// RoundTo rounds v to the given number of decimal places, half away from zero.
func RoundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow10(places)
	// Nudge by a fraction of an ulp so 1.005 rounds up like its decimal spelling.
	scaled := v * scale
	return math.Round(scaled+math.Copysign(1e-9, scaled)) / scale
}

// ToMinor converts a major-unit amount to minor units, rounding to the nearest paisa.
func ToMinor(v float64) (int64, error) {
	if v < 0 {
		return 0, ErrNegativeAmount
	}
	return int64(math.Round(v * MinorUnitsPerMajor)), nil
}

// FromMinor converts minor units back to a major-unit amount.
func FromMinor(minor int64) float64 {
	return Round(float64(minor) / MinorUnitsPerMajor)
}

// Multiply returns price × quantity rounded to 2 decimals.
func Multiply(price float64, quantity int) float64 {
	return Round(price * float64(quantity))
}

// Format renders an amount without trailing zeros ("500", "499.5").
func Format(v float64) string {
	return strconv.FormatFloat(Round(v), 'f', -1, 64)
}
