package models

import "math"

// All monetary amounts are stored as integer cents. Fractional factors
// (seat price multipliers, discount percentages) are applied through the
// helpers below so every computation rounds half-up exactly once.

// RoundCents rounds a fractional cent amount half-up to whole cents.
func RoundCents(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}

// MultiplyCents applies a multiplier to an amount in cents.
func MultiplyCents(amountCents int64, multiplier float64) int64 {
	return RoundCents(float64(amountCents) * multiplier)
}

// PercentCents computes percent% of an amount in cents.
func PercentCents(amountCents int64, percent float64) int64 {
	return RoundCents(float64(amountCents) * percent / 100)
}

// CentsToDisplay formats cents as a major-unit float for PDF rendering
// and log output. API payloads keep raw cents.
func CentsToDisplay(amountCents int64) float64 {
	return float64(amountCents) / 100
}
