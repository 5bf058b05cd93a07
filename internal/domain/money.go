package domain

import (
	"fmt"
	"math"
)

// DollarsToCents converts a float64 dollar amount to int64 cents.
// Inputs with more than two decimal places are rejected rather than
// silently rounded.
func DollarsToCents(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("monetary values must be finite")
	}
	// A non-zero third decimal shows up after scaling by 1000.
	scaled := math.Round(f * 1000)
	if math.Mod(scaled, 10) != 0 {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	cents := math.Round(f * 100)
	if cents >= math.MaxInt64 || cents <= math.MinInt64 {
		return 0, fmt.Errorf("monetary value out of range")
	}
	return int64(cents), nil
}

// MulCents returns price × quantity. ok is false if either operand is
// negative or the product does not fit in an int64.
func MulCents(price, quantity int64) (product int64, ok bool) {
	if price < 0 || quantity < 0 {
		return 0, false
	}
	if price != 0 && quantity > math.MaxInt64/price {
		return 0, false
	}
	return price * quantity, true
}

// AddCents returns a + b for non-negative b. ok is false on overflow.
func AddCents(a, b int64) (sum int64, ok bool) {
	if b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// CentsToDollars converts an int64 cents value to a float64 dollar amount.
func CentsToDollars(c int64) float64 {
	return float64(c) / 100.0
}

// FormatCents renders cents as a dollar string with two decimals, e.g. "$148.50".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}
