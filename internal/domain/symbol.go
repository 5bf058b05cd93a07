package domain

import "regexp"

var instrumentRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// ValidInstrument reports whether s is a well-formed ticker symbol.
// Symbols are case-sensitive: "AAPL" is valid, "aapl" is not.
func ValidInstrument(s string) bool {
	return instrumentRegex.MatchString(s)
}
