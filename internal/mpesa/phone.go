package mpesa

import "strings"

const (
	countryCode     = "254"
	canonicalLength = 12
)

// NormalizePhone rewrites a Kenyan phone number to canonical international
// form (2547XXXXXXXX / 2541XXXXXXXX). All non-digit characters are stripped
// first. A leading local-trunk zero is replaced by the country code, an
// already-prefixed number passes through, and a bare subscriber number gets
// the country code prepended. Input matching none of these shapes is
// returned as its stripped digits; rejection happens at validation time,
// not here. NormalizePhone is idempotent.
func NormalizePhone(input string) string {
	digits := stripNonDigits(input)

	switch {
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return countryCode + digits[1:]
	case len(digits) == 9 && (strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")):
		return countryCode + digits
	default:
		return digits
	}
}

// ValidPhone reports whether a canonical number is acceptable for an STK
// push: exactly 12 digits starting with the country code.
func ValidPhone(canonical string) bool {
	if len(canonical) != canonicalLength {
		return false
	}
	if !strings.HasPrefix(canonical, countryCode) {
		return false
	}
	for _, r := range canonical {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
