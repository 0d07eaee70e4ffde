// Package phone canonicalizes subscriber phone numbers (MDNs).
package phone

import "strings"

// Normalize strips all non-digit characters and, when the result is an
// 11-digit number with a leading country code "1", drops that leading digit.
// The returned digits-only form is the canonical subscriber identifier used
// as the key into every lookup.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

// Digits reports whether s is non-empty and consists of digits only.
func Digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Last4 returns the last four digits of an MDN, or the whole value when it
// is shorter than four characters.
func Last4(mdn string) string {
	if len(mdn) <= 4 {
		return mdn
	}
	return mdn[len(mdn)-4:]
}

// Mask hides all but the last four digits for logging.
func Mask(mdn string) string {
	if len(mdn) <= 4 {
		return mdn
	}
	return strings.Repeat("*", len(mdn)-4) + mdn[len(mdn)-4:]
}
