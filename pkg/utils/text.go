// Package utils provides shared utilities for text, math, and logging.
package utils

import "unicode/utf8"

// Ellipsis marks a truncated excerpt.
const Ellipsis = "..."

// Truncate returns the first maxRunes runes of s, with Ellipsis appended if anything was cut.
// If maxRunes is 0 or negative, s is returned unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + Ellipsis
		}
		n++
	}
	return s
}
