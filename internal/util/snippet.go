package util

import "strings"

// Snippet collapses whitespace and truncates s to at most max runes,
// appending an ellipsis when text was cut.
func Snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
