package util

import "strings"

// SanitizeText cleans text coming out of PDF extraction before it is
// chunked or stored. Postgres text columns reject NUL, and several
// extractors emit stray control characters inside ligature runs.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")

	// Keep tabs and newlines, drop every other non-printing control.
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}
