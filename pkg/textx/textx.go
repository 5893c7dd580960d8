// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText normalizes a submitted answer: CRLF and CR become LF, control characters
// other than tab and newline are dropped, invalid UTF-8 is removed and the result is
// trimmed.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || (r >= 32 && r != 127 && (r < 0x80 || r > 0x9f)) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Clip shortens s to at most n runes, appending "..." when it cut something.
func Clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s
}
