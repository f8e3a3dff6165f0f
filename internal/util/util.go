package util

import "strings"

// Ptr returns a pointer to the given value.
// This is a generic helper for creating pointers to literals.
func Ptr[T any](v T) *T {
	return &v
}

// Shorten truncates s to at most max runes, appending an ellipsis when
// anything was cut. Used for log previews and terminal rendering where
// full bodies would drown the output.
func Shorten(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}

// FirstLine returns s up to the first line break, with trailing
// carriage returns removed.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "\r")
}
