package scrub

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// canonicalize composes Unicode to NFC and decodes HTML/XML entities,
// including doubly-encoded variants, so entity-encoded attack strings
// cannot slip past the pattern stages that follow.
func canonicalize(t string) string {
	t = norm.NFC.String(t)
	t = html.UnescapeString(t)
	return html.UnescapeString(t)
}

// stripInvisible removes zero-width characters and bidirectional
// override controls used for visual spoofing.
func stripInvisible(t string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x200B && r <= 0x200D: // zero-width space, ZWNJ, ZWJ
			return -1
		case r == 0xFEFF: // byte-order mark
			return -1
		case r == 0x2060: // word joiner
			return -1
		case r == 0x00AD: // soft hyphen
			return -1
		case r >= 0x202A && r <= 0x202E: // bidi embeddings and overrides
			return -1
		case r >= 0x2066 && r <= 0x2069: // bidi isolates
			return -1
		}
		return r
	}, t)
}

// foldWidth maps full-width ASCII variants to standard ASCII so
// "ｈｔｔｐ" cannot dodge the URI stages. The ideographic space folds
// to a plain space either way.
func foldWidth(t string) string {
	t = width.Fold.String(t)
	return strings.ReplaceAll(t, "　", " ")
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// stripControl removes terminal escape sequences and non-printable
// control characters, preserving newline, tab, and carriage return.
func stripControl(t string) string {
	t = ansiPattern.ReplaceAllString(t, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if (r >= 0x00 && r < 0x20) || r == 0x7F {
			return -1
		}
		return r
	}, t)
}
