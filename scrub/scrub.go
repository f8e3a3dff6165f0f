// Package scrub neutralizes injection vectors in untrusted agent text.
//
// A Scrubber applies a fixed, ordered pipeline of transforms to free-text
// fields before they reach the collaboration platform: Unicode and entity
// canonicalization, invisible-character stripping, command and mention
// neutralization, markup inerting, URI scheme and host allow-listing,
// truncation, cross-reference and trigger-phrase limiting, template
// delimiter escaping, and fence repair.
//
// One Scrubber serves one run. It owns the run's redaction log: every
// scheme or host redacted during sanitization is recorded for audit and
// reset only by constructing a new Scrubber.
//
// Text never fails. Empty input yields an empty string, and any input
// comes back printable and inert.
package scrub

import "strings"

// Options configures a Scrubber for one run. All allow-lists are
// case-insensitive. Zero limits disable the corresponding truncation.
type Options struct {
	// CommandName is the workflow's own slash command. A leading
	// "/name" in agent text is neutralized so output cannot re-trigger
	// the workflow that produced it.
	CommandName string

	// AllowedMentions lists handles that may survive as live @-mentions.
	AllowedMentions []string

	// AllowedDomains lists hosts that https links may point at: exact
	// names, bare domains matching their subdomains, and "*.domain"
	// wildcard patterns.
	AllowedDomains []string

	// AllowedRepos lists repositories whose #N cross-references stay
	// live. Supports "owner/*" wildcards. The current repository must be
	// listed explicitly for bare #N references to survive.
	AllowedRepos []string

	// CurrentRepo is the "owner/repo" the run operates on. Bare #N
	// references resolve against it.
	CurrentRepo string

	// TriggerAllowance is how many closing-keyword phrases
	// ("fixes #N", ...) are left live, in document order.
	TriggerAllowance int

	// MaxLines and MaxBytes bound the output size. Lines are cut first,
	// bytes second, each appending its own marker.
	MaxLines int
	MaxBytes int
}

// RedactionKind distinguishes what was recorded for a redacted URI.
type RedactionKind string

const (
	// RedactedScheme records a non-https scheme that was removed.
	RedactedScheme RedactionKind = "scheme"
	// RedactedHost records an https host outside the allow-list.
	RedactedHost RedactionKind = "host"
)

// Redaction is one audit entry: a scheme or host that was removed from
// the text during the current run.
type Redaction struct {
	Kind  RedactionKind `json:"kind"`
	Value string        `json:"value"`
}

// Scrubber sanitizes text for one run and accumulates the redaction log.
type Scrubber struct {
	opts Options

	allowedMentions map[string]struct{}
	allowedTags     map[string]struct{}

	redactions []Redaction
	seen       map[Redaction]struct{}
}

// New builds a Scrubber for one run. The redaction log starts empty.
func New(opts Options) *Scrubber {
	s := &Scrubber{
		opts:            opts,
		allowedMentions: make(map[string]struct{}, len(opts.AllowedMentions)),
		allowedTags:     allowedInlineTags(),
		seen:            make(map[Redaction]struct{}),
	}
	for _, m := range opts.AllowedMentions {
		s.allowedMentions[strings.ToLower(strings.TrimPrefix(m, "@"))] = struct{}{}
	}
	return s
}

// Text runs the full sanitization pipeline. It never fails; empty input
// yields an empty string.
func (s *Scrubber) Text(input string) string {
	if input == "" {
		return ""
	}

	t := input
	t = canonicalize(t)      // NFC + entity decode, before any matching
	t = stripInvisible(t)    // zero-width and bidi controls
	t = foldWidth(t)         // full-width ASCII variants
	t = stripControl(t)      // ANSI escapes and C0 controls
	t = s.neutralizeCommand(t)
	t = s.neutralizeMentions(t)
	t = stripComments(t)
	t = s.inertTags(t)
	t = s.redactSchemes(t)
	t = s.redactHosts(t)
	t = s.truncate(t)
	t = s.neutralizeIssueRefs(t)
	t = s.limitTriggers(t)
	t = escapeTemplates(t)
	t = repairFences(t)
	return strings.TrimSpace(t)
}

// Redactions returns a copy of the run's redaction log, in first-seen
// order with duplicates collapsed.
func (s *Scrubber) Redactions() []Redaction {
	out := make([]Redaction, len(s.redactions))
	copy(out, s.redactions)
	return out
}

// record appends a redaction unless an identical entry is already logged.
func (s *Scrubber) record(kind RedactionKind, value string) {
	r := Redaction{Kind: kind, Value: value}
	if _, dup := s.seen[r]; dup {
		return
	}
	s.seen[r] = struct{}{}
	s.redactions = append(s.redactions, r)
}

// truncate applies the line limit, then the byte limit, each with its
// own marker so the audit trail shows which bound fired.
func (s *Scrubber) truncate(t string) string {
	if s.opts.MaxLines > 0 {
		lines := strings.Split(t, "\n")
		if len(lines) > s.opts.MaxLines {
			t = strings.Join(lines[:s.opts.MaxLines], "\n") + "\n" + lineLimitMarker
		}
	}
	if s.opts.MaxBytes > 0 && len(t) > s.opts.MaxBytes {
		t = cutUTF8(t, s.opts.MaxBytes) + "\n" + byteLimitMarker
	}
	return t
}

const (
	lineLimitMarker = "[Content truncated due to line count limit]"
	byteLimitMarker = "[Content truncated due to length limit]"
)

// cutUTF8 cuts s to at most n bytes without splitting a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
