package scrub

import (
	"regexp"
	"strings"
)

// Neutralization wraps live platform syntax in backtick spans. The
// platform renders a backtick span as code, so the content survives
// verbatim but can no longer trigger commands, notifications, or
// issue-closing side effects.

// mentionPattern matches @user and @org/team. The boundary class
// deliberately treats an underscore as a boundary rather than a word
// character: "_@user" must still neutralize, an identifier-like prefix
// is not protection. A directly preceding backtick marks the mention as
// already inert.
var mentionPattern = regexp.MustCompile(
	"(^|[^0-9A-Za-z\x60])@([A-Za-z0-9][A-Za-z0-9-]{0,38}(?:/[A-Za-z0-9._-]+)?)")

// neutralizeCommand wraps a leading /command so the output cannot
// re-trigger the workflow that produced it. Only the very start of the
// text (after optional whitespace) is actionable downstream; later
// occurrences stay as they are.
func (s *Scrubber) neutralizeCommand(t string) string {
	if s.opts.CommandName == "" {
		return t
	}
	pattern := regexp.MustCompile(`(?i)^([ \t\r\n]*)(/` + regexp.QuoteMeta(s.opts.CommandName) + `)\b`)
	return pattern.ReplaceAllStringFunc(t, func(m string) string {
		sub := pattern.FindStringSubmatch(m)
		return sub[1] + "`" + sub[2] + "`"
	})
}

// neutralizeMentions backtick-wraps every @mention that is not
// allow-listed and not already inert.
func (s *Scrubber) neutralizeMentions(t string) string {
	return mentionPattern.ReplaceAllStringFunc(t, func(m string) string {
		sub := mentionPattern.FindStringSubmatch(m)
		boundary, name := sub[1], sub[2]
		if _, ok := s.allowedMentions[strings.ToLower(name)]; ok {
			return m
		}
		return boundary + "`@" + name + "`"
	})
}

// issueRefPattern matches #123 and owner/repo#123 shorthands. A '/'
// boundary is excluded so path-like strings (a/b/c#1) never produce a
// partial repository match, and '#' is excluded so stray hash runs do
// not chain.
var issueRefPattern = regexp.MustCompile(
	"(^|[^0-9A-Za-z\x60/#])((?:[A-Za-z0-9][A-Za-z0-9_.-]*/[A-Za-z0-9][A-Za-z0-9_.-]*)?#[0-9]{1,10})\\b")

// neutralizeIssueRefs backtick-wraps cross-entity references whose
// repository is not allow-listed. Bare #N resolves against the current
// repository.
func (s *Scrubber) neutralizeIssueRefs(t string) string {
	return issueRefPattern.ReplaceAllStringFunc(t, func(m string) string {
		sub := issueRefPattern.FindStringSubmatch(m)
		boundary, ref := sub[1], sub[2]

		repo := s.opts.CurrentRepo
		if i := strings.IndexByte(ref, '#'); i > 0 {
			repo = ref[:i]
		}
		if s.repoAllowed(repo) {
			return m
		}
		return boundary + "`" + ref + "`"
	})
}

// repoAllowed checks owner/repo against the allow-list: exact matches
// and "owner/*" wildcards, case-insensitive. An empty repo (no current
// repository configured) is never allowed.
func (s *Scrubber) repoAllowed(repo string) bool {
	if repo == "" {
		return false
	}
	repo = strings.ToLower(repo)
	owner := ""
	if i := strings.IndexByte(repo, '/'); i > 0 {
		owner = repo[:i]
	}
	for _, allowed := range s.opts.AllowedRepos {
		allowed = strings.ToLower(allowed)
		if allowed == repo {
			return true
		}
		if owner != "" && allowed == owner+"/*" {
			return true
		}
	}
	return false
}

// triggerPattern matches issue-closing phrases: a closing keyword
// followed by a same-line reference. Already-inert references (backtick
// before # or before the keyword) do not match.
var triggerPattern = regexp.MustCompile(
	"(?i)(^|[^0-9A-Za-z\x60])(close[sd]?|fix(?:e[sd])?|resolve[sd]?)([ \t]+)((?:[A-Za-z0-9][A-Za-z0-9_.-]*/[A-Za-z0-9][A-Za-z0-9_.-]*)?#[0-9]{1,10})\\b")

// limitTriggers leaves the first TriggerAllowance closing phrases live,
// in document order, and backtick-wraps every one beyond that. This is
// flood defense, not a hard block.
func (s *Scrubber) limitTriggers(t string) string {
	count := 0
	return triggerPattern.ReplaceAllStringFunc(t, func(m string) string {
		count++
		if count <= s.opts.TriggerAllowance {
			return m
		}
		sub := triggerPattern.FindStringSubmatch(m)
		return sub[1] + "`" + sub[2] + sub[3] + sub[4] + "`"
	})
}
