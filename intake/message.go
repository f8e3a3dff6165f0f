// Package intake parses, repairs, and validates the JSONL action stream
// an agent emits. Each line is repaired from near-JSON to strict JSON,
// decoded, checked against the schema for its declared action type, and
// either accepted as a canonical Message or rejected with a line-scoped
// diagnostic. One malformed line never poisons the batch.
package intake

import (
	"regexp"
	"strings"
)

// Message is one accepted action record. Fields holds the canonical
// form: unknown keys dropped, free text sanitized, numbers normalized,
// enums in their canonical spelling.
type Message struct {
	// Type is the action type ("create_issue", "add_comment", ...).
	Type string

	// Line is the 1-based position in the input stream, kept for
	// diagnostics and dispatch ordering.
	Line int

	// Fields is the validated, canonical payload.
	Fields map[string]any
}

// String returns the named field as a string, or "" when absent or not
// a string.
func (m *Message) String(name string) string {
	s, _ := m.Fields[name].(string)
	return s
}

// Int returns the named field as an int. Validation stores numeric
// fields as int, so any other shape reports absent.
func (m *Message) Int(name string) (int, bool) {
	n, ok := m.Fields[name].(int)
	return n, ok
}

// Strings returns the named field as a string slice, nil when absent.
func (m *Message) Strings(name string) []string {
	vs, _ := m.Fields[name].([]string)
	return vs
}

// Has reports whether the field is present in the canonical payload.
func (m *Message) Has(name string) bool {
	_, ok := m.Fields[name]
	return ok
}

// NumberOrRef reads a field validated as KindIntOrTempID: either a
// concrete item number or a temporary-ID token naming an item created
// earlier in the same run.
func (m *Message) NumberOrRef(name string) (num int, ref string) {
	switch v := m.Fields[name].(type) {
	case int:
		return v, ""
	case string:
		return 0, v
	}
	return 0, ""
}

// Temporary-ID tokens let one record reference an item another record
// in the same run will create. They are matched case-insensitively and
// normalized to lower case.
var (
	tempIDPattern      = regexp.MustCompile(`(?i)\btmp_[a-z0-9][a-z0-9_-]{0,63}\b`)
	tempIDExactPattern = regexp.MustCompile(`(?i)^tmp_[a-z0-9][a-z0-9_-]{0,63}$`)
)

// IsTempID reports whether s is exactly one temporary-ID token.
func IsTempID(s string) bool {
	return tempIDExactPattern.MatchString(strings.TrimSpace(s))
}

// NormalizeTempID lower-cases a token so references match their
// declarations regardless of the agent's casing.
func NormalizeTempID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FindTempIDs returns every temporary-ID token embedded in free text,
// normalized, in first-seen order with duplicates collapsed.
func FindTempIDs(text string) []string {
	matches := tempIDPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id := NormalizeTempID(m)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ReplaceTempIDs rewrites every temporary-ID token in text through
// repl. Tokens repl cannot resolve stay verbatim and are returned,
// normalized, in first-seen order.
func ReplaceTempIDs(text string, repl func(id string) (string, bool)) (string, []string) {
	var unresolved []string
	seen := make(map[string]struct{})
	out := tempIDPattern.ReplaceAllStringFunc(text, func(m string) string {
		id := NormalizeTempID(m)
		if s, ok := repl(id); ok {
			return s
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			unresolved = append(unresolved, id)
		}
		return m
	})
	return out, unresolved
}
