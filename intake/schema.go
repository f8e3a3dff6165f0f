package intake

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/scrub"
)

// Kind is the value shape a field validates as.
type Kind int

const (
	// KindString is free or constrained text.
	KindString Kind = iota
	// KindPositiveInt accepts an integer >= 1, a whole JSON number, or a
	// numeric string, and canonicalizes to int.
	KindPositiveInt
	// KindIntOrTempID accepts a positive integer or a temporary-ID token
	// referencing an entity created earlier in the same run.
	KindIntOrTempID
	// KindStringSlice is a sequence of strings validated element-wise.
	KindStringSlice
)

// Field is one schema rule. Sanitize always runs before MaxLength so
// the length bound applies to what will actually be published.
type Field struct {
	Name     string
	Required bool
	Kind     Kind

	// Sanitize routes the value through the Content Sanitizer.
	Sanitize bool
	// MaxLength truncates to a rune count after sanitization. Zero
	// means unbounded. Truncation never rejects a record.
	MaxLength int
	// Enum restricts the value to a fixed set, matched case-insensitively
	// and stored in the canonical spelling.
	Enum []string
	// Pattern restricts the value's shape.
	Pattern *regexp.Regexp

	// Element rules for KindStringSlice. A non-conforming element is
	// dropped with a warning; the record survives.
	ItemSanitize  bool
	ItemMaxLength int
}

// Check is a named cross-field validator. It runs after field
// validation on the canonical message and may drop fields. Warnings are
// recorded while the record survives; an error rejects the record.
type Check struct {
	Name     string
	Validate func(m *Message) (warnings []string, err error)
}

// Schema validates one action type. Min and Max bound the number of
// accepted records per run; Max <= 0 means unlimited.
type Schema struct {
	Type   string
	Min    int
	Max    int
	Fields []Field
	Checks []Check
}

// Validate builds the canonical Message from a decoded record. Unknown
// fields are dropped; the canonical payload is a projection onto the
// schema. The first field violation rejects the record.
func (s *Schema) Validate(line int, raw map[string]any, scr *scrub.Scrubber) (*Message, []string, error) {
	m := &Message{Type: s.Type, Line: line, Fields: make(map[string]any, len(s.Fields))}
	var warnings []string

	for _, f := range s.Fields {
		v, present := raw[f.Name]
		if !present || v == nil {
			if f.Required {
				return nil, warnings, errors.NewSchemaError("%s '%s' is required", s.Type, f.Name)
			}
			continue
		}

		switch f.Kind {
		case KindString:
			str, ok := v.(string)
			if !ok {
				return nil, warnings, errors.NewSchemaError("%s '%s' must be a string", s.Type, f.Name)
			}
			str, err := s.validateString(f, str, scr)
			if err != nil {
				return nil, warnings, err
			}
			if str == "" {
				if f.Required {
					return nil, warnings, errors.NewSchemaError("%s '%s' is required", s.Type, f.Name)
				}
				continue
			}
			m.Fields[f.Name] = str

		case KindPositiveInt:
			n, ok := canonicalInt(v)
			if !ok || n < 1 {
				return nil, warnings, errors.NewSchemaError("%s '%s' must be a valid positive integer", s.Type, f.Name)
			}
			m.Fields[f.Name] = n

		case KindIntOrTempID:
			if n, ok := canonicalInt(v); ok && n >= 1 {
				m.Fields[f.Name] = n
				continue
			}
			if str, ok := v.(string); ok && IsTempID(str) {
				m.Fields[f.Name] = NormalizeTempID(str)
				continue
			}
			return nil, warnings, errors.NewSchemaError("%s '%s' must be a positive integer or a temporary id", s.Type, f.Name)

		case KindStringSlice:
			items, ok := v.([]any)
			if !ok {
				return nil, warnings, errors.NewSchemaError("%s '%s' must be an array of strings", s.Type, f.Name)
			}
			kept := make([]string, 0, len(items))
			for i, item := range items {
				str, ok := item.(string)
				if !ok {
					warnings = append(warnings, fmt.Sprintf("%s '%s' element %d is not a string and was dropped", s.Type, f.Name, i))
					continue
				}
				if f.ItemSanitize {
					str = scr.Text(str)
				}
				if f.ItemMaxLength > 0 {
					str = truncateRunes(str, f.ItemMaxLength)
				}
				if str == "" {
					warnings = append(warnings, fmt.Sprintf("%s '%s' element %d is empty after sanitization and was dropped", s.Type, f.Name, i))
					continue
				}
				kept = append(kept, str)
			}
			if len(kept) == 0 {
				if f.Required {
					return nil, warnings, errors.NewSchemaError("%s '%s' is required", s.Type, f.Name)
				}
				continue
			}
			m.Fields[f.Name] = kept
		}
	}

	for _, c := range s.Checks {
		w, err := c.Validate(m)
		warnings = append(warnings, w...)
		if err != nil {
			return nil, warnings, err
		}
	}
	return m, warnings, nil
}

// validateString applies the sanitize-then-bound sequence plus the
// enum and pattern constraints.
func (s *Schema) validateString(f Field, str string, scr *scrub.Scrubber) (string, error) {
	if f.Sanitize {
		str = scr.Text(str)
	}
	if len(f.Enum) > 0 {
		matched := ""
		for _, e := range f.Enum {
			if strings.EqualFold(str, e) {
				matched = e
				break
			}
		}
		if matched == "" {
			return "", errors.NewSchemaError("%s '%s' must be one of %s", s.Type, f.Name, quoteJoin(f.Enum))
		}
		str = matched
	}
	if f.Pattern != nil && !f.Pattern.MatchString(str) {
		return "", errors.NewSchemaError("%s '%s' must match %s", s.Type, f.Name, f.Pattern)
	}
	if f.MaxLength > 0 {
		str = truncateRunes(str, f.MaxLength)
	}
	return str, nil
}

// canonicalInt normalizes the shapes agents emit for numbers: JSON
// numbers (whole only), native ints, and numeric strings.
func canonicalInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}

func quoteJoin(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, ", ")
}
