package intake

import (
	"regexp"
	"strings"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/policy"
)

// Registry holds a Schema for every action type the run may emit,
// bound to the run's cardinality limits and per-type policy rules.
type Registry struct {
	schemas map[string]*Schema
	order   []string
}

// NewRegistry builds the schema set for one run from the policy
// snapshot. Only enabled types are registered; a record of a known but
// disabled type is diagnosed the same way as an unknown one.
func NewRegistry(rt *policy.Runtime) *Registry {
	r := &Registry{schemas: make(map[string]*Schema)}
	for _, t := range policy.KnownTypes() {
		if !rt.Enabled(t) {
			continue
		}
		s := schemaFor(t, rt)
		s.Min, s.Max = rt.Limits(t)
		// noop and missing_tool carry diagnostics, not platform actions.
		// The policy-wide default max does not cap them unless the block
		// declares an explicit rule.
		if (t == "noop" || t == "missing_tool") && !rt.SafeOutputs.Declares(t) {
			s.Max = 0
		}
		r.schemas[t] = s
		r.order = append(r.order, t)
	}
	return r
}

// Lookup returns the schema for an action type.
func (r *Registry) Lookup(actionType string) (*Schema, bool) {
	s, ok := r.schemas[actionType]
	return s, ok
}

// Types returns the enabled action types in registry order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports how many types are enabled.
func (r *Registry) Len() int { return len(r.schemas) }

var (
	ruleIDSuffixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	// Free-text caps, in runes. Bodies are unbounded here; the
	// sanitizer's own line and byte limits bound them.
	maxTitleLength   = 128
	maxLabelLength   = 64
	maxToolLength    = 128
	maxReasonLength  = 256
	maxAltLength     = 512
	maxPathLength    = 512
	maxBranchLength  = 256
	maxMessageLength = 2048
)

// schemaFor builds the field and check set for one action type.
// Policy-dependent checks close over the runtime snapshot.
func schemaFor(actionType string, rt *policy.Runtime) *Schema {
	switch actionType {
	case "create_issue":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "title", Required: true, Kind: KindString, Sanitize: true, MaxLength: maxTitleLength},
				{Name: "body", Required: true, Kind: KindString, Sanitize: true},
				{Name: "labels", Kind: KindStringSlice, ItemSanitize: true, ItemMaxLength: maxLabelLength},
				{Name: "temp_id", Kind: KindString, Pattern: tempIDExactPattern},
			},
			Checks: []Check{normalizeTempIDCheck()},
		}

	case "add_comment":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "body", Required: true, Kind: KindString, Sanitize: true},
				{Name: "item_number", Kind: KindIntOrTempID},
			},
		}

	case "create_pull_request":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "title", Required: true, Kind: KindString, Sanitize: true, MaxLength: maxTitleLength},
				{Name: "body", Required: true, Kind: KindString, Sanitize: true},
				{Name: "branch", Required: true, Kind: KindString, MaxLength: maxBranchLength},
				{Name: "labels", Kind: KindStringSlice, ItemSanitize: true, ItemMaxLength: maxLabelLength},
				{Name: "temp_id", Kind: KindString, Pattern: tempIDExactPattern},
			},
			Checks: []Check{normalizeTempIDCheck()},
		}

	case "update_issue":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "status", Kind: KindString, Enum: []string{"open", "closed"}},
				{Name: "title", Kind: KindString, Sanitize: true, MaxLength: maxTitleLength},
				{Name: "body", Kind: KindString, Sanitize: true},
				{Name: "issue_number", Kind: KindIntOrTempID},
			},
			Checks: []Check{
				updateFieldGateCheck(rt),
				leastOneOfCheck("status", "title", "body"),
			},
		}

	case "create_pull_request_review_comment":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "path", Required: true, Kind: KindString, MaxLength: maxPathLength},
				{Name: "line", Required: true, Kind: KindPositiveInt},
				{Name: "body", Required: true, Kind: KindString, Sanitize: true},
				{Name: "start_line", Kind: KindPositiveInt},
				{Name: "side", Kind: KindString, Enum: []string{"LEFT", "RIGHT"}},
			},
			Checks: []Check{lineRangeCheck()},
		}

	case "link_sub_issue":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "parent_issue_number", Required: true, Kind: KindIntOrTempID},
				{Name: "sub_issue_number", Required: true, Kind: KindIntOrTempID},
			},
			Checks: []Check{distinctIssuesCheck()},
		}

	case "create_code_scanning_alert":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "file", Required: true, Kind: KindString, MaxLength: maxPathLength},
				{Name: "line", Required: true, Kind: KindPositiveInt},
				{Name: "severity", Required: true, Kind: KindString, Enum: []string{"error", "warning", "info", "note"}},
				{Name: "message", Required: true, Kind: KindString, Sanitize: true, MaxLength: maxMessageLength},
				{Name: "column", Kind: KindPositiveInt},
				{Name: "ruleIdSuffix", Kind: KindString, Pattern: ruleIDSuffixPattern, MaxLength: maxTitleLength},
			},
		}

	case "noop":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "message", Kind: KindString, Sanitize: true},
			},
		}

	case "assign_to_agent":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "issue_number", Kind: KindIntOrTempID},
				{Name: "pull_number", Kind: KindIntOrTempID},
			},
			Checks: []Check{leastOneOfCheck("issue_number", "pull_number")},
		}

	case "assign_milestone":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "issue_number", Required: true, Kind: KindIntOrTempID},
				{Name: "milestone_number", Required: true, Kind: KindPositiveInt},
			},
		}

	case "add_labels":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "labels", Required: true, Kind: KindStringSlice, ItemSanitize: true, ItemMaxLength: maxLabelLength},
				{Name: "item_number", Kind: KindIntOrTempID},
			},
			Checks: []Check{labelPolicyCheck(rt)},
		}

	case "create_discussion":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "title", Required: true, Kind: KindString, Sanitize: true, MaxLength: maxTitleLength},
				{Name: "body", Required: true, Kind: KindString, Sanitize: true},
				{Name: "category", Kind: KindString, MaxLength: maxTitleLength},
				{Name: "temp_id", Kind: KindString, Pattern: tempIDExactPattern},
			},
			Checks: []Check{normalizeTempIDCheck()},
		}

	case "missing_tool":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "tool", Required: true, Kind: KindString, Sanitize: true, MaxLength: maxToolLength},
				{Name: "reason", Required: true, Kind: KindString, Sanitize: true, MaxLength: maxReasonLength},
				{Name: "alternatives", Kind: KindString, Sanitize: true, MaxLength: maxAltLength},
			},
		}

	case "upload_asset":
		return &Schema{
			Type: actionType,
			Fields: []Field{
				{Name: "path", Required: true, Kind: KindString, MaxLength: maxPathLength},
			},
		}
	}

	// KnownTypes and this switch list the same names.
	return &Schema{Type: actionType}
}

// normalizeTempIDCheck lower-cases a creation record's self-assigned id
// so later references match regardless of casing.
func normalizeTempIDCheck() Check {
	return Check{
		Name: "normalize_temp_id",
		Validate: func(m *Message) ([]string, error) {
			if id := m.String("temp_id"); id != "" {
				m.Fields["temp_id"] = NormalizeTempID(id)
			}
			return nil, nil
		},
	}
}

// leastOneOfCheck rejects a record carrying none of the named fields.
func leastOneOfCheck(names ...string) Check {
	return Check{
		Name: "least_one_of",
		Validate: func(m *Message) ([]string, error) {
			for _, name := range names {
				if m.Has(name) {
					return nil, nil
				}
			}
			return nil, errors.NewSchemaError("%s requires at least one of '%s'", m.Type, strings.Join(names, "', '"))
		},
	}
}

// updateFieldGateCheck drops update_issue fields the policy does not
// permit. Dropping is a warning, not a rejection; the least-one-of
// check afterwards rejects a record left empty.
func updateFieldGateCheck(rt *policy.Runtime) Check {
	rule := (*policy.UpdateIssueRule)(nil)
	if rt.SafeOutputs != nil {
		rule = rt.SafeOutputs.UpdateIssue
	}
	return Check{
		Name: "update_field_gate",
		Validate: func(m *Message) ([]string, error) {
			var warnings []string
			for _, field := range []string{"status", "title", "body"} {
				if m.Has(field) && !rule.FieldPermitted(field) {
					delete(m.Fields, field)
					warnings = append(warnings, "update_issue '"+field+"' is not permitted by policy and was dropped")
				}
			}
			return warnings, nil
		},
	}
}

// lineRangeCheck enforces start_line <= line for review comments.
func lineRangeCheck() Check {
	return Check{
		Name: "line_range",
		Validate: func(m *Message) ([]string, error) {
			start, ok := m.Int("start_line")
			if !ok {
				return nil, nil
			}
			if line, _ := m.Int("line"); start > line {
				return nil, errors.NewSchemaError("%s 'start_line' must not exceed 'line'", m.Type)
			}
			return nil, nil
		},
	}
}

// distinctIssuesCheck rejects linking an issue to itself, whether the
// record names concrete numbers or temporary ids.
func distinctIssuesCheck() Check {
	return Check{
		Name: "distinct_issues",
		Validate: func(m *Message) ([]string, error) {
			if m.Fields["parent_issue_number"] == m.Fields["sub_issue_number"] {
				return nil, errors.NewSchemaError("%s 'parent_issue_number' and 'sub_issue_number' must differ", m.Type)
			}
			return nil, nil
		},
	}
}

// labelPolicyCheck enforces the add_labels allowed-list and per-message
// label cap from the policy rule.
func labelPolicyCheck(rt *policy.Runtime) Check {
	rule := (*policy.AddLabelsRule)(nil)
	if rt.SafeOutputs != nil {
		rule = rt.SafeOutputs.AddLabels
	}
	return Check{
		Name: "label_policy",
		Validate: func(m *Message) ([]string, error) {
			labels := m.Strings("labels")
			if limit := rule.LabelLimit(); len(labels) > limit {
				return nil, errors.NewSchemaError("%s 'labels' exceeds the limit of %d labels", m.Type, limit)
			}
			if rule == nil || len(rule.Allowed) == 0 {
				return nil, nil
			}
			for _, label := range labels {
				allowed := false
				for _, a := range rule.Allowed {
					if strings.EqualFold(label, a) {
						allowed = true
						break
					}
				}
				if !allowed {
					return nil, errors.NewSchemaError("%s label %q is not in the allowed list", m.Type, label)
				}
			}
			return nil, nil
		},
	}
}
