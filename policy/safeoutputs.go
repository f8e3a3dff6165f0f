package policy

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teranos/airlock/errors"
)

// SafeOutputs is the YAML block declaring which action types a run may
// emit and their per-type rules. A nil *SafeOutputs is permissive: every
// known type is enabled with default cardinality. When the block is
// present, only the declared types (plus noop and missing_tool, which
// carry diagnostics rather than actions) are enabled.
type SafeOutputs struct {
	CreateIssue       *CreateIssueRule       `yaml:"create-issue,omitempty"`
	AddComment        *AddCommentRule        `yaml:"add-comment,omitempty"`
	CreatePullRequest *CreatePullRequestRule `yaml:"create-pull-request,omitempty"`
	UpdateIssue       *UpdateIssueRule       `yaml:"update-issue,omitempty"`
	ReviewComment     *ReviewCommentRule     `yaml:"create-pull-request-review-comment,omitempty"`
	LinkSubIssue      *LinkSubIssueRule      `yaml:"link-sub-issue,omitempty"`
	CodeScanningAlert *CodeScanningAlertRule `yaml:"create-code-scanning-alert,omitempty"`
	AssignToAgent     *AssignToAgentRule     `yaml:"assign-to-agent,omitempty"`
	AssignMilestone   *AssignMilestoneRule   `yaml:"assign-milestone,omitempty"`
	AddLabels         *AddLabelsRule         `yaml:"add-labels,omitempty"`
	CreateDiscussion  *CreateDiscussionRule  `yaml:"create-discussion,omitempty"`
	MissingTool       *MissingToolRule       `yaml:"missing-tool,omitempty"`
	UploadAsset       *UploadAssetRule       `yaml:"upload-asset,omitempty"`

	// AllowedDomains joins the merged host allow-list.
	AllowedDomains []string `yaml:"allowed-domains,omitempty"`
}

// Cardinality bounds the number of accepted messages of one type in a
// run. Max 0 defers to the policy-wide default.
type Cardinality struct {
	Min int `yaml:"min,omitempty"`
	Max int `yaml:"max,omitempty"`
}

// CreateIssueRule configures create_issue messages.
type CreateIssueRule struct {
	Cardinality `yaml:",inline"`
	TitlePrefix string   `yaml:"title-prefix,omitempty"`
	Labels      []string `yaml:"labels,omitempty"`
}

// AddCommentRule configures add_comment messages.
type AddCommentRule struct {
	Cardinality `yaml:",inline"`
	// Target is "triggering" (default), "*", or an explicit item number.
	Target string `yaml:"target,omitempty"`
}

// CreatePullRequestRule configures create_pull_request messages.
type CreatePullRequestRule struct {
	Cardinality `yaml:",inline"`
	TitlePrefix string   `yaml:"title-prefix,omitempty"`
	Labels      []string `yaml:"labels,omitempty"`
	Draft       *bool    `yaml:"draft,omitempty"`
}

// UpdateIssueRule configures update_issue messages. The presence of a
// field gate permits updating that field; all nil means all permitted.
type UpdateIssueRule struct {
	Cardinality `yaml:",inline"`
	Status      *bool  `yaml:"status,omitempty"`
	Title       *bool  `yaml:"title,omitempty"`
	Body        *bool  `yaml:"body,omitempty"`
	Target      string `yaml:"target,omitempty"`
}

// FieldPermitted reports whether the named update_issue field may change.
func (r *UpdateIssueRule) FieldPermitted(field string) bool {
	if r == nil || (r.Status == nil && r.Title == nil && r.Body == nil) {
		return true
	}
	switch field {
	case "status":
		return r.Status != nil && *r.Status
	case "title":
		return r.Title != nil && *r.Title
	case "body":
		return r.Body != nil && *r.Body
	}
	return false
}

// ReviewCommentRule configures create_pull_request_review_comment.
type ReviewCommentRule struct {
	Cardinality `yaml:",inline"`
	Side        string `yaml:"side,omitempty"` // LEFT or RIGHT, default RIGHT
}

// LinkSubIssueRule configures link_sub_issue messages.
type LinkSubIssueRule struct {
	Cardinality `yaml:",inline"`
}

// CodeScanningAlertRule configures create_code_scanning_alert messages.
type CodeScanningAlertRule struct {
	Cardinality `yaml:",inline"`
	Driver      string `yaml:"driver,omitempty"` // SARIF tool.driver.name
}

// AssignToAgentRule configures assign_to_agent messages.
type AssignToAgentRule struct {
	Cardinality `yaml:",inline"`
	// Agent is the login assigned to the item, default "copilot".
	Agent string `yaml:"agent,omitempty"`
}

// AssignMilestoneRule configures assign_milestone messages.
type AssignMilestoneRule struct {
	Cardinality `yaml:",inline"`
}

// AddLabelsRule configures add_labels messages. Limit caps the number
// of labels in one message; Allowed restricts which labels may be used
// (empty permits any existing or new label).
type AddLabelsRule struct {
	Cardinality `yaml:",inline"`
	Allowed     []string `yaml:"allowed,omitempty"`
	Limit       int      `yaml:"limit,omitempty"` // labels per message, default 3
}

// LabelLimit returns the per-message label cap.
func (r *AddLabelsRule) LabelLimit() int {
	if r == nil || r.Limit <= 0 {
		return defaultLabelLimit
	}
	return r.Limit
}

const defaultLabelLimit = 3

// CreateDiscussionRule configures create_discussion messages.
type CreateDiscussionRule struct {
	Cardinality `yaml:",inline"`
	TitlePrefix string `yaml:"title-prefix,omitempty"`
	CategoryID  string `yaml:"category-id,omitempty"`
}

// MissingToolRule configures missing_tool messages.
type MissingToolRule struct {
	Cardinality `yaml:",inline"`
}

// UploadAssetRule configures upload_asset messages (validated here,
// dispatched by the artifact subsystem).
type UploadAssetRule struct {
	Cardinality `yaml:",inline"`
}

// knownTypes is the canonical action-type list, in schema-registry order.
var knownTypes = []string{
	"create_issue",
	"add_comment",
	"create_pull_request",
	"update_issue",
	"create_pull_request_review_comment",
	"link_sub_issue",
	"create_code_scanning_alert",
	"noop",
	"assign_to_agent",
	"assign_milestone",
	"add_labels",
	"create_discussion",
	"missing_tool",
	"upload_asset",
}

// KnownTypes returns every action type the registry understands.
func KnownTypes() []string {
	out := make([]string, len(knownTypes))
	copy(out, knownTypes)
	return out
}

// Enabled reports whether the block permits the given action type. noop
// and missing_tool are always permitted; they carry diagnostics.
func (so *SafeOutputs) Enabled(actionType string) bool {
	switch actionType {
	case "noop", "missing_tool":
		return true
	}
	if so == nil {
		for _, t := range knownTypes {
			if t == actionType {
				return true
			}
		}
		return false
	}
	return so.cardinality(actionType) != nil
}

// Limits returns the cardinality bounds for a type. A zero max in the
// rule (or a nil block) falls back to defaultMax; min defaults to zero.
func (so *SafeOutputs) Limits(actionType string, defaultMax int) (min, max int) {
	c := so.cardinality(actionType)
	if c == nil {
		return 0, defaultMax
	}
	max = c.Max
	if max == 0 {
		max = defaultMax
	}
	return c.Min, max
}

// Declares reports whether the block carries an explicit rule for the
// type, as opposed to the type being enabled by default.
func (so *SafeOutputs) Declares(actionType string) bool {
	return so.cardinality(actionType) != nil
}

// cardinality returns the rule bounds for a type, nil when undeclared.
func (so *SafeOutputs) cardinality(actionType string) *Cardinality {
	if so == nil {
		return nil
	}
	switch actionType {
	case "create_issue":
		if so.CreateIssue != nil {
			return &so.CreateIssue.Cardinality
		}
	case "add_comment":
		if so.AddComment != nil {
			return &so.AddComment.Cardinality
		}
	case "create_pull_request":
		if so.CreatePullRequest != nil {
			return &so.CreatePullRequest.Cardinality
		}
	case "update_issue":
		if so.UpdateIssue != nil {
			return &so.UpdateIssue.Cardinality
		}
	case "create_pull_request_review_comment":
		if so.ReviewComment != nil {
			return &so.ReviewComment.Cardinality
		}
	case "link_sub_issue":
		if so.LinkSubIssue != nil {
			return &so.LinkSubIssue.Cardinality
		}
	case "create_code_scanning_alert":
		if so.CodeScanningAlert != nil {
			return &so.CodeScanningAlert.Cardinality
		}
	case "assign_to_agent":
		if so.AssignToAgent != nil {
			return &so.AssignToAgent.Cardinality
		}
	case "assign_milestone":
		if so.AssignMilestone != nil {
			return &so.AssignMilestone.Cardinality
		}
	case "add_labels":
		if so.AddLabels != nil {
			return &so.AddLabels.Cardinality
		}
	case "create_discussion":
		if so.CreateDiscussion != nil {
			return &so.CreateDiscussion.Cardinality
		}
	case "missing_tool":
		if so.MissingTool != nil {
			return &so.MissingTool.Cardinality
		}
	case "upload_asset":
		if so.UploadAsset != nil {
			return &so.UploadAsset.Cardinality
		}
	}
	return nil
}

// UnmarshalYAML rewrites bare rule keys ("create-issue:" with no value)
// into empty mappings before decoding, so declaring a type with no
// settings still enables it.
func (so *SafeOutputs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if key.Value == "allowed-domains" {
				continue
			}
			if val.Tag == "!!null" {
				val.Kind = yaml.MappingNode
				val.Tag = "!!map"
				val.Value = ""
				val.Content = nil
			}
		}
	}
	type plain SafeOutputs
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*so = SafeOutputs(p)
	return nil
}

// ParseSafeOutputs reads the YAML block. Both a bare block and a
// document with a top-level "safe-outputs" key (workflow frontmatter
// style) are accepted.
func ParseSafeOutputs(data []byte) (*SafeOutputs, error) {
	var wrapped struct {
		SafeOutputs *SafeOutputs `yaml:"safe-outputs"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && wrapped.SafeOutputs != nil {
		return wrapped.SafeOutputs, nil
	}

	var so SafeOutputs
	if err := yaml.Unmarshal(data, &so); err != nil {
		return nil, errors.Wrap(errors.ErrConfiguration, err.Error())
	}
	return &so, nil
}

// LoadSafeOutputs reads and parses a safe-outputs file. An empty path
// returns nil (permissive default).
func LoadSafeOutputs(path string) (*SafeOutputs, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read safe-outputs file %s", path)
	}
	return ParseSafeOutputs(data)
}
