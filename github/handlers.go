package github

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/intake"
	"github.com/teranos/airlock/policy"
)

// HandlerConfig wires one run's handler registry.
type HandlerConfig struct {
	Runtime *policy.Runtime

	// Workflow is the default client, authenticated with the workflow
	// token.
	Workflow *Client

	// Elevated handles operations the workflow token typically cannot
	// perform. Nil falls back to Workflow.
	Elevated *Client

	// TriggeringNumber is the issue or pull request that triggered the
	// run. Messages that omit their target fall back to it.
	TriggeringNumber int
}

// elevatedTypes need more than the default workflow token grants.
var elevatedTypes = map[string]struct{}{
	"assign_to_agent":            {},
	"link_sub_issue":             {},
	"create_code_scanning_alert": {},
}

// Handlers builds the dispatch registry for every enabled action type.
// upload_asset never gets a handler: it is validated upstream and
// dispatched by the artifact subsystem.
func Handlers(cfg HandlerConfig) (*dispatch.Registry, error) {
	if cfg.Runtime == nil {
		return nil, errors.NewConfigurationError("github handlers require a policy runtime")
	}
	if cfg.Workflow == nil {
		return nil, errors.NewConfigurationError("github handlers require a workflow client")
	}

	reg := dispatch.NewRegistry()
	for _, t := range policy.KnownTypes() {
		if t == "upload_asset" || !cfg.Runtime.Enabled(t) {
			continue
		}
		reg.Register(cfg.handler(t))
	}
	return reg, nil
}

func (cfg HandlerConfig) handler(actionType string) dispatch.Handler {
	client := cfg.Workflow
	if _, ok := elevatedTypes[actionType]; ok && cfg.Elevated != nil {
		client = cfg.Elevated
	}
	so := cfg.Runtime.SafeOutputs

	switch actionType {
	case "create_issue":
		h := &createIssueHandler{client: client}
		if so != nil && so.CreateIssue != nil {
			h.prefix = so.CreateIssue.TitlePrefix
			h.labels = so.CreateIssue.Labels
		}
		return h
	case "add_comment":
		h := &addCommentHandler{client: client, triggering: cfg.TriggeringNumber}
		if so != nil && so.AddComment != nil {
			h.target = so.AddComment.Target
		}
		return h
	case "create_pull_request":
		h := &createPullRequestHandler{client: client, draft: true}
		if so != nil && so.CreatePullRequest != nil {
			h.prefix = so.CreatePullRequest.TitlePrefix
			h.labels = so.CreatePullRequest.Labels
			if so.CreatePullRequest.Draft != nil {
				h.draft = *so.CreatePullRequest.Draft
			}
		}
		return h
	case "update_issue":
		h := &updateIssueHandler{client: client, triggering: cfg.TriggeringNumber}
		if so != nil && so.UpdateIssue != nil {
			h.target = so.UpdateIssue.Target
		}
		return h
	case "create_pull_request_review_comment":
		h := &reviewCommentHandler{client: client, triggering: cfg.TriggeringNumber, side: "RIGHT"}
		if so != nil && so.ReviewComment != nil && so.ReviewComment.Side != "" {
			h.side = so.ReviewComment.Side
		}
		return h
	case "link_sub_issue":
		return &linkSubIssueHandler{client: client}
	case "create_code_scanning_alert":
		h := &codeScanningAlertHandler{client: client, driver: defaultSARIFDriver}
		if so != nil && so.CodeScanningAlert != nil && so.CodeScanningAlert.Driver != "" {
			h.driver = so.CodeScanningAlert.Driver
		}
		return h
	case "noop":
		return &noopHandler{}
	case "assign_to_agent":
		h := &assignToAgentHandler{client: client, agent: defaultAgentLogin}
		if so != nil && so.AssignToAgent != nil && so.AssignToAgent.Agent != "" {
			h.agent = so.AssignToAgent.Agent
		}
		return h
	case "assign_milestone":
		return &assignMilestoneHandler{client: client}
	case "add_labels":
		return &addLabelsHandler{client: client, triggering: cfg.TriggeringNumber}
	case "create_discussion":
		h := &createDiscussionHandler{client: client}
		if so != nil && so.CreateDiscussion != nil {
			h.prefix = so.CreateDiscussion.TitlePrefix
			h.categoryID = so.CreateDiscussion.CategoryID
		}
		return h
	case "missing_tool":
		return &missingToolHandler{}
	}
	panic("no handler for known action type: " + actionType)
}

const defaultAgentLogin = "copilot"

// resolveTarget reads an int-or-temp field. It returns the concrete
// number, or the unresolved reference when the id has not been minted
// yet (a deferral for the caller).
func resolveTarget(msg intake.Message, field string, ids dispatch.ResolvedIDs) (int, string) {
	num, ref := msg.NumberOrRef(field)
	if ref == "" {
		return num, ""
	}
	entry, ok := ids.Lookup(ref)
	if !ok || entry.Number == 0 {
		return 0, ref
	}
	return entry.Number, ""
}

// pickTarget applies a policy target rule to a message's own target
// field. "" and "triggering" pin the operation to the triggering item,
// "*" honors the field (falling back to the triggering item), and an
// explicit number in the rule overrides everything.
func pickTarget(rule string, triggering int, msg intake.Message, field string, ids dispatch.ResolvedIDs) (int, string) {
	switch rule {
	case "", "triggering":
		return triggering, ""
	case "*":
		num, ref := resolveTarget(msg, field, ids)
		if ref != "" {
			return 0, ref
		}
		if num > 0 {
			return num, ""
		}
		return triggering, ""
	default:
		n, err := strconv.Atoi(rule)
		if err != nil || n <= 0 {
			return 0, ""
		}
		return n, ""
	}
}

// itemNumberPattern pulls the item number off a gh-reported resource URL.
var itemNumberPattern = regexp.MustCompile(`/(?:issues|pull|discussions)/(\d+)$`)

func parseItemNumber(resourceURL string) int {
	m := itemNumberPattern.FindStringSubmatch(strings.TrimSpace(resourceURL))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// lastLine returns the final non-empty line of gh output; creation
// subcommands print the resource URL there.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// applyPrefix prepends the policy title prefix unless already present.
func applyPrefix(title, prefix string) string {
	if prefix == "" || strings.HasPrefix(title, prefix) {
		return title
	}
	return prefix + title
}

// mergeLabels combines message labels with policy-forced ones, first
// occurrence winning case-insensitively.
func mergeLabels(msgLabels, forced []string) []string {
	var out []string
	add := func(l string) {
		for _, have := range out {
			if strings.EqualFold(have, l) {
				return
			}
		}
		out = append(out, l)
	}
	for _, l := range msgLabels {
		add(l)
	}
	for _, l := range forced {
		add(l)
	}
	return out
}
