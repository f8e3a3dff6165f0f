package github

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/intake"
)

// createIssueHandler mints issues. gh prints the issue URL on success;
// the number parsed from it backs the message's temp-id registration.
type createIssueHandler struct {
	client *Client
	prefix string
	labels []string
}

func (h *createIssueHandler) Type() string { return "create_issue" }

func (h *createIssueHandler) Handle(ctx context.Context, msg intake.Message, _ dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	args := []string{"issue", "create",
		"--title", applyPrefix(msg.String("title"), h.prefix),
		"--body", msg.String("body"),
	}
	for _, l := range mergeLabels(msg.Strings("labels"), h.labels) {
		args = append(args, "--label", l)
	}

	out, err := h.client.Run(ctx, args...)
	if err != nil {
		return dispatch.Fail(err), nil
	}
	resourceURL := lastLine(out)
	num := parseItemNumber(resourceURL)
	if num == 0 {
		return dispatch.Outcome{}, errors.Newf("cannot parse an issue number from gh output %q", resourceURL)
	}
	return dispatch.Succeed(&dispatch.Result{
		TempID: msg.String("temp_id"),
		Entry:  dispatch.TempEntry{Repo: h.client.Repo(), Number: num, URL: resourceURL},
		Detail: fmt.Sprintf("created issue #%d", num),
	}), nil
}

func (h *createIssueHandler) RewriteBody(ctx context.Context, entry dispatch.TempEntry, body string) error {
	_, err := h.client.Run(ctx, "issue", "edit", strconv.Itoa(entry.Number), "--body", body)
	return err
}

// addCommentHandler posts through the issues comments endpoint, which
// accepts issue and pull request numbers alike.
type addCommentHandler struct {
	client     *Client
	triggering int
	target     string
}

func (h *addCommentHandler) Type() string { return "add_comment" }

func (h *addCommentHandler) Handle(ctx context.Context, msg intake.Message, ids dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	num, ref := pickTarget(h.target, h.triggering, msg, "item_number", ids)
	if ref != "" {
		return dispatch.DeferFor(ref), nil
	}
	if num == 0 {
		return dispatch.Fail(errors.New("add_comment has no target: no item_number and no triggering item")), nil
	}

	out, err := h.client.API(ctx, "POST",
		fmt.Sprintf("repos/%s/issues/%d/comments", h.client.Repo(), num),
		map[string]string{"body": msg.String("body")})
	if err != nil {
		return dispatch.Fail(err), nil
	}

	var resp struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return dispatch.Outcome{}, errors.Wrap(err, "parsing comment response")
	}
	return dispatch.Succeed(&dispatch.Result{
		Entry:  dispatch.TempEntry{URL: resp.HTMLURL},
		Detail: fmt.Sprintf("commented on #%d", num),
	}), nil
}

var commentIDPattern = regexp.MustCompile(`issuecomment-(\d+)$`)

func (h *addCommentHandler) RewriteBody(ctx context.Context, entry dispatch.TempEntry, body string) error {
	m := commentIDPattern.FindStringSubmatch(entry.URL)
	if m == nil {
		return errors.Newf("cannot locate a comment id in %q", entry.URL)
	}
	_, err := h.client.API(ctx, "PATCH",
		fmt.Sprintf("repos/%s/issues/comments/%s", h.client.Repo(), m[1]),
		map[string]string{"body": body})
	return err
}

// updateIssueHandler edits title and body in one gh call; a status
// change is its own close/reopen call.
type updateIssueHandler struct {
	client     *Client
	triggering int
	target     string
}

func (h *updateIssueHandler) Type() string { return "update_issue" }

func (h *updateIssueHandler) Handle(ctx context.Context, msg intake.Message, ids dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	num, ref := pickTarget(h.target, h.triggering, msg, "issue_number", ids)
	if ref != "" {
		return dispatch.DeferFor(ref), nil
	}
	if num == 0 {
		return dispatch.Fail(errors.New("update_issue has no target: no issue_number and no triggering item")), nil
	}

	var changed []string
	var editArgs []string
	if msg.Has("title") {
		editArgs = append(editArgs, "--title", msg.String("title"))
		changed = append(changed, "title")
	}
	if msg.Has("body") {
		editArgs = append(editArgs, "--body", msg.String("body"))
		changed = append(changed, "body")
	}
	if len(editArgs) > 0 {
		args := append([]string{"issue", "edit", strconv.Itoa(num)}, editArgs...)
		if _, err := h.client.Run(ctx, args...); err != nil {
			return dispatch.Fail(err), nil
		}
	}

	if status := msg.String("status"); status != "" {
		verb := "close"
		if status == "open" {
			verb = "reopen"
		}
		if _, err := h.client.Run(ctx, "issue", verb, strconv.Itoa(num)); err != nil {
			return dispatch.Fail(err), nil
		}
		changed = append(changed, "status")
	}

	return dispatch.Succeed(&dispatch.Result{
		Entry:  dispatch.TempEntry{Repo: h.client.Repo(), Number: num},
		Detail: fmt.Sprintf("updated issue #%d (%s)", num, strings.Join(changed, ", ")),
	}), nil
}

func (h *updateIssueHandler) RewriteBody(ctx context.Context, entry dispatch.TempEntry, body string) error {
	_, err := h.client.Run(ctx, "issue", "edit", strconv.Itoa(entry.Number), "--body", body)
	return err
}

// addLabelsHandler labels issues or pull requests through the shared
// issues endpoint. The label allow-list and count cap were enforced at
// intake.
type addLabelsHandler struct {
	client     *Client
	triggering int
}

func (h *addLabelsHandler) Type() string { return "add_labels" }

func (h *addLabelsHandler) Handle(ctx context.Context, msg intake.Message, ids dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	num, ref := resolveTarget(msg, "item_number", ids)
	if ref != "" {
		return dispatch.DeferFor(ref), nil
	}
	if num == 0 {
		num = h.triggering
	}
	if num == 0 {
		return dispatch.Fail(errors.New("add_labels has no target: no item_number and no triggering item")), nil
	}

	labels := msg.Strings("labels")
	args := []string{"api", "-X", "POST", fmt.Sprintf("repos/%s/issues/%d/labels", h.client.Repo(), num)}
	for _, l := range labels {
		args = append(args, "-f", "labels[]="+l)
	}
	if _, err := h.client.Run(ctx, args...); err != nil {
		return dispatch.Fail(err), nil
	}
	return dispatch.Succeed(&dispatch.Result{
		Detail: fmt.Sprintf("added labels to #%d: %s", num, strings.Join(labels, ", ")),
	}), nil
}

// linkSubIssueHandler nests one issue under another. The sub-issues
// endpoint wants the child's internal id, so the number is dereferenced
// first.
type linkSubIssueHandler struct {
	client *Client
}

func (h *linkSubIssueHandler) Type() string { return "link_sub_issue" }

func (h *linkSubIssueHandler) Handle(ctx context.Context, msg intake.Message, ids dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	parent, ref := resolveTarget(msg, "parent_issue_number", ids)
	if ref != "" {
		return dispatch.DeferFor(ref), nil
	}
	sub, ref := resolveTarget(msg, "sub_issue_number", ids)
	if ref != "" {
		return dispatch.DeferFor(ref), nil
	}

	out, err := h.client.Run(ctx, "api",
		fmt.Sprintf("repos/%s/issues/%d", h.client.Repo(), sub), "--jq", ".id")
	if err != nil {
		return dispatch.Fail(err), nil
	}
	subID := strings.TrimSpace(out)
	if subID == "" {
		return dispatch.Outcome{}, errors.Newf("issue #%d has no id in the api response", sub)
	}

	_, err = h.client.Run(ctx, "api", "-X", "POST",
		fmt.Sprintf("repos/%s/issues/%d/sub_issues", h.client.Repo(), parent),
		"-F", "sub_issue_id="+subID)
	if err != nil {
		return dispatch.Fail(err), nil
	}
	return dispatch.Succeed(&dispatch.Result{
		Detail: fmt.Sprintf("linked #%d under #%d", sub, parent),
	}), nil
}

// assignMilestoneHandler sets the milestone by number.
type assignMilestoneHandler struct {
	client *Client
}

func (h *assignMilestoneHandler) Type() string { return "assign_milestone" }

func (h *assignMilestoneHandler) Handle(ctx context.Context, msg intake.Message, ids dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	num, ref := resolveTarget(msg, "issue_number", ids)
	if ref != "" {
		return dispatch.DeferFor(ref), nil
	}
	milestone, _ := msg.Int("milestone_number")

	_, err := h.client.Run(ctx, "api", "-X", "PATCH",
		fmt.Sprintf("repos/%s/issues/%d", h.client.Repo(), num),
		"-F", "milestone="+strconv.Itoa(milestone))
	if err != nil {
		return dispatch.Fail(err), nil
	}
	return dispatch.Succeed(&dispatch.Result{
		Detail: fmt.Sprintf("assigned milestone %d to #%d", milestone, num),
	}), nil
}

// assignToAgentHandler hands an item to the coding agent. Assignment
// goes through the issues endpoint, which covers pull requests too.
type assignToAgentHandler struct {
	client *Client
	agent  string
}

func (h *assignToAgentHandler) Type() string { return "assign_to_agent" }

func (h *assignToAgentHandler) Handle(ctx context.Context, msg intake.Message, ids dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	num, ref := resolveTarget(msg, "issue_number", ids)
	if ref != "" {
		return dispatch.DeferFor(ref), nil
	}
	if num == 0 {
		num, ref = resolveTarget(msg, "pull_number", ids)
		if ref != "" {
			return dispatch.DeferFor(ref), nil
		}
	}
	if num == 0 {
		return dispatch.Fail(errors.New("assign_to_agent has no target item")), nil
	}

	_, err := h.client.Run(ctx, "api", "-X", "POST",
		fmt.Sprintf("repos/%s/issues/%d/assignees", h.client.Repo(), num),
		"-f", "assignees[]="+h.agent)
	if err != nil {
		return dispatch.Fail(err), nil
	}
	return dispatch.Succeed(&dispatch.Result{
		Detail: fmt.Sprintf("assigned %s to #%d", h.agent, num),
	}), nil
}
