package github

import (
	"context"
	"fmt"
	"strconv"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/intake"
)

// createPullRequestHandler opens a pull request from an existing branch.
// Pushing the branch is the agent's job earlier in the workflow; by the
// time a message reaches dispatch the branch must exist.
type createPullRequestHandler struct {
	client *Client
	prefix string
	labels []string
	draft  bool
}

func (h *createPullRequestHandler) Type() string { return "create_pull_request" }

func (h *createPullRequestHandler) Handle(ctx context.Context, msg intake.Message, _ dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	args := []string{"pr", "create",
		"--title", applyPrefix(msg.String("title"), h.prefix),
		"--body", msg.String("body"),
		"--head", msg.String("branch"),
	}
	if h.draft {
		args = append(args, "--draft")
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
		return dispatch.Outcome{}, errors.Newf("cannot parse a pull request number from gh output %q", resourceURL)
	}
	return dispatch.Succeed(&dispatch.Result{
		TempID: msg.String("temp_id"),
		Entry:  dispatch.TempEntry{Repo: h.client.Repo(), Number: num, URL: resourceURL},
		Detail: fmt.Sprintf("created pull request #%d", num),
	}), nil
}

func (h *createPullRequestHandler) RewriteBody(ctx context.Context, entry dispatch.TempEntry, body string) error {
	_, err := h.client.Run(ctx, "pr", "edit", strconv.Itoa(entry.Number), "--body", body)
	return err
}

// reviewCommentHandler anchors a comment to a diff line on the
// triggering pull request. The pulls comments endpoint needs the head
// commit, so that is looked up first.
type reviewCommentHandler struct {
	client     *Client
	triggering int
	side       string
}

func (h *reviewCommentHandler) Type() string { return "create_pull_request_review_comment" }

func (h *reviewCommentHandler) Handle(ctx context.Context, msg intake.Message, _ dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	if h.triggering == 0 {
		return dispatch.Fail(errors.New("review comments require a triggering pull request")), nil
	}

	sha, err := h.client.Run(ctx, "pr", "view", strconv.Itoa(h.triggering),
		"--json", "headRefOid", "--jq", ".headRefOid")
	if err != nil {
		return dispatch.Fail(err), nil
	}

	path := msg.String("path")
	line, _ := msg.Int("line")
	side := msg.String("side")
	if side == "" {
		side = h.side
	}

	args := []string{"api", "-X", "POST",
		fmt.Sprintf("repos/%s/pulls/%d/comments", h.client.Repo(), h.triggering),
		"-f", "body=" + msg.String("body"),
		"-f", "path=" + path,
		"-f", "commit_id=" + sha,
		"-f", "side=" + side,
		"-F", fmt.Sprintf("line=%d", line),
	}
	if start, ok := msg.Int("start_line"); ok {
		args = append(args,
			"-F", fmt.Sprintf("start_line=%d", start),
			"-f", "start_side="+side,
		)
	}

	if _, err := h.client.Run(ctx, args...); err != nil {
		return dispatch.Fail(err), nil
	}
	return dispatch.Succeed(&dispatch.Result{
		Detail: fmt.Sprintf("review comment on %s:%d", path, line),
	}), nil
}
