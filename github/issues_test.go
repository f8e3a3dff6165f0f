package github

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/intake"
)

func message(typ string, fields map[string]any) intake.Message {
	return intake.Message{Type: typ, Line: 1, Fields: fields}
}

func mustSucceed(t *testing.T) func(dispatch.Outcome, error) *dispatch.Result {
	t.Helper()
	return func(out dispatch.Outcome, err error) *dispatch.Result {
		t.Helper()
		require.NoError(t, err)
		res, ok := out.Success()
		require.True(t, ok, "expected a success outcome")
		return res
	}
}

func mustFail(t *testing.T) func(dispatch.Outcome, error) error {
	t.Helper()
	return func(out dispatch.Outcome, err error) error {
		t.Helper()
		require.NoError(t, err)
		ferr, ok := out.Failure()
		require.True(t, ok, "expected a failed outcome")
		return ferr
	}
}

func TestCreateIssueHandler(t *testing.T) {
	t.Run("creates and registers the minted number", func(t *testing.T) {
		stub := (&stubGH{}).respond("https://github.com/octo/repo/issues/42\n")
		h := &createIssueHandler{
			client: testClient(t, ClientConfig{}, stub),
			prefix: "[bot] ",
			labels: []string{"automated"},
		}

		msg := message("create_issue", map[string]any{
			"title":   "Fix the flaky test",
			"body":    "Details.",
			"labels":  []string{"bug"},
			"temp_id": "tmp_fix",
		})
		res := mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))

		assert.Equal(t, "tmp_fix", res.TempID)
		assert.Equal(t, dispatch.TempEntry{
			Repo:   "octo/repo",
			Number: 42,
			URL:    "https://github.com/octo/repo/issues/42",
		}, res.Entry)
		assert.Equal(t, "created issue #42", res.Detail)

		require.Len(t, stub.calls, 1)
		assert.Equal(t, []string{
			"issue", "create",
			"--title", "[bot] Fix the flaky test",
			"--body", "Details.",
			"--label", "bug",
			"--label", "automated",
		}, stub.calls[0])
	})

	t.Run("platform rejection becomes a failed outcome", func(t *testing.T) {
		stub := (&stubGH{}).fail(errors.New("gh issue create failed: HTTP 403"))
		h := &createIssueHandler{client: testClient(t, ClientConfig{}, stub)}

		msg := message("create_issue", map[string]any{"title": "t", "body": "b"})
		ferr := mustFail(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))
		assert.Contains(t, ferr.Error(), "HTTP 403")
	})

	t.Run("unparseable output is an unexpected error", func(t *testing.T) {
		stub := (&stubGH{}).respond("something that is not a url")
		h := &createIssueHandler{client: testClient(t, ClientConfig{}, stub)}

		msg := message("create_issue", map[string]any{"title": "t", "body": "b"})
		_, err := h.Handle(context.Background(), msg, dispatch.ResolvedIDs{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot parse an issue number")
	})

	t.Run("rewrites the body in place", func(t *testing.T) {
		stub := (&stubGH{}).respond("")
		h := &createIssueHandler{client: testClient(t, ClientConfig{}, stub)}

		err := h.RewriteBody(context.Background(),
			dispatch.TempEntry{Repo: "octo/repo", Number: 42}, "Depends on #41.")
		require.NoError(t, err)
		require.Len(t, stub.calls, 1)
		assert.Equal(t, []string{"issue", "edit", "42", "--body", "Depends on #41."}, stub.calls[0])
	})
}

func TestAddCommentHandler(t *testing.T) {
	commentJSON := `{"html_url":"https://github.com/octo/repo/issues/7#issuecomment-555"}`

	t.Run("star target honors item_number", func(t *testing.T) {
		stub := (&stubGH{}).respond(commentJSON)
		h := &addCommentHandler{client: testClient(t, ClientConfig{}, stub), triggering: 9, target: "*"}

		msg := message("add_comment", map[string]any{"body": "hello", "item_number": 7})
		res := mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))

		assert.Equal(t, "commented on #7", res.Detail)
		assert.Equal(t, "https://github.com/octo/repo/issues/7#issuecomment-555", res.Entry.URL)
		require.Len(t, stub.calls, 1)
		assert.Equal(t, []string{
			"api", "-X", "POST", "repos/octo/repo/issues/7/comments",
			"-f", "body=hello",
		}, stub.calls[0])
	})

	t.Run("default target pins to the triggering item", func(t *testing.T) {
		stub := (&stubGH{}).respond(commentJSON)
		h := &addCommentHandler{client: testClient(t, ClientConfig{}, stub), triggering: 9}

		msg := message("add_comment", map[string]any{"body": "hello", "item_number": 7})
		mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))

		require.Len(t, stub.calls, 1)
		assert.Equal(t, "repos/octo/repo/issues/9/comments", stub.calls[0][3])
	})

	t.Run("defers an unresolved reference without calling gh", func(t *testing.T) {
		stub := &stubGH{}
		h := &addCommentHandler{client: testClient(t, ClientConfig{}, stub), target: "*"}

		msg := message("add_comment", map[string]any{"body": "hello", "item_number": "tmp_issue"})
		out, err := h.Handle(context.Background(), msg, dispatch.ResolvedIDs{})
		require.NoError(t, err)
		ref, deferred := out.Deferral()
		require.True(t, deferred)
		assert.Equal(t, "tmp_issue", ref)
		assert.Empty(t, stub.calls)
	})

	t.Run("fails without any target", func(t *testing.T) {
		h := &addCommentHandler{client: testClient(t, ClientConfig{}, &stubGH{})}
		msg := message("add_comment", map[string]any{"body": "hello"})
		ferr := mustFail(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))
		assert.Contains(t, ferr.Error(), "no target")
	})

	t.Run("rewrites through the comment id", func(t *testing.T) {
		stub := (&stubGH{}).respond("{}")
		h := &addCommentHandler{client: testClient(t, ClientConfig{}, stub)}

		entry := dispatch.TempEntry{URL: "https://github.com/octo/repo/issues/7#issuecomment-555"}
		require.NoError(t, h.RewriteBody(context.Background(), entry, "see #42"))
		require.Len(t, stub.calls, 1)
		assert.Equal(t, []string{
			"api", "-X", "PATCH", "repos/octo/repo/issues/comments/555",
			"-f", "body=see #42",
		}, stub.calls[0])
	})

	t.Run("rejects an entry without a comment id", func(t *testing.T) {
		h := &addCommentHandler{client: testClient(t, ClientConfig{}, &stubGH{})}
		err := h.RewriteBody(context.Background(), dispatch.TempEntry{URL: "https://example.test/x"}, "b")
		require.Error(t, err)
	})
}

func TestUpdateIssueHandler(t *testing.T) {
	t.Run("edits fields then flips status", func(t *testing.T) {
		stub := (&stubGH{}).respond("", "")
		h := &updateIssueHandler{client: testClient(t, ClientConfig{}, stub), triggering: 5}

		msg := message("update_issue", map[string]any{
			"title":  "New title",
			"body":   "New body",
			"status": "closed",
		})
		res := mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))

		assert.Equal(t, "updated issue #5 (title, body, status)", res.Detail)
		assert.Equal(t, dispatch.TempEntry{Repo: "octo/repo", Number: 5}, res.Entry)
		require.Len(t, stub.calls, 2)
		assert.Equal(t, []string{"issue", "edit", "5", "--title", "New title", "--body", "New body"}, stub.calls[0])
		assert.Equal(t, []string{"issue", "close", "5"}, stub.calls[1])
	})

	t.Run("reopens on status open", func(t *testing.T) {
		stub := (&stubGH{}).respond("")
		h := &updateIssueHandler{client: testClient(t, ClientConfig{}, stub), triggering: 5}

		msg := message("update_issue", map[string]any{"status": "open"})
		mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))
		require.Len(t, stub.calls, 1)
		assert.Equal(t, []string{"issue", "reopen", "5"}, stub.calls[0])
	})

	t.Run("star target resolves a temp id", func(t *testing.T) {
		stub := (&stubGH{}).respond("")
		h := &updateIssueHandler{client: testClient(t, ClientConfig{}, stub), target: "*"}
		ids := dispatch.NewResolvedIDs(map[string]dispatch.TempEntry{
			"tmp_parent": {Repo: "octo/repo", Number: 31},
		})

		msg := message("update_issue", map[string]any{"issue_number": "tmp_parent", "title": "t"})
		res := mustSucceed(t)(h.Handle(context.Background(), msg, ids))
		assert.Equal(t, 31, res.Entry.Number)
	})
}

func TestAddLabelsHandler(t *testing.T) {
	stub := (&stubGH{}).respond("[]")
	h := &addLabelsHandler{client: testClient(t, ClientConfig{}, stub), triggering: 4}

	msg := message("add_labels", map[string]any{"labels": []string{"bug", "docs"}})
	res := mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))

	assert.Equal(t, "added labels to #4: bug, docs", res.Detail)
	require.Len(t, stub.calls, 1)
	assert.Equal(t, []string{
		"api", "-X", "POST", "repos/octo/repo/issues/4/labels",
		"-f", "labels[]=bug",
		"-f", "labels[]=docs",
	}, stub.calls[0])
}

func TestLinkSubIssueHandler(t *testing.T) {
	t.Run("dereferences the child id then links", func(t *testing.T) {
		stub := (&stubGH{}).respond("998877\n", "{}")
		h := &linkSubIssueHandler{client: testClient(t, ClientConfig{}, stub)}

		msg := message("link_sub_issue", map[string]any{
			"parent_issue_number": 10,
			"sub_issue_number":    11,
		})
		res := mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))

		assert.Equal(t, "linked #11 under #10", res.Detail)
		require.Len(t, stub.calls, 2)
		assert.Equal(t, []string{"api", "repos/octo/repo/issues/11", "--jq", ".id"}, stub.calls[0])
		assert.Equal(t, []string{
			"api", "-X", "POST", "repos/octo/repo/issues/10/sub_issues",
			"-F", "sub_issue_id=998877",
		}, stub.calls[1])
	})

	t.Run("defers until both sides resolve", func(t *testing.T) {
		stub := &stubGH{}
		h := &linkSubIssueHandler{client: testClient(t, ClientConfig{}, stub)}

		msg := message("link_sub_issue", map[string]any{
			"parent_issue_number": "tmp_parent",
			"sub_issue_number":    11,
		})
		out, err := h.Handle(context.Background(), msg, dispatch.ResolvedIDs{})
		require.NoError(t, err)
		ref, deferred := out.Deferral()
		require.True(t, deferred)
		assert.Equal(t, "tmp_parent", ref)
		assert.Empty(t, stub.calls)
	})
}

func TestAssignMilestoneHandler(t *testing.T) {
	stub := (&stubGH{}).respond("{}")
	h := &assignMilestoneHandler{client: testClient(t, ClientConfig{}, stub)}

	msg := message("assign_milestone", map[string]any{"issue_number": 6, "milestone_number": 3})
	res := mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))

	assert.Equal(t, "assigned milestone 3 to #6", res.Detail)
	require.Len(t, stub.calls, 1)
	assert.Equal(t, []string{
		"api", "-X", "PATCH", "repos/octo/repo/issues/6",
		"-F", "milestone=3",
	}, stub.calls[0])
}

func TestAssignToAgentHandler(t *testing.T) {
	t.Run("assigns the configured agent", func(t *testing.T) {
		stub := (&stubGH{}).respond("{}")
		h := &assignToAgentHandler{client: testClient(t, ClientConfig{}, stub), agent: "copilot"}

		msg := message("assign_to_agent", map[string]any{"issue_number": 6})
		res := mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))

		assert.Equal(t, "assigned copilot to #6", res.Detail)
		require.Len(t, stub.calls, 1)
		assert.Equal(t, []string{
			"api", "-X", "POST", "repos/octo/repo/issues/6/assignees",
			"-f", "assignees[]=copilot",
		}, stub.calls[0])
	})

	t.Run("falls through to pull_number", func(t *testing.T) {
		stub := (&stubGH{}).respond("{}")
		h := &assignToAgentHandler{client: testClient(t, ClientConfig{}, stub), agent: "copilot"}

		msg := message("assign_to_agent", map[string]any{"pull_number": 8})
		res := mustSucceed(t)(h.Handle(context.Background(), msg, dispatch.ResolvedIDs{}))
		assert.Equal(t, "assigned copilot to #8", res.Detail)
	})
}
