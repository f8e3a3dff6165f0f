package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/intake"
)

// Discussions have no REST creation endpoint; both the category lookup
// and the creation go through GraphQL.
const discussionCategoriesQuery = `query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    id
    discussionCategories(first: 25) {
      nodes { id name slug }
    }
  }
}`

const createDiscussionMutation = `mutation($repositoryId: ID!, $categoryId: ID!, $title: String!, $body: String!) {
  createDiscussion(input: {repositoryId: $repositoryId, categoryId: $categoryId, title: $title, body: $body}) {
    discussion { number url }
  }
}`

// createDiscussionHandler mints discussions. Discussions live in their
// own number space, so the temp-id registration carries the resource URL
// rather than a "#N" reference.
type createDiscussionHandler struct {
	client     *Client
	prefix     string
	categoryID string
}

func (h *createDiscussionHandler) Type() string { return "create_discussion" }

func (h *createDiscussionHandler) Handle(ctx context.Context, msg intake.Message, _ dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	owner, name, ok := strings.Cut(h.client.Repo(), "/")
	if !ok {
		return dispatch.Outcome{}, errors.Newf("repository %q is not owner/repo", h.client.Repo())
	}

	repoID, categoryID, err := h.lookupCategory(ctx, owner, name, msg.String("category"))
	if err != nil {
		return dispatch.Fail(err), nil
	}

	out, err := h.client.GraphQL(ctx, createDiscussionMutation, map[string]string{
		"repositoryId": repoID,
		"categoryId":   categoryID,
		"title":        applyPrefix(msg.String("title"), h.prefix),
		"body":         msg.String("body"),
	})
	if err != nil {
		return dispatch.Fail(err), nil
	}

	var created struct {
		Data struct {
			CreateDiscussion struct {
				Discussion struct {
					Number int    `json:"number"`
					URL    string `json:"url"`
				} `json:"discussion"`
			} `json:"createDiscussion"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		return dispatch.Outcome{}, errors.Wrap(err, "parsing createDiscussion response")
	}
	d := created.Data.CreateDiscussion.Discussion
	if d.URL == "" {
		return dispatch.Outcome{}, errors.Newf("createDiscussion returned no url: %s", out)
	}

	return dispatch.Succeed(&dispatch.Result{
		TempID: msg.String("temp_id"),
		Entry:  dispatch.TempEntry{URL: d.URL},
		Detail: fmt.Sprintf("created discussion %s", d.URL),
	}), nil
}

// lookupCategory resolves the discussion category id: a category named
// in the message wins, then the policy's pinned id, then the
// repository's first category.
func (h *createDiscussionHandler) lookupCategory(ctx context.Context, owner, name, want string) (repoID, categoryID string, err error) {
	out, err := h.client.GraphQL(ctx, discussionCategoriesQuery, map[string]string{
		"owner": owner,
		"name":  name,
	})
	if err != nil {
		return "", "", err
	}

	var lookup struct {
		Data struct {
			Repository struct {
				ID                   string `json:"id"`
				DiscussionCategories struct {
					Nodes []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
						Slug string `json:"slug"`
					} `json:"nodes"`
				} `json:"discussionCategories"`
			} `json:"repository"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &lookup); err != nil {
		return "", "", errors.Wrap(err, "parsing discussion categories")
	}

	repo := lookup.Data.Repository
	if repo.ID == "" {
		return "", "", errors.Newf("repository %s/%s not found or discussions disabled", owner, name)
	}
	nodes := repo.DiscussionCategories.Nodes

	if want != "" {
		for _, n := range nodes {
			if strings.EqualFold(n.Name, want) || strings.EqualFold(n.Slug, want) {
				return repo.ID, n.ID, nil
			}
		}
		return "", "", errors.Newf("unknown discussion category %q", want)
	}
	if h.categoryID != "" {
		return repo.ID, h.categoryID, nil
	}
	if len(nodes) == 0 {
		return "", "", errors.Newf("repository %s/%s has no discussion categories", owner, name)
	}
	return repo.ID, nodes[0].ID, nil
}
