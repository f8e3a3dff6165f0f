package policy

import (
	"net/url"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"

	"github.com/teranos/airlock/errors"
)

// DetectRepository resolves the "owner/repo" slug for the current run.
// The GITHUB_REPOSITORY environment variable wins; otherwise the origin
// remote of the enclosing git worktree is parsed.
func DetectRepository(dir string) (string, error) {
	if slug := strings.TrimSpace(os.Getenv("GITHUB_REPOSITORY")); slug != "" {
		return slug, nil
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", errors.Wrapf(err, "failed to open git repository at %s", dir)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return "", errors.Wrap(err, "repository has no origin remote")
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.New("origin remote has no URL")
	}

	slug, err := ownerRepoFromRemote(urls[0])
	if err != nil {
		return "", err
	}
	return slug, nil
}

// ownerRepoFromRemote extracts "owner/repo" from a git remote URL.
// Handles scp-like (git@host:owner/repo.git), ssh:// and https:// forms.
func ownerRepoFromRemote(remote string) (string, error) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", errors.New("empty remote URL")
	}

	var path string
	switch {
	case strings.Contains(remote, "://"):
		u, err := url.Parse(remote)
		if err != nil {
			return "", errors.Wrapf(err, "failed to parse remote URL %s", remote)
		}
		path = u.Path
	case strings.Contains(remote, ":"):
		// scp-like syntax: git@host:owner/repo.git
		_, after, _ := strings.Cut(remote, ":")
		path = after
	default:
		return "", errors.Newf("unrecognized remote URL format: %s", remote)
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", errors.Newf("remote URL %s does not contain owner/repo", remote)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}
