// Package github binds dispatch handlers to the collaboration platform
// through the gh CLI. Handlers stay thin: build arguments, run gh, parse
// the identity out of its output. Platform API semantics (retries,
// pagination, auth refresh) belong to gh itself.
package github

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/internal/util"
	"github.com/teranos/airlock/logger"
)

// execFunc runs one gh invocation and returns its stdout. Tests swap it
// for a stub; production uses runGH.
type execFunc func(ctx context.Context, env []string, stdin []byte, args ...string) ([]byte, error)

// ClientConfig configures one gh-backed client.
type ClientConfig struct {
	// Repo is the "owner/repo" slug every invocation is bound to.
	Repo string

	// Token authenticates gh. Empty falls back to gh's own auth state,
	// which is what local development wants.
	Token string

	// ServerURL points gh at a GitHub Enterprise host. Empty means
	// github.com.
	ServerURL string

	// ExtraArgs is appended verbatim to every invocation after
	// shell-style splitting, for proxy or config flags.
	ExtraArgs string
}

// Client shells out to the gh CLI with a fixed repository, token, and
// host. One run uses up to two of these: the workflow-token client and
// an elevated one for privileged operations.
type Client struct {
	repo  string
	token string
	host  string
	extra []string
	run   execFunc
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Repo == "" {
		return nil, errors.NewConfigurationError("github client requires a repository")
	}
	extra, err := shellquote.Split(cfg.ExtraArgs)
	if err != nil {
		return nil, errors.Wrapf(err, "github.extra_args %q does not split", cfg.ExtraArgs)
	}
	host := ""
	if cfg.ServerURL != "" {
		u, err := url.Parse(cfg.ServerURL)
		if err != nil || u.Hostname() == "" {
			return nil, errors.NewConfigurationError("github.server_url is not a valid URL: %q", cfg.ServerURL)
		}
		host = u.Hostname()
	}
	return &Client{
		repo:  cfg.Repo,
		token: cfg.Token,
		host:  host,
		extra: extra,
		run:   runGH,
	}, nil
}

// Repo returns the repository slug this client operates on.
func (c *Client) Repo() string { return c.repo }

// Run invokes gh with the client's repository, token, and host bound
// through the environment, returning trimmed stdout.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	return c.RunStdin(ctx, nil, args...)
}

// RunStdin is Run with bytes piped to gh's standard input.
func (c *Client) RunStdin(ctx context.Context, stdin []byte, args ...string) (string, error) {
	full := append(append([]string{}, args...), c.extra...)

	env := []string{"GH_REPO=" + c.repo, "GH_PROMPT_DISABLED=1", "NO_COLOR=1"}
	if c.token != "" {
		env = append(env, "GH_TOKEN="+c.token)
	}
	if c.host != "" {
		env = append(env, "GH_HOST="+c.host)
	}

	fields := append([]any{
		logger.FieldBinary, "gh",
		"subcommand", subcommand(args),
		logger.FieldRepo, c.repo,
	}, logger.FieldsFromContext(ctx)...)
	logger.DispatchDebugw("Running gh", fields...)

	out, err := c.run(ctx, env, stdin, full...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// API calls "gh api" with an explicit method. Fields become -f key=value
// string parameters, sorted for deterministic invocations.
func (c *Client) API(ctx context.Context, method, path string, fields map[string]string) (string, error) {
	args := []string{"api", "-X", method, path}
	for _, k := range sortedKeys(fields) {
		args = append(args, "-f", k+"="+fields[k])
	}
	return c.Run(ctx, args...)
}

// GraphQL calls "gh api graphql" with string variables.
func (c *Client) GraphQL(ctx context.Context, query string, vars map[string]string) (string, error) {
	args := []string{"api", "graphql", "-f", "query=" + query}
	for _, k := range sortedKeys(vars) {
		args = append(args, "-f", k+"="+vars[k])
	}
	return c.Run(ctx, args...)
}

// runGH is the production execFunc.
func runGH(ctx context.Context, env []string, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Env = append(os.Environ(), env...)
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			if stderr == "" {
				stderr = exitErr.String()
			}
			// The report carries one line per failure; the full dump is
			// debug output.
			logger.DispatchDebugw("gh invocation failed",
				logger.FieldBinary, "gh",
				"subcommand", subcommand(args),
				"stderr", util.Shorten(stderr, 2000),
			)
			return nil, errors.Newf("gh %s failed: %s", subcommand(args), util.FirstLine(stderr))
		}
		return nil, errors.Wrapf(err, "gh %s", subcommand(args))
	}
	return out, nil
}

// subcommand names an invocation for logs and errors without echoing
// argument content.
func subcommand(args []string) string {
	n := len(args)
	if n > 2 {
		n = 2
	}
	return strings.Join(args[:n], " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
