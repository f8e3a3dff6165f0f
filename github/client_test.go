package github

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/airlock/errors"
)

// stubGH records every invocation and plays back scripted responses in
// order.
type stubGH struct {
	calls     [][]string
	envs      [][]string
	stdins    [][]byte
	responses []stubResponse
}

type stubResponse struct {
	out string
	err error
}

func (s *stubGH) exec(_ context.Context, env []string, stdin []byte, args ...string) ([]byte, error) {
	s.calls = append(s.calls, args)
	s.envs = append(s.envs, env)
	s.stdins = append(s.stdins, stdin)
	if len(s.responses) == 0 {
		return nil, errors.New("stub has no response scripted for this call")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.out), nil
}

func (s *stubGH) respond(outs ...string) *stubGH {
	for _, o := range outs {
		s.responses = append(s.responses, stubResponse{out: o})
	}
	return s
}

func (s *stubGH) fail(err error) *stubGH {
	s.responses = append(s.responses, stubResponse{err: err})
	return s
}

func testClient(t *testing.T, cfg ClientConfig, stub *stubGH) *Client {
	t.Helper()
	if cfg.Repo == "" {
		cfg.Repo = "octo/repo"
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	c.run = stub.exec
	return c
}

func TestNewClientValidation(t *testing.T) {
	t.Run("requires a repository", func(t *testing.T) {
		_, err := NewClient(ClientConfig{})
		require.Error(t, err)
		assert.True(t, errors.IsConfigurationError(err))
	})

	t.Run("rejects an unparseable server url", func(t *testing.T) {
		_, err := NewClient(ClientConfig{Repo: "octo/repo", ServerURL: "::not a url::"})
		require.Error(t, err)
	})

	t.Run("rejects unbalanced extra args", func(t *testing.T) {
		_, err := NewClient(ClientConfig{Repo: "octo/repo", ExtraArgs: `--config "unterminated`})
		require.Error(t, err)
	})
}

func TestClientRunEnvironment(t *testing.T) {
	stub := (&stubGH{}).respond("ok\n")
	c := testClient(t, ClientConfig{
		Token:     "tok",
		ServerURL: "https://ghe.example.test/",
	}, stub)

	out, err := c.Run(context.Background(), "issue", "list")
	require.NoError(t, err)
	assert.Equal(t, "ok", out, "stdout is trimmed")

	require.Len(t, stub.envs, 1)
	assert.Contains(t, stub.envs[0], "GH_REPO=octo/repo")
	assert.Contains(t, stub.envs[0], "GH_TOKEN=tok")
	assert.Contains(t, stub.envs[0], "GH_HOST=ghe.example.test")
}

func TestClientRunAppendsExtraArgs(t *testing.T) {
	stub := (&stubGH{}).respond("")
	c := testClient(t, ClientConfig{ExtraArgs: `--config 'http_proxy=socks5://localhost:1080'`}, stub)

	_, err := c.Run(context.Background(), "issue", "list")
	require.NoError(t, err)

	require.Len(t, stub.calls, 1)
	assert.Equal(t, []string{"issue", "list", "--config", "http_proxy=socks5://localhost:1080"}, stub.calls[0])
}

func TestClientAPI(t *testing.T) {
	stub := (&stubGH{}).respond("{}")
	c := testClient(t, ClientConfig{}, stub)

	_, err := c.API(context.Background(), "POST", "repos/octo/repo/issues/5/comments", map[string]string{
		"body": "hello",
	})
	require.NoError(t, err)

	require.Len(t, stub.calls, 1)
	assert.Equal(t, []string{
		"api", "-X", "POST", "repos/octo/repo/issues/5/comments",
		"-f", "body=hello",
	}, stub.calls[0])
}

func TestClientGraphQL(t *testing.T) {
	stub := (&stubGH{}).respond("{}")
	c := testClient(t, ClientConfig{}, stub)

	_, err := c.GraphQL(context.Background(), "query { viewer { login } }", map[string]string{
		"owner": "octo",
		"name":  "repo",
	})
	require.NoError(t, err)

	require.Len(t, stub.calls, 1)
	assert.Equal(t, []string{
		"api", "graphql",
		"-f", "query=query { viewer { login } }",
		"-f", "name=repo",
		"-f", "owner=octo",
	}, stub.calls[0])
}

func TestClientRunPropagatesErrors(t *testing.T) {
	stub := (&stubGH{}).fail(errors.New("gh issue failed: HTTP 403: forbidden"))
	c := testClient(t, ClientConfig{}, stub)

	_, err := c.Run(context.Background(), "issue", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}
