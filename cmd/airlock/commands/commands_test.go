package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/scrub"
	"github.com/teranos/airlock/version"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLintOnce(t *testing.T) {
	policyPath := writeFile(t, "airlock.toml", `repository = "octo/repo"`)
	jsonl := writeFile(t, "out.jsonl", `{"type":"create_issue","title":"Fix the build","body":"See javascript:alert(1) for details.","temp_id":"tmp_fix"}
this line is not a record {{{
{"type":"launch_missiles","reason":"no"}
`)

	rt, err := loadRuntime(policyPath, "", "octo/repo")
	require.NoError(t, err)

	result, err := lintOnce(jsonl, rt)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Accepted)
	require.Len(t, result.Diagnostics, 2)
	assert.Contains(t, result.Diagnostics[0], "line 2")
	assert.Contains(t, result.Diagnostics[1], `unexpected action type "launch_missiles"`)

	// The javascript: URI in the accepted record's body lands in the
	// sanitizer's audit log.
	require.Len(t, result.Redactions, 1)
	assert.Equal(t, scrub.RedactedScheme, result.Redactions[0].Kind)
	assert.Equal(t, "javascript", result.Redactions[0].Value)
}

func TestLintOnce_SafeOutputsGate(t *testing.T) {
	policyPath := writeFile(t, "airlock.toml", `repository = "octo/repo"`)
	soPath := writeFile(t, "safe-outputs.yml", "create-issue:\n  max: 2\n")
	jsonl := writeFile(t, "out.jsonl", `{"type":"create_issue","title":"One","body":"Body."}
{"type":"add_comment","body":"Not declared."}
`)

	rt, err := loadRuntime(policyPath, soPath, "octo/repo")
	require.NoError(t, err)

	result, err := lintOnce(jsonl, rt)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Accepted)
	require.Len(t, result.Diagnostics, 1)
	assert.Contains(t, result.Diagnostics[0], `unexpected action type "add_comment"`)
}

func TestLintOnce_MissingFile(t *testing.T) {
	policyPath := writeFile(t, "airlock.toml", `repository = "octo/repo"`)

	rt, err := loadRuntime(policyPath, "", "octo/repo")
	require.NoError(t, err)

	_, err = lintOnce(filepath.Join(t.TempDir(), "absent.jsonl"), rt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.jsonl")
}

func TestLoadRuntime_MinVersionGate(t *testing.T) {
	policyPath := writeFile(t, "airlock.toml", `min_version = "99.0.0"`)

	// Dev builds bypass the gate
	_, err := loadRuntime(policyPath, "", "octo/repo")
	require.NoError(t, err)

	orig := version.Version
	version.Version = "0.1.0"
	t.Cleanup(func() { version.Version = orig })

	_, err = loadRuntime(policyPath, "", "octo/repo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires airlock >= 99.0.0")
}

func TestLoadRuntime_MergesAllowLists(t *testing.T) {
	policyPath := writeFile(t, "airlock.toml", `
repository = "octo/repo"

[scrub]
allowed_domains = ["example.com"]
`)

	rt, err := loadRuntime(policyPath, "", "")
	require.NoError(t, err)

	assert.Equal(t, "octo/repo", rt.Repo)
	// Default pack hosts plus the policy's own entry
	assert.Contains(t, rt.AllowedDomains(), "example.com")
	assert.Contains(t, rt.AllowedDomains(), "github.com")
}

func TestResolvedIDsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.json")

	in := map[string]dispatch.TempEntry{
		"tmp_fix":   {Repo: "octo/repo", Number: 42, URL: "https://github.com/octo/repo/issues/42"},
		"tmp_disc":  {URL: "https://github.com/octo/repo/discussions/9"},
		"tmp_early": {Repo: "octo/repo", Number: 7},
	}
	require.NoError(t, writeResolvedIDs(path, in))

	out, err := readInitialIDs(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadInitialIDs(t *testing.T) {
	t.Run("empty path means no seed", func(t *testing.T) {
		ids, err := readInitialIDs("")
		require.NoError(t, err)
		assert.Nil(t, ids)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readInitialIDs(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
	})

	t.Run("not a map", func(t *testing.T) {
		path := writeFile(t, "ids.json", `["tmp_fix"]`)
		_, err := readInitialIDs(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a temp-id map")
	})
}

func TestWriteResolvedIDs_NilMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.json")
	require.NoError(t, writeResolvedIDs(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestReadInput(t *testing.T) {
	path := writeFile(t, "out.jsonl", "{\"type\":\"noop\"}\n")

	raw, err := readInput(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\"noop\"}\n", raw)

	_, err = readInput(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.jsonl")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "this is...", truncate("this is far too long", 10))
}

func TestMaskTokens(t *testing.T) {
	settings := map[string]any{
		"repository": "octo/repo",
		"github": map[string]any{
			"token":          "ghp_secret",
			"elevated_token": "",
			"server_url":     "https://ghe.corp.example",
		},
	}

	masked := maskTokens(settings)

	gh := masked["github"].(map[string]any)
	assert.Equal(t, "(redacted)", gh["token"])
	assert.Equal(t, "", gh["elevated_token"], "empty credentials stay empty")
	assert.Equal(t, "https://ghe.corp.example", gh["server_url"])
	assert.Equal(t, "octo/repo", masked["repository"])
}
