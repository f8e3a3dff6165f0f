package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/scrub"
	"github.com/teranos/airlock/version"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr string
	}{
		{
			name:   "zero value is valid",
			policy: Policy{},
		},
		{
			name: "negative trigger allowance",
			policy: Policy{
				Scrub: ScrubConfig{TriggerAllowance: -1},
			},
			wantErr: "trigger_allowance",
		},
		{
			name: "negative max lines",
			policy: Policy{
				Scrub: ScrubConfig{MaxLines: -1},
			},
			wantErr: "max_lines",
		},
		{
			name: "negative max bytes",
			policy: Policy{
				Scrub: ScrubConfig{MaxBytes: -5},
			},
			wantErr: "max_bytes",
		},
		{
			name: "negative default max",
			policy: Policy{
				Intake: IntakeConfig{DefaultMax: -1},
			},
			wantErr: "default_max",
		},
		{
			name: "negative requests per second",
			policy: Policy{
				Dispatch: DispatchConfig{RequestsPerSecond: -0.5},
			},
			wantErr: "requests_per_second",
		},
		{
			name: "negative burst",
			policy: Policy{
				Dispatch: DispatchConfig{Burst: -1},
			},
			wantErr: "burst",
		},
		{
			name: "repository without slash",
			policy: Policy{
				Repository: "acme",
			},
			wantErr: "owner/repo",
		},
		{
			name: "repository with slash is valid",
			policy: Policy{
				Repository: "acme/app",
			},
		},
		{
			name: "server url without host",
			policy: Policy{
				GitHub: GitHubConfig{ServerURL: "not a url"},
			},
			wantErr: "server_url",
		},
		{
			name: "server url with host is valid",
			policy: Policy{
				GitHub: GitHubConfig{ServerURL: "https://ghe.corp.example"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnforceMinVersion(t *testing.T) {
	orig := version.Version
	t.Cleanup(func() { version.Version = orig })

	t.Run("empty constraint always passes", func(t *testing.T) {
		version.Version = "0.1.0"
		p := Policy{}
		assert.NoError(t, p.EnforceMinVersion())
	})

	t.Run("dev build passes any constraint", func(t *testing.T) {
		version.Version = "dev"
		p := Policy{MinVersion: "99.0.0"}
		assert.NoError(t, p.EnforceMinVersion())
	})

	t.Run("newer build passes", func(t *testing.T) {
		version.Version = "0.5.0"
		p := Policy{MinVersion: "0.4.0"}
		assert.NoError(t, p.EnforceMinVersion())
	})

	t.Run("older build is rejected", func(t *testing.T) {
		version.Version = "0.3.0"
		p := Policy{MinVersion: "0.4.0"}
		err := p.EnforceMinVersion()
		require.Error(t, err)
		assert.True(t, errors.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "requires airlock >= 0.4.0")
		assert.Contains(t, err.Error(), "0.3.0")
	})

	t.Run("malformed constraint is a configuration error", func(t *testing.T) {
		version.Version = "0.3.0"
		p := Policy{MinVersion: "not-a-version"}
		err := p.EnforceMinVersion()
		require.Error(t, err)
		assert.True(t, errors.IsConfigurationError(err))
	})
}

func TestNewRuntimeMergesLayers(t *testing.T) {
	p := &Policy{
		Command: "triage",
		Scrub: ScrubConfig{
			AllowedDomains:   []string{"Example.com", "docs.example.com"},
			AllowedRepos:     []string{"current", "acme/lib"},
			AllowedMentions:  []string{"release-bot"},
			TriggerAllowance: 1,
			MaxLines:         100,
			MaxBytes:         4096,
		},
		GitHub: GitHubConfig{ServerURL: "https://GHE.corp.example:8443/api/v3"},
		Intake: IntakeConfig{DefaultMax: 5},
	}
	so := &SafeOutputs{AllowedDomains: []string{"cdn.example.com", "example.com"}}
	packs := []Pack{
		{
			Name:     "vendor",
			Domains:  []string{"example.com"},
			Repos:    []string{"acme/tools"},
			Mentions: []string{"ops-bot"},
		},
	}

	rt := NewRuntime(p, so, packs, "acme/app")

	// Packs first, then policy lists, then the safe-outputs block, then
	// the GHES host; duplicates folded case-insensitively.
	assert.Equal(t,
		[]string{"example.com", "docs.example.com", "cdn.example.com", "ghe.corp.example"},
		rt.AllowedDomains())
	assert.Equal(t,
		[]string{"acme/tools", "acme/app", "acme/lib"},
		rt.AllowedRepos())
	assert.Equal(t,
		[]string{"ops-bot", "release-bot"},
		rt.AllowedMentions())
	assert.Equal(t, "acme/app", rt.Repo)
}

func TestNewRuntimeWithoutRepoKeepsCurrentLiteral(t *testing.T) {
	p := &Policy{
		Scrub: ScrubConfig{AllowedRepos: []string{"current"}},
	}

	rt := NewRuntime(p, nil, nil, "")

	// With no resolved repository the placeholder stays inert; it can
	// never match a real owner/repo slug.
	assert.Equal(t, []string{"current"}, rt.AllowedRepos())
}

func TestScrubOptions(t *testing.T) {
	p := &Policy{
		Command: "triage",
		Scrub: ScrubConfig{
			AllowedDomains:   []string{"example.com"},
			AllowedRepos:     []string{"current"},
			AllowedMentions:  []string{"release-bot"},
			TriggerAllowance: 2,
			MaxLines:         500,
			MaxBytes:         1 << 20,
		},
	}

	rt := NewRuntime(p, nil, nil, "acme/app")
	opts := rt.ScrubOptions()

	assert.Equal(t, scrub.Options{
		CommandName:      "triage",
		AllowedMentions:  []string{"release-bot"},
		AllowedDomains:   []string{"example.com"},
		AllowedRepos:     []string{"acme/app"},
		CurrentRepo:      "acme/app",
		TriggerAllowance: 2,
		MaxLines:         500,
		MaxBytes:         1 << 20,
	}, opts)
}

func TestRuntimeEnabled(t *testing.T) {
	p := &Policy{Intake: IntakeConfig{DefaultMax: 1}}

	t.Run("nil block enables every known type", func(t *testing.T) {
		rt := NewRuntime(p, nil, nil, "acme/app")
		for _, typ := range KnownTypes() {
			assert.True(t, rt.Enabled(typ), typ)
		}
		assert.False(t, rt.Enabled("delete_repository"))
	})

	t.Run("present block enables declared types only", func(t *testing.T) {
		so := &SafeOutputs{CreateIssue: &CreateIssueRule{}}
		rt := NewRuntime(p, so, nil, "acme/app")

		assert.True(t, rt.Enabled("create_issue"))
		assert.False(t, rt.Enabled("add_comment"))
		assert.False(t, rt.Enabled("create_pull_request"))

		// Diagnostic types stay available for reporting.
		assert.True(t, rt.Enabled("noop"))
		assert.True(t, rt.Enabled("missing_tool"))
	})
}

func TestRuntimeLimits(t *testing.T) {
	p := &Policy{Intake: IntakeConfig{DefaultMax: 5}}

	t.Run("nil block falls back to default max", func(t *testing.T) {
		rt := NewRuntime(p, nil, nil, "acme/app")
		min, max := rt.Limits("create_issue")
		assert.Equal(t, 0, min)
		assert.Equal(t, 5, max)
	})

	t.Run("declared bounds win", func(t *testing.T) {
		so := &SafeOutputs{
			CreateIssue: &CreateIssueRule{Cardinality: Cardinality{Min: 1, Max: 3}},
		}
		rt := NewRuntime(p, so, nil, "acme/app")
		min, max := rt.Limits("create_issue")
		assert.Equal(t, 1, min)
		assert.Equal(t, 3, max)
	})

	t.Run("declared rule without max uses default", func(t *testing.T) {
		so := &SafeOutputs{AddComment: &AddCommentRule{}}
		rt := NewRuntime(p, so, nil, "acme/app")
		min, max := rt.Limits("add_comment")
		assert.Equal(t, 0, min)
		assert.Equal(t, 5, max)
	})
}

func TestServerHost(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: "", want: ""},
		{name: "plain host", raw: "https://ghe.corp.example", want: "ghe.corp.example"},
		{name: "port and path dropped", raw: "https://GHE.corp.example:8443/api/v3", want: "ghe.corp.example"},
		{name: "unparseable", raw: "://nope", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serverHost(tt.raw))
		})
	}
}

func TestAppendUnique(t *testing.T) {
	got := appendUnique(nil, "a.example", " b.example ", "", "A.EXAMPLE", "c.example")
	assert.Equal(t, []string{"a.example", "b.example", "c.example"}, got)

	got = appendUnique(got, "b.example")
	assert.Equal(t, []string{"a.example", "b.example", "c.example"}, got)
}
