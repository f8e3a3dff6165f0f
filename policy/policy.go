// Package policy holds the run-scoped configuration: the TOML/env layer
// (merged system → user → project → environment), the YAML safe-outputs
// block declaring which action types a run may emit, and TOML allow-list
// packs. A Runtime snapshot is assembled once at run start and never
// mutated afterwards; every stage reads from it.
package policy

import (
	"net/url"
	"strings"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/scrub"
	"github.com/teranos/airlock/version"
)

// Policy is the TOML/env configuration layer.
type Policy struct {
	// MinVersion is the lowest airlock build version this policy file is
	// written for. Enforced before any message is processed.
	MinVersion string `mapstructure:"min_version"`

	// Repository overrides repository detection ("owner/repo").
	Repository string `mapstructure:"repository"`

	// Command is the workflow's own slash command, neutralized when it
	// appears at the start of agent text.
	Command string `mapstructure:"command"`

	Scrub    ScrubConfig    `mapstructure:"scrub"`
	Intake   IntakeConfig   `mapstructure:"intake"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Packs    PacksConfig    `mapstructure:"packs"`
}

// ScrubConfig feeds scrub.Options. Lists here are merged with the packs
// and the safe-outputs block; they never replace them.
type ScrubConfig struct {
	AllowedDomains   []string `mapstructure:"allowed_domains"`
	AllowedRepos     []string `mapstructure:"allowed_repos"`
	AllowedMentions  []string `mapstructure:"allowed_mentions"`
	TriggerAllowance int      `mapstructure:"trigger_allowance"`
	MaxLines         int      `mapstructure:"max_lines"`
	MaxBytes         int      `mapstructure:"max_bytes"`
}

// IntakeConfig configures the validator.
type IntakeConfig struct {
	// DefaultMax is the per-type cardinality ceiling applied when an
	// enabled type does not declare its own max.
	DefaultMax int `mapstructure:"default_max"`
}

// DispatchConfig configures the engine's pacing.
type DispatchConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// GitHubConfig configures the gh CLI clients.
type GitHubConfig struct {
	Token         string `mapstructure:"token"`          // workflow token
	ElevatedToken string `mapstructure:"elevated_token"` // privileged operations
	ServerURL     string `mapstructure:"server_url"`     // GHES; host joins the domain allow-list
	ExtraArgs     string `mapstructure:"extra_args"`     // appended to every gh invocation
}

// DatabaseConfig configures the sqlite audit store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures console rendering.
type LogConfig struct {
	Theme     string `mapstructure:"theme"`
	Verbosity int    `mapstructure:"verbosity"`
}

// PacksConfig locates allow-list packs.
type PacksConfig struct {
	Dir     string   `mapstructure:"dir"`
	Enabled []string `mapstructure:"enabled"` // empty = every discovered pack
}

// Validate checks that the policy is internally consistent.
func (p *Policy) Validate() error {
	if p.Scrub.TriggerAllowance < 0 {
		return errors.NewConfigurationError("scrub.trigger_allowance must be >= 0, got %d", p.Scrub.TriggerAllowance)
	}
	if p.Scrub.MaxLines < 0 {
		return errors.NewConfigurationError("scrub.max_lines must be >= 0, got %d", p.Scrub.MaxLines)
	}
	if p.Scrub.MaxBytes < 0 {
		return errors.NewConfigurationError("scrub.max_bytes must be >= 0, got %d", p.Scrub.MaxBytes)
	}
	if p.Intake.DefaultMax < 0 {
		return errors.NewConfigurationError("intake.default_max must be >= 0, got %d", p.Intake.DefaultMax)
	}
	if p.Dispatch.RequestsPerSecond < 0 {
		return errors.NewConfigurationError("dispatch.requests_per_second must be >= 0, got %f", p.Dispatch.RequestsPerSecond)
	}
	if p.Dispatch.Burst < 0 {
		return errors.NewConfigurationError("dispatch.burst must be >= 0, got %d", p.Dispatch.Burst)
	}
	if p.Repository != "" && !strings.Contains(p.Repository, "/") {
		return errors.NewConfigurationError("repository must be owner/repo, got %q", p.Repository)
	}
	if p.GitHub.ServerURL != "" {
		u, err := url.Parse(p.GitHub.ServerURL)
		if err != nil || u.Host == "" {
			return errors.NewConfigurationError("github.server_url is not a valid URL: %q", p.GitHub.ServerURL)
		}
	}
	return nil
}

// EnforceMinVersion rejects the run when the build is older than the
// policy demands. An empty constraint always passes.
func (p *Policy) EnforceMinVersion() error {
	if p.MinVersion == "" {
		return nil
	}
	ok, err := version.Satisfies(">= " + p.MinVersion)
	if err != nil {
		return errors.Wrap(errors.ErrConfiguration, err.Error())
	}
	if !ok {
		return errors.NewConfigurationError("policy requires airlock >= %s, this build is %s", p.MinVersion, version.Version)
	}
	return nil
}

// Runtime is the immutable per-run snapshot: policy, safe-outputs block,
// merged allow-lists, and the resolved repository.
type Runtime struct {
	Policy      *Policy
	SafeOutputs *SafeOutputs // nil = every known type enabled with defaults
	Repo        string

	domains  []string
	repos    []string
	mentions []string
}

// NewRuntime merges the configuration layers into one snapshot. Merge
// order (first occurrence wins for dedupe): packs, policy lists, the
// safe-outputs block's allowed-domains, the GHES host. A "current" entry
// in any repo list expands to the resolved repository.
func NewRuntime(p *Policy, so *SafeOutputs, packs []Pack, repo string) *Runtime {
	rt := &Runtime{Policy: p, SafeOutputs: so, Repo: repo}

	for _, pack := range packs {
		rt.domains = appendUnique(rt.domains, pack.Domains...)
		rt.repos = appendUnique(rt.repos, rt.expandCurrent(pack.Repos)...)
		rt.mentions = appendUnique(rt.mentions, pack.Mentions...)
	}
	rt.domains = appendUnique(rt.domains, p.Scrub.AllowedDomains...)
	rt.repos = appendUnique(rt.repos, rt.expandCurrent(p.Scrub.AllowedRepos)...)
	rt.mentions = appendUnique(rt.mentions, p.Scrub.AllowedMentions...)
	if so != nil {
		rt.domains = appendUnique(rt.domains, so.AllowedDomains...)
	}
	if host := serverHost(p.GitHub.ServerURL); host != "" {
		rt.domains = appendUnique(rt.domains, host)
	}
	return rt
}

// ScrubOptions binds the snapshot to the sanitizer.
func (rt *Runtime) ScrubOptions() scrub.Options {
	return scrub.Options{
		CommandName:      rt.Policy.Command,
		AllowedMentions:  rt.mentions,
		AllowedDomains:   rt.domains,
		AllowedRepos:     rt.repos,
		CurrentRepo:      rt.Repo,
		TriggerAllowance: rt.Policy.Scrub.TriggerAllowance,
		MaxLines:         rt.Policy.Scrub.MaxLines,
		MaxBytes:         rt.Policy.Scrub.MaxBytes,
	}
}

// AllowedDomains returns the merged host allow-list.
func (rt *Runtime) AllowedDomains() []string { return rt.domains }

// AllowedRepos returns the merged repository allow-list.
func (rt *Runtime) AllowedRepos() []string { return rt.repos }

// AllowedMentions returns the merged mention allow-list.
func (rt *Runtime) AllowedMentions() []string { return rt.mentions }

// Enabled reports whether a run may emit the given action type.
func (rt *Runtime) Enabled(actionType string) bool {
	return rt.SafeOutputs.Enabled(actionType)
}

// Limits returns the cardinality bounds for a type, substituting the
// policy-wide default when the rule declares no max.
func (rt *Runtime) Limits(actionType string) (min, max int) {
	return rt.SafeOutputs.Limits(actionType, rt.Policy.Intake.DefaultMax)
}

func (rt *Runtime) expandCurrent(repos []string) []string {
	if rt.Repo == "" {
		return repos
	}
	out := make([]string, 0, len(repos))
	for _, r := range repos {
		if strings.EqualFold(strings.TrimSpace(r), "current") {
			out = append(out, rt.Repo)
			continue
		}
		out = append(out, r)
	}
	return out
}

func serverHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, have := range dst {
			if strings.EqualFold(have, v) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
