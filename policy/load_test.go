package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/airlock/errors"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"scrub.trigger_allowance", 1},
		{"scrub.max_lines", DefaultMaxLines},
		{"scrub.max_bytes", DefaultMaxBytes},
		{"scrub.allowed_repos", []string{"current"}},
		{"intake.default_max", 1},
		{"dispatch.requests_per_second", 1.0},
		{"dispatch.burst", 2},
		{"database.path", "airlock.db"},
		{"log.theme", "everforest"},
		{"log.verbosity", 0},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, v.Get(tt.key))
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airlock.toml")
	content := `
min_version = "0.1.0"
repository = "acme/app"
command = "triage"

[scrub]
allowed_domains = ["example.com"]
trigger_allowance = 2

[dispatch]
requests_per_second = 0.5
burst = 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0.1.0", p.MinVersion)
	assert.Equal(t, "acme/app", p.Repository)
	assert.Equal(t, "triage", p.Command)
	assert.Equal(t, []string{"example.com"}, p.Scrub.AllowedDomains)
	assert.Equal(t, 2, p.Scrub.TriggerAllowance)
	assert.Equal(t, 0.5, p.Dispatch.RequestsPerSecond)
	assert.Equal(t, 1, p.Dispatch.Burst)

	// Defaults fill everything the file does not set.
	assert.Equal(t, DefaultMaxLines, p.Scrub.MaxLines)
	assert.Equal(t, DefaultMaxBytes, p.Scrub.MaxBytes)
	assert.Equal(t, []string{"current"}, p.Scrub.AllowedRepos)
	assert.Equal(t, 1, p.Intake.DefaultMax)
	assert.Equal(t, "airlock.db", p.Database.Path)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestLoadFromFileInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airlock.toml")
	content := `
[scrub]
trigger_allowance = -1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestFindProjectPolicy(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("walks up to airlock.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "proj", "cmd", "deep")
		require.NoError(t, os.MkdirAll(subDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "proj", "airlock.toml"), []byte(""), 0o644))

		oldWd, err := os.Getwd()
		require.NoError(t, err)
		defer os.Chdir(oldWd)
		require.NoError(t, os.Chdir(subDir))

		result := findProjectPolicy()
		require.NotEmpty(t, result)
		assert.Equal(t, "airlock.toml", filepath.Base(result))
	})

	t.Run("empty when absent", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "bare")
		require.NoError(t, os.MkdirAll(subDir, 0o755))

		oldWd, err := os.Getwd()
		require.NoError(t, err)
		defer os.Chdir(oldWd)
		require.NoError(t, os.Chdir(subDir))

		assert.Empty(t, findProjectPolicy())
	})
}
