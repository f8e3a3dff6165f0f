package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPack(t *testing.T) {
	pack, err := DefaultPack()
	require.NoError(t, err)

	assert.Equal(t, "default", pack.Name)
	assert.NotEmpty(t, pack.Description)
	assert.Contains(t, pack.Domains, "github.com")
	assert.Contains(t, pack.Domains, "githubusercontent.com")
	assert.Empty(t, pack.Repos)
	assert.Empty(t, pack.Mentions)
}

func TestLoadPack(t *testing.T) {
	t.Run("named pack", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vendor.toml")
		content := `
name = "acme-vendors"
description = "Approved vendor hosts"
domains = ["vendor.example", "cdn.vendor.example"]
repos = ["acme/tools"]
mentions = ["ops-bot"]
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		pack, err := LoadPack(path)
		require.NoError(t, err)
		assert.Equal(t, "acme-vendors", pack.Name)
		assert.Equal(t, []string{"vendor.example", "cdn.vendor.example"}, pack.Domains)
		assert.Equal(t, []string{"acme/tools"}, pack.Repos)
		assert.Equal(t, []string{"ops-bot"}, pack.Mentions)
	})

	t.Run("name falls back to filename", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "partners.toml")
		require.NoError(t, os.WriteFile(path, []byte(`domains = ["partner.example"]`), 0o644))

		pack, err := LoadPack(path)
		require.NoError(t, err)
		assert.Equal(t, "partners", pack.Name)
	})

	t.Run("malformed toml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.toml")
		require.NoError(t, os.WriteFile(path, []byte(`domains = [unclosed`), 0o644))

		_, err := LoadPack(path)
		assert.Error(t, err)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := LoadPack(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}

func TestDiscoverPacks(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.toml"), []byte(`domains = ["alpha.example"]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "beta.toml"), []byte(`name = "beta"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.toml"), []byte(`domains = [`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a pack"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested.toml"), 0o755))

	packs := DiscoverPacks(dir)

	require.Len(t, packs, 2)
	assert.Equal(t, "alpha", packs[0].Name)
	assert.Equal(t, "beta", packs[1].Name)
}

func TestDiscoverPacksMissingDir(t *testing.T) {
	packs := DiscoverPacks(filepath.Join(t.TempDir(), "nowhere"))
	assert.Empty(t, packs)
}

func TestLoadPacks(t *testing.T) {
	t.Run("no dir yields default only", func(t *testing.T) {
		packs, err := LoadPacks(PacksConfig{})
		require.NoError(t, err)
		require.Len(t, packs, 1)
		assert.Equal(t, "default", packs[0].Name)
	})

	t.Run("discovered packs follow the default", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor.toml"), []byte(`domains = ["vendor.example"]`), 0o644))

		packs, err := LoadPacks(PacksConfig{Dir: dir})
		require.NoError(t, err)
		require.Len(t, packs, 2)
		assert.Equal(t, "default", packs[0].Name)
		assert.Equal(t, "vendor", packs[1].Name)
	})

	t.Run("enabled list filters discovery", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor.toml"), []byte(``), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "partners.toml"), []byte(``), 0o644))

		packs, err := LoadPacks(PacksConfig{Dir: dir, Enabled: []string{"Partners"}})
		require.NoError(t, err)
		require.Len(t, packs, 2)
		assert.Equal(t, "default", packs[0].Name)
		assert.Equal(t, "partners", packs[1].Name)
	})
}

func TestPackEnabled(t *testing.T) {
	assert.True(t, packEnabled("vendor", nil))
	assert.True(t, packEnabled("vendor", []string{"VENDOR"}))
	assert.True(t, packEnabled("vendor", []string{"other", "vendor"}))
	assert.False(t, packEnabled("vendor", []string{"other"}))
}
