package policy

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/logger"
)

// Pack is a TOML bundle of allow-list entries. Packs let an organization
// ship one vetted set of hosts, repositories, and mention handles across
// many workflows instead of repeating them per policy file.
type Pack struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Domains     []string `toml:"domains"`
	Repos       []string `toml:"repos"`
	Mentions    []string `toml:"mentions"`
}

//go:embed packs/default.toml
var defaultPackTOML []byte

// DefaultPack returns the built-in pack of platform-served hosts.
func DefaultPack() (Pack, error) {
	var p Pack
	if err := toml.Unmarshal(defaultPackTOML, &p); err != nil {
		return Pack{}, errors.Wrap(err, "built-in default pack is malformed")
	}
	return p, nil
}

// LoadPack reads a single pack file.
func LoadPack(path string) (Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, errors.Wrapf(err, "failed to read pack %s", path)
	}

	var p Pack
	if err := toml.Unmarshal(data, &p); err != nil {
		return Pack{}, errors.Wrapf(errors.ErrConfiguration, "failed to parse pack %s: %v", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), ".toml")
	}
	return p, nil
}

// DiscoverPacks scans a directory for *.toml pack files. Unreadable or
// malformed packs are skipped with a warning; discovery never fails the
// run.
func DiscoverPacks(dir string) []Pack {
	var packs []Pack

	entries, err := os.ReadDir(dir)
	if err != nil {
		return packs
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		pack, err := LoadPack(path)
		if err != nil {
			logger.Warnw("Skipping unreadable pack",
				logger.FieldPath, path,
				logger.FieldError, err)
			continue
		}
		packs = append(packs, pack)
	}

	return packs
}

// LoadPacks assembles the run's pack set: the built-in default pack
// first, then discovered packs filtered by the enabled list (empty list
// means every discovered pack).
func LoadPacks(cfg PacksConfig) ([]Pack, error) {
	def, err := DefaultPack()
	if err != nil {
		return nil, err
	}
	packs := []Pack{def}

	if cfg.Dir == "" {
		return packs, nil
	}

	for _, pack := range DiscoverPacks(cfg.Dir) {
		if !packEnabled(pack.Name, cfg.Enabled) {
			logger.Debugw("Skipping disabled pack", logger.FieldComponent, "policy", "pack", pack.Name)
			continue
		}
		packs = append(packs, pack)
	}
	return packs, nil
}

func packEnabled(name string, enabled []string) bool {
	if len(enabled) == 0 {
		return true
	}
	for _, e := range enabled {
		if strings.EqualFold(e, name) {
			return true
		}
	}
	return false
}
