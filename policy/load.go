package policy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/airlock/errors"
)

var (
	globalPolicy  *Policy
	viperInstance *viper.Viper
)

// Load reads the merged policy. The result is cached; one run sees one
// configuration.
func Load() (*Policy, error) {
	if globalPolicy != nil {
		return globalPolicy, nil
	}

	v := initViper()

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return nil, errors.Wrap(errors.ErrConfiguration, err.Error())
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	globalPolicy = &p
	return globalPolicy, nil
}

// GetViper returns the merged Viper instance for advanced access.
func GetViper() *viper.Viper {
	return initViper()
}

// LoadFromFile reads a single policy file, ignoring the merge chain and
// environment overrides. Used by lint and by tests.
func LoadFromFile(path string) (*Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(errors.ErrConfiguration, "failed to read policy file %s: %v", path, err)
	}

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return nil, errors.Wrap(errors.ErrConfiguration, err.Error())
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Reset clears the cached policy (used by tests).
func Reset() {
	globalPolicy = nil
	viperInstance = nil
}

// Default returns a Policy carrying only the built-in defaults, with no
// file or environment input. Used where no policy chain applies, such
// as linting a stream without a project policy.
func Default() *Policy {
	v := viper.New()
	SetDefaults(v)
	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		panic(err) // defaults always unmarshal
	}
	return &p
}

// initViper builds the merged configuration: defaults, then policy files
// system → user → project, then AIRLOCK_* environment variables on top.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("AIRLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)
	mergePolicyFiles(v)

	viperInstance = v
	return v
}

// findProjectPolicy walks up from the working directory looking for an
// airlock.toml.
func findProjectPolicy() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "airlock.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergePolicyFiles merges policy files lowest precedence first:
// system < user < project. Environment variables override all of them.
func mergePolicyFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	paths := []string{
		"/etc/airlock/airlock.toml",
		filepath.Join(homeDir, ".airlock", "airlock.toml"),
	}
	if project := findProjectPolicy(); project != "" {
		paths = append(paths, project)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		layer := viper.New()
		layer.SetConfigFile(path)
		layer.SetConfigType("toml")
		if err := layer.ReadInConfig(); err != nil {
			continue
		}
		for key, value := range layer.AllSettings() {
			v.Set(key, value)
		}
	}
}
