package policy

import "github.com/spf13/viper"

// Truncation defaults match the platform's rendering ceilings.
const (
	DefaultMaxLines = 65000
	DefaultMaxBytes = 524288
)

// SetDefaults configures default values for every policy option.
func SetDefaults(v *viper.Viper) {
	// Scrub defaults
	v.SetDefault("scrub.trigger_allowance", 1)
	v.SetDefault("scrub.max_lines", DefaultMaxLines)
	v.SetDefault("scrub.max_bytes", DefaultMaxBytes)
	v.SetDefault("scrub.allowed_repos", []string{"current"})

	// Intake defaults
	v.SetDefault("intake.default_max", 1)

	// Dispatch pacing: one platform call per second, small burst to
	// absorb the retry pass.
	v.SetDefault("dispatch.requests_per_second", 1.0)
	v.SetDefault("dispatch.burst", 2)

	// Database defaults
	v.SetDefault("database.path", "airlock.db")

	// Log defaults
	v.SetDefault("log.theme", "everforest")
	v.SetDefault("log.verbosity", 0)

	// Packs defaults
	v.SetDefault("packs.dir", "")
	v.SetDefault("packs.enabled", []string{})
}

// BindSensitiveEnvVars explicitly binds credentials and runner-provided
// values to environment variables.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("github.token", "AIRLOCK_GITHUB_TOKEN", "GITHUB_TOKEN")
	v.BindEnv("github.elevated_token", "AIRLOCK_GITHUB_ELEVATED_TOKEN")
	v.BindEnv("github.server_url", "AIRLOCK_GITHUB_SERVER_URL", "GITHUB_SERVER_URL")
	v.BindEnv("database.path", "AIRLOCK_DATABASE_PATH")
	v.BindEnv("repository", "AIRLOCK_REPOSITORY")
}
