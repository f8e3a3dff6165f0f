package commands

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/airlock/display"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/policy"
)

// PolicyCmd represents the policy command
var PolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the effective policy",
	Long: `Show the merged policy the pipeline would run under.

Policy sources (later overrides earlier):
  1. Built-in defaults
  2. /etc/airlock/airlock.toml
  3. ~/.airlock/airlock.toml
  4. ./airlock.toml (searched upward from the working directory)
  5. AIRLOCK_* environment variables

Examples:
  airlock policy show                     # Effective policy as TOML
  airlock policy show --json              # Same, as JSON
  airlock policy get database.path        # One value by dotted key
  airlock policy snapshot effective.toml  # Persist for a workflow artifact`,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective merged policy",
	Long: `Display every policy setting after the full merge: defaults, policy
files, and environment overrides. Token values are masked so the output
can be pasted into an issue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPolicyShow(cmd)
	},
}

var policyGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get one policy value",
	Long:  `Get a single policy value using dot notation (e.g., database.path, dispatch.burst).`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPolicyGet(args[0])
	},
}

var policySnapshotCmd = &cobra.Command{
	Use:   "snapshot <path>",
	Short: "Write the effective policy to a TOML file",
	Long: `Persist the fully merged policy so a workflow can archive exactly what
a run was configured with. An existing file at the path is rotated into
.back1/.back2/.back3 before the write.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPolicySnapshot(args[0])
	},
}

func init() {
	policyShowCmd.Flags().Bool("json", false, "Output the policy as JSON")

	PolicyCmd.AddCommand(policyShowCmd)
	PolicyCmd.AddCommand(policyGetCmd)
	PolicyCmd.AddCommand(policySnapshotCmd)
}

func runPolicyShow(cmd *cobra.Command) error {
	// Load validates; a broken policy chain fails here, not mid-display
	if _, err := policy.Load(); err != nil {
		return err
	}

	settings := maskTokens(policy.GetViper().AllSettings())

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(settings)
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to marshal policy")
	}
	fmt.Printf("# airlock effective policy\n%s", data)
	return nil
}

func runPolicyGet(key string) error {
	if _, err := policy.Load(); err != nil {
		return err
	}

	v := policy.GetViper()
	if !v.IsSet(key) {
		return errors.Newf("policy key %q not found", key)
	}
	fmt.Println(v.Get(key))
	return nil
}

func runPolicySnapshot(path string) error {
	if _, err := policy.Load(); err != nil {
		return err
	}
	if err := policy.Snapshot(path); err != nil {
		return err
	}
	pterm.Success.Printf("Effective policy written to %s", path)
	return nil
}

// maskTokens blanks credential values in the settings map. AllSettings
// returns a fresh map, so masking in place never touches the live
// configuration.
func maskTokens(settings map[string]any) map[string]any {
	gh, ok := settings["github"].(map[string]any)
	if !ok {
		return settings
	}
	for _, key := range []string{"token", "elevated_token"} {
		if s, ok := gh[key].(string); ok && s != "" {
			gh[key] = "(redacted)"
		}
	}
	return settings
}
