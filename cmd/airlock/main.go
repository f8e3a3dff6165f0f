package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/airlock/cmd/airlock/commands"
	"github.com/teranos/airlock/logger"
)

var rootCmd = &cobra.Command{
	Use:   "airlock",
	Short: "Airlock - trust boundary for agent-emitted actions",
	Long: `Airlock - trust boundary between AI agents and collaboration platforms.

Agents emit newline-delimited JSON action records; airlock sanitizes the
free text in them, validates each record against the run's policy, and
dispatches the accepted ones to the platform through the gh CLI. Nothing
an agent writes reaches the platform without passing through all three
stages.

Available commands:
  process - Scrub, validate, and dispatch an agent output file
  lint    - Validate an agent output file without dispatching
  scrub   - Run text through the content sanitizer
  runs    - Inspect the run audit history
  policy  - Inspect the effective policy
  version - Show build information

Examples:
  airlock process agent-output.jsonl        # Full pipeline run
  airlock process out.jsonl --dry-run       # Preview without platform calls
  airlock lint out.jsonl --watch            # Re-validate as the agent writes
  airlock scrub comment.md                  # Sanitize a single document
  airlock runs                              # List recent runs
  airlock runs show RN7gK...                # One run's audit detail`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version prints build info only; keep its output bare
		if cmd.Name() == "version" {
			return nil
		}
		if err := logger.InitializeForRunner(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results in JSON format")

	// Add commands
	rootCmd.AddCommand(commands.ProcessCmd)
	rootCmd.AddCommand(commands.LintCmd)
	rootCmd.AddCommand(commands.ScrubCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.PolicyCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
