package display

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ShouldOutputJSON determines if a command should output JSON based on
// flags and the execution environment.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	// No command context (e.g. result rendering outside cobra)
	if cmd == nil {
		return IsRunnerEnvironment()
	}

	// Explicit --json on the command wins either way
	if cmd.Flags().Changed("json") {
		if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
			return true
		}
		return false
	}

	// Global --json flag
	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}

	// On a runner, default to JSON so workflow steps can parse output
	return IsRunnerEnvironment()
}

// OutputJSON marshals and prints JSON using display.MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
