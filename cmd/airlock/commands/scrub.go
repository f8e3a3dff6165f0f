package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/airlock/display"
	"github.com/teranos/airlock/scrub"
)

// ScrubCmd represents the scrub command
var ScrubCmd = &cobra.Command{
	Use:   "scrub [file]",
	Short: "Run text through the content sanitizer",
	Long: `Sanitize one document with the same pipeline process applies to every
free-text field: neutralized mentions and commands, redacted URIs and
hosts, stripped control characters and HTML comments, repaired fences.

Reads the file argument, or stdin when no argument is given. The
sanitized text goes to stdout so the command composes in shell
pipelines; diagnostics go to stderr.

Examples:
  airlock scrub comment.md
  cat body.txt | airlock scrub
  airlock scrub comment.md --json     # Include the redaction log`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		policyPath, _ := cmd.Flags().GetString("policy")
		safeOutputs, _ := cmd.Flags().GetString("safe-outputs")

		return runScrub(cmd, path, policyPath, safeOutputs)
	},
}

func init() {
	ScrubCmd.Flags().String("policy", "", "Policy file to use instead of the merged chain")
	ScrubCmd.Flags().String("safe-outputs", "", "Safe-outputs YAML contributing allowed domains")
	ScrubCmd.Flags().Bool("json", false, "Output sanitized text and redaction log as JSON")
}

// scrubResult pairs the sanitized text with its audit trail.
type scrubResult struct {
	Sanitized  string            `json:"sanitized"`
	Redactions []scrub.Redaction `json:"redactions,omitempty"`
}

func runScrub(cmd *cobra.Command, path, policyPath, safeOutputs string) error {
	rt, err := loadRuntime(policyPath, safeOutputs, "")
	if err != nil {
		return err
	}

	raw, err := readInput(path)
	if err != nil {
		return err
	}

	scr := scrub.New(rt.ScrubOptions())
	sanitized := scr.Text(raw)

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(scrubResult{
			Sanitized:  sanitized,
			Redactions: scr.Redactions(),
		})
	}

	// Bare text on stdout; this command is a pipeline filter
	fmt.Println(sanitized)

	for _, r := range scr.Redactions() {
		fmt.Fprintf(cmd.ErrOrStderr(), "redacted %s: %s\n", r.Kind, r.Value)
	}
	return nil
}
