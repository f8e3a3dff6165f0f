package commands

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/airlock/display"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/intake"
	"github.com/teranos/airlock/logger"
	"github.com/teranos/airlock/policy"
	"github.com/teranos/airlock/scrub"
)

// LintCmd represents the lint command
var LintCmd = &cobra.Command{
	Use:   "lint <agent-output.jsonl>",
	Short: "Validate agent output without dispatching",
	Long: `Check an agent output file against the run's policy: line-by-line
JSON repair and decode, schema validation per action type, cardinality
limits. Nothing is dispatched and nothing is recorded.

With --watch the file is re-validated every time it changes, which suits
watching an agent that is still appending records.

Examples:
  airlock lint agent-output.jsonl
  airlock lint out.jsonl --safe-outputs safe-outputs.yml
  airlock lint out.jsonl --watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		policyPath, _ := cmd.Flags().GetString("policy")
		safeOutputs, _ := cmd.Flags().GetString("safe-outputs")
		watch, _ := cmd.Flags().GetBool("watch")

		return runLint(cmd, path, policyPath, safeOutputs, watch)
	},
}

func init() {
	LintCmd.Flags().String("policy", "", "Policy file to use instead of the merged chain")
	LintCmd.Flags().String("safe-outputs", "", "Safe-outputs YAML declaring the enabled action types")
	LintCmd.Flags().Bool("watch", false, "Re-validate whenever the file changes")
	LintCmd.Flags().Bool("json", false, "Output results in JSON format")
}

// lintResult is one validation pass over the file.
type lintResult struct {
	Path        string            `json:"path"`
	Accepted    int               `json:"accepted"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	Redactions  []scrub.Redaction `json:"redactions,omitempty"`
}

func runLint(cmd *cobra.Command, path, policyPath, safeOutputs string, watch bool) error {
	useJSON := display.ShouldOutputJSON(cmd)

	rt, err := loadRuntime(policyPath, safeOutputs, "")
	if err != nil {
		return err
	}

	if watch && path == "-" {
		return errors.NewConfigurationError("--watch needs a file, not stdin")
	}

	result, err := lintOnce(path, rt)
	if err != nil {
		return err
	}
	renderLint(result, useJSON)

	if !watch {
		if n := len(result.Diagnostics); n > 0 {
			return errors.Newf("lint found %d problem(s)", n)
		}
		return nil
	}

	return watchLint(cmd, path, rt, useJSON)
}

// lintOnce runs one scrub and validation pass. Each pass uses a fresh
// sanitizer so redaction counts describe this pass alone.
func lintOnce(path string, rt *policy.Runtime) (*lintResult, error) {
	raw, err := readInput(path)
	if err != nil {
		return nil, err
	}

	scr := scrub.New(rt.ScrubOptions())
	batch := intake.Parse(raw, intake.NewRegistry(rt), scr)

	return &lintResult{
		Path:        path,
		Accepted:    len(batch.Items),
		Diagnostics: batch.Errors,
		Redactions:  scr.Redactions(),
	}, nil
}

func renderLint(result *lintResult, useJSON bool) {
	if useJSON {
		display.OutputJSON(result)
		return
	}

	if len(result.Diagnostics) == 0 {
		pterm.Success.Printf("%s: %d record(s) accepted, no problems", result.Path, result.Accepted)
	} else {
		pterm.Warning.Printf("%s: %d record(s) accepted, %d problem(s)",
			result.Path, result.Accepted, len(result.Diagnostics))
		for _, d := range result.Diagnostics {
			pterm.Printf("  %s", d)
		}
	}
	if n := len(result.Redactions); n > 0 {
		pterm.Info.Printf("Redactions: %d", n)
	}
}

// watchLint re-validates the file on every write, debounced so an agent
// streaming records triggers one pass per quiet period rather than one
// per line.
func watchLint(cmd *cobra.Command, path string, rt *policy.Runtime, useJSON bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return errors.Wrapf(err, "failed to watch %s", path)
	}

	if !useJSON {
		pterm.Info.Printf("Watching %s (Ctrl-C to stop)", path)
	}

	const debouncePeriod = 500 * time.Millisecond
	var mu sync.Mutex
	var debounceTimer *time.Timer

	relint := func() {
		mu.Lock()
		defer mu.Unlock()

		result, err := lintOnce(path, rt)
		if err != nil {
			logger.Errorw("Lint pass failed", logger.FieldPath, path, logger.FieldError, err)
			return
		}
		if !useJSON {
			pterm.Printf("[%s]", time.Now().Format("15:04:05"))
		}
		renderLint(result, useJSON)
	}

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				mu.Lock()
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debouncePeriod, relint)
				mu.Unlock()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("Watcher error", logger.FieldError, err)
		}
	}
}
