package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/airlock/db"
	"github.com/teranos/airlock/display"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/internal/runid"
	"github.com/teranos/airlock/logger"
	"github.com/teranos/airlock/policy"
	"github.com/teranos/airlock/scrub"
)

// RunsCmd represents the runs command
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Long: `List recent runs from the audit store, newest first.

Every process invocation records one run: summary counts, the redaction
log, the resolved-id map, and preserved diagnostics. Use 'runs show' for
one run's full detail.

Examples:
  airlock runs                  # Recent runs
  airlock runs --limit 50       # More history
  airlock runs show RN7gK...    # One run's audit detail`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runRunsList(cmd, limit)
	},
}

// RunsShowCmd shows one run's audit detail
var RunsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run's audit detail",
	Long: `Display everything recorded for one run: summary counts, the
redaction log, the resolved temporary-id map, and every preserved
intake and dispatch diagnostic.

Example:
  airlock runs show RN7gKQ2mVtXcR3dFhJ9wLp`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRunsShow(cmd, args[0])
	},
}

func init() {
	RunsCmd.Flags().Int("limit", 20, "Maximum number of runs to display")
	RunsCmd.Flags().Bool("json", false, "Output results in JSON format")
	RunsShowCmd.Flags().Bool("json", false, "Output results in JSON format")

	RunsCmd.AddCommand(RunsShowCmd)
}

// openStore opens the audit store at the policy's database path.
func openStore() (*db.Store, func(), error) {
	p, err := policy.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load policy")
	}

	database, err := db.OpenWithMigrations(p.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open audit store")
	}
	return db.NewStore(database), func() { database.Close() }, nil
}

func runRunsList(cmd *cobra.Command, limit int) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	// Print table header
	fmt.Printf("%-26s %-22s %6s %4s %5s %5s %6s %s\n",
		"RUN ID", "REPO", "ITEMS", "OK", "FAIL", "SKIP", "UNRES", "STARTED")
	fmt.Printf("%-26s %-22s %6s %4s %5s %5s %6s %s\n",
		"------", "----", "-----", "--", "----", "----", "-----", "-------")

	for _, run := range runs {
		fmt.Printf("%-26s %-22s %6d %4d %5d %5d %6d %s\n",
			truncate(run.ID, 26),
			truncate(run.Repo, 22),
			run.Items,
			run.Succeeded,
			run.Failed,
			run.Skipped,
			run.Unresolved,
			run.StartedAt.Format("2006-01-02 15:04"))
	}

	fmt.Printf("\nTotal: %d run(s)\n", len(runs))
	return nil
}

// runDetail is the full audit record of one run.
type runDetail struct {
	Run         *db.RunRecord     `json:"run"`
	Redactions  []scrub.Redaction `json:"redactions,omitempty"`
	ResolvedIDs []db.ResolvedID   `json:"resolved_ids,omitempty"`
	Diagnostics []db.Diagnostic   `json:"diagnostics,omitempty"`
}

func runRunsShow(cmd *cobra.Command, id string) error {
	if !runid.Valid(id) {
		return errors.Newf("%q is not a run id", id)
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	redactions, err := store.RunRedactions(id)
	if err != nil {
		return err
	}
	resolved, err := store.RunResolvedIDs(id)
	if err != nil {
		return err
	}
	diags, err := store.RunDiagnostics(id)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(runDetail{
			Run:         run,
			Redactions:  redactions,
			ResolvedIDs: resolved,
			Diagnostics: diags,
		})
	}

	// Print run details
	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("  Repository: %s\n", run.Repo)
	fmt.Printf("  Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("\n")

	fmt.Printf("Items: %d (intake diagnostics: %d)\n", run.Items, run.IntakeErrors)
	fmt.Printf("  Succeeded: %d, Failed: %d, Skipped: %d, Unresolved: %d\n",
		run.Succeeded, run.Failed, run.Skipped, run.Unresolved)
	if run.SyntheticUpdates > 0 {
		fmt.Printf("  Synthetic updates: %d\n", run.SyntheticUpdates)
	}
	if run.MemoryMB > 0 {
		fmt.Printf("  Memory: %.1f MB\n", run.MemoryMB)
	}

	if len(resolved) > 0 {
		fmt.Printf("\nResolved ids:\n")
		for _, r := range resolved {
			fmt.Printf("  %-20s -> %s\n", r.TempID, r.Entry.Ref(run.Repo))
		}
	}

	if len(redactions) > 0 {
		fmt.Printf("\nRedactions:\n")
		for _, r := range redactions {
			fmt.Printf("  %-8s %s\n", r.Kind, r.Value)
		}
	}

	if len(diags) > 0 {
		fmt.Printf("\nDiagnostics:\n")
		for _, d := range diags {
			fmt.Printf("  [%s] %s\n", d.Source, d.Message)
		}
	}

	return nil
}
