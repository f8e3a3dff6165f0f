package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/airlock/db"
	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/display"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/github"
	"github.com/teranos/airlock/intake"
	"github.com/teranos/airlock/internal/runid"
	"github.com/teranos/airlock/logger"
	"github.com/teranos/airlock/policy"
	"github.com/teranos/airlock/scrub"
)

// ProcessCmd represents the process command
var ProcessCmd = &cobra.Command{
	Use:   "process <agent-output.jsonl>",
	Short: "Scrub, validate, and dispatch agent output",
	Long: `Run an agent output file through the full trust boundary.

Each line of the file is one JSON action record. The pipeline sanitizes
every free-text field, validates each record against the run's policy
and safe-outputs declaration, then dispatches the accepted records to
the platform through the gh CLI, in file order, resolving temporary-id
references between them as items are created.

The run is recorded in the audit store: summary counts, the redaction
log, the resolved-id map, and every preserved diagnostic. Per-message
handler failures never abort the run; they are reported and counted.

Use "-" as the file to read from stdin.

Examples:
  airlock process agent-output.jsonl
  airlock process out.jsonl --safe-outputs safe-outputs.yml
  airlock process out.jsonl --dry-run                # No platform calls
  airlock process out.jsonl --item 3                 # Dispatch one record
  airlock process out.jsonl --ids-in prior-ids.json  # Carry ids forward
  airlock process out.jsonl --report report.json --ids-out ids.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := processOptions{path: args[0]}
		opts.policyPath, _ = cmd.Flags().GetString("policy")
		opts.safeOutputs, _ = cmd.Flags().GetString("safe-outputs")
		opts.repo, _ = cmd.Flags().GetString("repo")
		opts.triggering, _ = cmd.Flags().GetInt("triggering")
		opts.idsIn, _ = cmd.Flags().GetString("ids-in")
		opts.idsOut, _ = cmd.Flags().GetString("ids-out")
		opts.reportPath, _ = cmd.Flags().GetString("report")
		opts.item, _ = cmd.Flags().GetInt("item")
		opts.dryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.verbosity, _ = cmd.Flags().GetCount("verbose")

		return runProcess(cmd, opts)
	},
}

func init() {
	ProcessCmd.Flags().String("policy", "", "Policy file to use instead of the merged chain")
	ProcessCmd.Flags().String("safe-outputs", "", "Safe-outputs YAML declaring the enabled action types")
	ProcessCmd.Flags().String("repo", "", "Repository slug (owner/repo), overriding detection")
	ProcessCmd.Flags().Int("triggering", 0, "Issue or PR number that triggered the run")
	ProcessCmd.Flags().String("ids-in", "", "JSON file seeding the resolved-id map from an earlier run")
	ProcessCmd.Flags().String("ids-out", "", "Write the run's resolved-id map to this JSON file")
	ProcessCmd.Flags().String("report", "", "Write the full run report to this JSON file")
	ProcessCmd.Flags().Int("item", 0, "Dispatch only the Nth accepted record (1-based)")
	ProcessCmd.Flags().Bool("dry-run", false, "Scrub and validate only; no platform calls, no audit row")
	ProcessCmd.Flags().Bool("json", false, "Output results in JSON format")
}

type processOptions struct {
	path        string
	policyPath  string
	safeOutputs string
	repo        string
	triggering  int
	idsIn       string
	idsOut      string
	reportPath  string
	item        int
	dryRun      bool
	verbosity   int
}

// processResult is the machine-readable outcome of one process run.
type processResult struct {
	RunID        string           `json:"run_id"`
	Repo         string           `json:"repo,omitempty"`
	Accepted     int              `json:"accepted"`
	Counts       dispatch.Counts  `json:"counts"`
	IntakeErrors []string         `json:"intake_errors,omitempty"`
	Redactions   int              `json:"redactions"`
	DurationMS   int64            `json:"duration_ms"`
	Report       *dispatch.Report `json:"report,omitempty"`
}

// dryRunResult is the machine-readable outcome of a --dry-run pass.
type dryRunResult struct {
	Repo         string            `json:"repo,omitempty"`
	Accepted     []acceptedMessage `json:"accepted"`
	IntakeErrors []string          `json:"intake_errors,omitempty"`
	Redactions   []scrub.Redaction `json:"redactions,omitempty"`
}

type acceptedMessage struct {
	Index int    `json:"index"`
	Line  int    `json:"line"`
	Type  string `json:"type"`
}

// runProcess handles the full scrub, intake, dispatch pipeline
func runProcess(cmd *cobra.Command, opts processOptions) error {
	useJSON := display.ShouldOutputJSON(cmd)

	if !useJSON {
		pterm.DefaultHeader.WithFullWidth().Printf("Airlock - Agent Output Processing")
		pterm.Println()

		if opts.dryRun {
			pterm.Warning.Println("DRY RUN MODE: No platform calls will be made")
			pterm.Println()
		}
	}

	rt, err := loadRuntime(opts.policyPath, opts.safeOutputs, opts.repo)
	if err != nil {
		return err
	}
	if !opts.dryRun && rt.Repo == "" {
		return errors.NewConfigurationError("no repository: set --repo, policy repository, or GITHUB_REPOSITORY")
	}

	if !useJSON {
		pterm.Info.Printf("Processing: %s", opts.path)
		if rt.Repo != "" {
			pterm.Info.Printf("Repository: %s", rt.Repo)
		}
		if logger.ShouldOutput(opts.verbosity, logger.OutputPolicy) {
			pterm.Info.Printf("Allowed domains: %d, repos: %d, mentions: %d",
				len(rt.AllowedDomains()), len(rt.AllowedRepos()), len(rt.AllowedMentions()))
		}
		pterm.Println()
	}

	raw, err := readInput(opts.path)
	if err != nil {
		return err
	}

	// Scrub and intake share one run-scoped sanitizer; its redaction log
	// goes to the audit store with the rest of the run.
	scr := scrub.New(rt.ScrubOptions())
	batch := intake.Parse(raw, intake.NewRegistry(rt), scr)

	items := batch.Items
	if opts.item > 0 {
		if opts.item > len(items) {
			return errors.Newf("--item %d out of range: %d record(s) accepted", opts.item, len(items))
		}
		items = items[opts.item-1 : opts.item]
	}

	if opts.dryRun {
		return renderDryRun(cmd, batch, items, scr, rt.Repo, opts.verbosity)
	}

	engine, err := buildEngine(rt, opts)
	if err != nil {
		return err
	}

	var spinner *pterm.SpinnerPrinter
	if !useJSON {
		spinner, _ = pterm.DefaultSpinner.Start(fmt.Sprintf("Dispatching %d validated record(s)...", len(items)))
	}

	startTime := time.Now()
	report, runErr := engine.Run(cmd.Context(), items)
	if !useJSON && spinner != nil {
		spinner.Stop()
	}

	// A fatal dispatch error still produced a partial report; persist it
	// so the audit trail shows what ran before the failure.
	if report != nil {
		if err := persistRun(rt.Policy.Database.Path, report, batch.Errors, scr.Redactions()); err != nil {
			return err
		}
		if opts.idsOut != "" {
			if err := writeResolvedIDs(opts.idsOut, report.Resolved); err != nil {
				return err
			}
		}
		if opts.reportPath != "" {
			if err := writeReportFile(opts.reportPath, report); err != nil {
				return err
			}
		}
	}
	if runErr != nil {
		if !useJSON {
			pterm.Error.Printf("Dispatch aborted: %v", runErr)
		}
		return runErr
	}

	result := processResult{
		RunID:        report.RunID,
		Repo:         report.Repo,
		Accepted:     len(items),
		Counts:       report.Counts(),
		IntakeErrors: batch.Errors,
		Redactions:   len(scr.Redactions()),
		DurationMS:   time.Since(startTime).Milliseconds(),
		Report:       report,
	}

	if useJSON {
		return display.OutputJSON(result)
	}

	renderReport(report, batch.Errors, scr.Redactions(), opts.verbosity)
	return nil
}

// buildEngine wires the gh clients, the handler registry, and the
// dispatch engine for one run.
func buildEngine(rt *policy.Runtime, opts processOptions) (*dispatch.Engine, error) {
	gh := rt.Policy.GitHub

	workflow, err := github.NewClient(github.ClientConfig{
		Repo:      rt.Repo,
		Token:     gh.Token,
		ServerURL: gh.ServerURL,
		ExtraArgs: gh.ExtraArgs,
	})
	if err != nil {
		return nil, err
	}

	var elevated *github.Client
	if gh.ElevatedToken != "" {
		elevated, err = github.NewClient(github.ClientConfig{
			Repo:      rt.Repo,
			Token:     gh.ElevatedToken,
			ServerURL: gh.ServerURL,
			ExtraArgs: gh.ExtraArgs,
		})
		if err != nil {
			return nil, err
		}
	}

	registry, err := github.Handlers(github.HandlerConfig{
		Runtime:          rt,
		Workflow:         workflow,
		Elevated:         elevated,
		TriggeringNumber: opts.triggering,
	})
	if err != nil {
		return nil, err
	}

	initialIDs, err := readInitialIDs(opts.idsIn)
	if err != nil {
		return nil, err
	}

	return dispatch.New(registry, dispatch.Config{
		RunID:             runid.New(),
		Repo:              rt.Repo,
		RequestsPerSecond: rt.Policy.Dispatch.RequestsPerSecond,
		Burst:             rt.Policy.Dispatch.Burst,
		External:          []string{"upload_asset"},
		InitialIDs:        initialIDs,
	}), nil
}

// persistRun writes the run to the audit store. Audit failure is fatal:
// a run that cannot be recorded must not look successful.
func persistRun(dbPath string, report *dispatch.Report, intakeErrors []string, redactions []scrub.Redaction) error {
	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open audit store")
	}
	defer database.Close()

	if err := db.NewStore(database).SaveRun(report, intakeErrors, redactions); err != nil {
		return errors.Wrap(err, "failed to record run")
	}

	logger.Infow("Run recorded",
		logger.FieldComponent, "cli",
		logger.FieldRunID, report.RunID,
		logger.FieldPath, dbPath,
	)
	return nil
}

// readInitialIDs loads a resolved-id map exported by an earlier run.
func readInitialIDs(path string) (map[string]dispatch.TempEntry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ids file %s", path)
	}
	ids := make(map[string]dispatch.TempEntry)
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, errors.Wrapf(err, "ids file %s is not a temp-id map", path)
	}
	return ids, nil
}

// writeResolvedIDs exports the run's resolved-id map for a downstream
// step to seed its own run with.
func writeResolvedIDs(path string, resolved map[string]dispatch.TempEntry) error {
	if resolved == nil {
		resolved = map[string]dispatch.TempEntry{}
	}
	data, err := json.MarshalIndent(resolved, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal resolved ids")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// writeReportFile writes the full run report as JSON.
func writeReportFile(path string, report *dispatch.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// renderDryRun prints what the run would dispatch, without dispatching.
func renderDryRun(cmd *cobra.Command, batch *intake.Batch, items []intake.Message, scr *scrub.Scrubber, repo string, verbosity int) error {
	accepted := make([]acceptedMessage, len(items))
	for i, m := range items {
		accepted[i] = acceptedMessage{Index: i + 1, Line: m.Line, Type: m.Type}
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(dryRunResult{
			Repo:         repo,
			Accepted:     accepted,
			IntakeErrors: batch.Errors,
			Redactions:   scr.Redactions(),
		})
	}

	if len(items) == 0 {
		pterm.Warning.Println("No records would dispatch")
	} else {
		pterm.Info.Printf("Records that would dispatch (%d):", len(items))
		for _, m := range accepted {
			pterm.Printf("  %2d. line %-4d %s", m.Index, m.Line, m.Type)
		}
	}
	pterm.Println()

	renderDiagnostics(batch.Errors)
	renderRedactions(scr.Redactions(), verbosity)

	pterm.Info.Println("Use 'airlock process' without --dry-run to dispatch")
	return nil
}

// renderReport prints the human-readable run outcome.
func renderReport(report *dispatch.Report, intakeErrors []string, redactions []scrub.Redaction, verbosity int) {
	counts := report.Counts()

	pterm.Println()
	if counts.Failed == 0 && counts.Unresolved == 0 {
		pterm.Success.Printf("Run %s complete", report.RunID)
	} else {
		pterm.Warning.Printf("Run %s complete with failures", report.RunID)
	}
	pterm.Println()

	pterm.Info.Printf("Results:")
	pterm.Printf("  Succeeded:  %d", counts.Success)
	pterm.Printf("  Failed:     %d", counts.Failed)
	pterm.Printf("  Skipped:    %d", counts.Skipped)
	pterm.Printf("  Unresolved: %d", counts.Unresolved)
	if len(report.Synthetic) > 0 {
		pterm.Printf("  Synthetic updates: %d", len(report.Synthetic))
	}
	pterm.Printf("  Duration:   %s", report.Duration().Round(time.Millisecond))
	pterm.Println()

	// Failures always surface; the full per-record listing is -v
	for _, res := range report.Results {
		if res.Status == dispatch.StatusFailed || res.Status == dispatch.StatusUnresolved {
			pterm.Error.Printf("line %d %s: %s", res.Line, res.Type, res.Error)
		} else if logger.ShouldOutput(verbosity, logger.OutputProgress) {
			detail := res.Detail
			if detail == "" {
				detail = string(res.Status)
			}
			pterm.Printf("  line %-4d %-28s %s", res.Line, res.Type, detail)
		}
	}

	renderDiagnostics(intakeErrors)
	for _, w := range report.Warnings {
		pterm.Warning.Printf("dispatch: %s", w)
	}
	renderRedactions(redactions, verbosity)

	if len(report.Resolved) > 0 && logger.ShouldOutput(verbosity, logger.OutputProgress) {
		pterm.Info.Printf("Resolved ids: %d", len(report.Resolved))
	}
}

func renderDiagnostics(diags []string) {
	for _, d := range diags {
		pterm.Warning.Printf("intake: %s", d)
	}
}

func renderRedactions(redactions []scrub.Redaction, verbosity int) {
	if len(redactions) == 0 {
		return
	}
	if !logger.ShouldOutput(verbosity, logger.OutputRedactions) {
		pterm.Info.Printf("Redactions: %d (use -vv to list)", len(redactions))
		return
	}
	pterm.Info.Printf("Redactions (%d):", len(redactions))
	for _, r := range redactions {
		pterm.Printf("  %-8s %s", r.Kind, r.Value)
	}
}
