package db

import (
	"database/sql"
	"sort"
	"time"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/scrub"
)

// RunRecord is one persisted run summary row.
type RunRecord struct {
	ID               string    `json:"id"`
	Repo             string    `json:"repo"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Items            int       `json:"items"`
	IntakeErrors     int       `json:"intake_errors"`
	Succeeded        int       `json:"succeeded"`
	Failed           int       `json:"failed"`
	Skipped          int       `json:"skipped"`
	Unresolved       int       `json:"unresolved"`
	SyntheticUpdates int       `json:"synthetic_updates"`
	MemoryMB         float64   `json:"memory_mb"`
}

// Diagnostic is one preserved line complaint, tagged with the stage
// that produced it ("intake" or "dispatch").
type Diagnostic struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// ResolvedID is one row of a run's persisted temporary-id map.
type ResolvedID struct {
	TempID string             `json:"temp_id"`
	Entry  dispatch.TempEntry `json:"entry"`
}

// Query constants
const (
	runInsertQuery = `
		INSERT INTO runs (
			id, repo, started_at, finished_at,
			items, intake_errors,
			succeeded, failed, skipped, unresolved,
			synthetic_updates, memory_mb
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	runSelectColumns = `id, repo, started_at, finished_at,
		items, intake_errors, succeeded, failed, skipped, unresolved,
		synthetic_updates, memory_mb`

	redactionInsertQuery = `
		INSERT INTO run_redactions (run_id, kind, value) VALUES (?, ?, ?)`

	resolvedIDInsertQuery = `
		INSERT INTO run_resolved_ids (run_id, temp_id, repo, number, url)
		VALUES (?, ?, ?, ?, ?)`

	diagnosticInsertQuery = `
		INSERT INTO run_diagnostics (run_id, source, message) VALUES (?, ?, ?)`
)

// Store persists run audit records.
type Store struct {
	db *sql.DB
}

// NewStore creates a run audit store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveRun writes the run summary and every detail row in one
// transaction: the redaction log, the resolved-id map, and the intake
// and dispatch diagnostics. A run is either fully recorded or absent.
func (s *Store) SaveRun(report *dispatch.Report, intakeErrors []string, redactions []scrub.Redaction) error {
	if report.RunID == "" {
		return errors.New("cannot persist a run without an id")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin run insert")
	}
	defer tx.Rollback()

	counts := report.Counts()
	_, err = tx.Exec(runInsertQuery,
		report.RunID,
		report.Repo,
		report.StartedAt,
		report.FinishedAt,
		len(report.Results),
		len(intakeErrors),
		counts.Success,
		counts.Failed,
		counts.Skipped,
		counts.Unresolved,
		len(report.Synthetic),
		report.MemoryMB,
	)
	if err != nil {
		return errors.Wrap(err, "insert run")
	}

	for _, r := range redactions {
		if _, err := tx.Exec(redactionInsertQuery, report.RunID, string(r.Kind), r.Value); err != nil {
			return errors.Wrap(err, "insert redaction")
		}
	}

	// Insert the map in sorted order so replayed runs produce identical
	// row sequences.
	ids := make([]string, 0, len(report.Resolved))
	for id := range report.Resolved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := report.Resolved[id]
		if _, err := tx.Exec(resolvedIDInsertQuery, report.RunID, id, entry.Repo, entry.Number, entry.URL); err != nil {
			return errors.Wrap(err, "insert resolved id")
		}
	}

	for _, msg := range intakeErrors {
		if _, err := tx.Exec(diagnosticInsertQuery, report.RunID, "intake", msg); err != nil {
			return errors.Wrap(err, "insert intake diagnostic")
		}
	}
	for _, msg := range report.Warnings {
		if _, err := tx.Exec(diagnosticInsertQuery, report.RunID, "dispatch", msg); err != nil {
			return errors.Wrap(err, "insert dispatch diagnostic")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit run insert")
	}
	return nil
}

// GetRun retrieves one run summary by id.
func (s *Store) GetRun(id string) (*RunRecord, error) {
	query := `SELECT ` + runSelectColumns + ` FROM runs WHERE id = ?`

	var rec RunRecord
	err := s.db.QueryRow(query, id).Scan(
		&rec.ID, &rec.Repo, &rec.StartedAt, &rec.FinishedAt,
		&rec.Items, &rec.IntakeErrors,
		&rec.Succeeded, &rec.Failed, &rec.Skipped, &rec.Unresolved,
		&rec.SyntheticUpdates, &rec.MemoryMB,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf("run not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get run")
	}
	return &rec, nil
}

// ListRuns returns the most recent run summaries, newest first.
func (s *Store) ListRuns(limit int) ([]*RunRecord, error) {
	query := `SELECT ` + runSelectColumns + ` FROM runs ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var rec RunRecord
		err := rows.Scan(
			&rec.ID, &rec.Repo, &rec.StartedAt, &rec.FinishedAt,
			&rec.Items, &rec.IntakeErrors,
			&rec.Succeeded, &rec.Failed, &rec.Skipped, &rec.Unresolved,
			&rec.SyntheticUpdates, &rec.MemoryMB,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		runs = append(runs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate runs")
	}
	return runs, nil
}

// RunRedactions returns a run's redaction log in insertion order.
func (s *Store) RunRedactions(runID string) ([]scrub.Redaction, error) {
	rows, err := s.db.Query(
		`SELECT kind, value FROM run_redactions WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "list redactions")
	}
	defer rows.Close()

	var out []scrub.Redaction
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, errors.Wrap(err, "scan redaction")
		}
		out = append(out, scrub.Redaction{Kind: scrub.RedactionKind(kind), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate redactions")
	}
	return out, nil
}

// RunResolvedIDs returns a run's temporary-id map, sorted by token.
func (s *Store) RunResolvedIDs(runID string) ([]ResolvedID, error) {
	rows, err := s.db.Query(
		`SELECT temp_id, repo, number, url FROM run_resolved_ids WHERE run_id = ? ORDER BY temp_id ASC`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "list resolved ids")
	}
	defer rows.Close()

	var out []ResolvedID
	for rows.Next() {
		var r ResolvedID
		if err := rows.Scan(&r.TempID, &r.Entry.Repo, &r.Entry.Number, &r.Entry.URL); err != nil {
			return nil, errors.Wrap(err, "scan resolved id")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate resolved ids")
	}
	return out, nil
}

// RunDiagnostics returns a run's preserved diagnostics in insertion
// order, intake rows before dispatch rows.
func (s *Store) RunDiagnostics(runID string) ([]Diagnostic, error) {
	rows, err := s.db.Query(
		`SELECT source, message FROM run_diagnostics WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "list diagnostics")
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.Source, &d.Message); err != nil {
			return nil, errors.Wrap(err, "scan diagnostic")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate diagnostics")
	}
	return out, nil
}
