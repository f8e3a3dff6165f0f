package dispatch

import (
	"time"
)

// Status is one message's position in the dispatch state machine.
// Pending moves to Success, Deferred, Failed, or Skipped on the main
// pass; Deferred moves to Success or Unresolved on the single retry
// pass. There is no further movement.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccess    Status = "success"
	StatusDeferred   Status = "deferred"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusUnresolved Status = "unresolved"
)

// MessageResult is the final record for one dispatched message.
type MessageResult struct {
	Index     int       `json:"index"`
	Line      int       `json:"line"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	TempID    string    `json:"temp_id,omitempty"`
	Entry     TempEntry `json:"entry,omitempty"`
	BlockedOn string    `json:"blocked_on,omitempty"`
	Retried   bool      `json:"retried,omitempty"`
}

// SyntheticUpdate records one corrective body edit issued after the
// retry pass to backfill forward references.
type SyntheticUpdate struct {
	Index    int       `json:"index"`
	Line     int       `json:"line"`
	Entry    TempEntry `json:"entry"`
	Resolved []string  `json:"resolved"`
	Error    string    `json:"error,omitempty"`
}

// Report is the full outcome of one dispatch run.
type Report struct {
	RunID      string               `json:"run_id,omitempty"`
	Repo       string               `json:"repo,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Results    []MessageResult      `json:"results"`
	Warnings   []string             `json:"warnings,omitempty"`
	Resolved   map[string]TempEntry `json:"resolved,omitempty"`
	Synthetic  []SyntheticUpdate    `json:"synthetic,omitempty"`

	// MemoryMB is the process resident set at run end, for capacity
	// observations across large batches.
	MemoryMB float64 `json:"memory_mb,omitempty"`
}

// Counts aggregates final statuses.
type Counts struct {
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Unresolved int `json:"unresolved"`
}

// Counts tallies the report's final statuses.
func (r *Report) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			c.Success++
		case StatusFailed:
			c.Failed++
		case StatusSkipped:
			c.Skipped++
		case StatusUnresolved:
			c.Unresolved++
		}
	}
	return c
}

// Duration is the wall-clock span of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
