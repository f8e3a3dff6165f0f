package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: results, errors with hints, final status
//	1 (-v)      - + Progress, startup info, run summaries
//	2 (-vv)     - + Redaction details, timing, policy values, db stats
//	3 (-vvv)    - + Per-record decisions, gh invocations, SQL queries
//	4 (-vvvv)   - + Raw input lines and full payload dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Batch results, command output
	OutputErrors                           // Errors with hints and resolution steps
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress // Progress indicators (e.g., "dispatching 4/12")
	OutputStartup  // Startup banners, policy summary
	OutputRunInfo  // High-level run summaries

	// Level 2 (-vv) - Detailed
	OutputRedactions // URI redactions with scheme and offset
	OutputTiming     // Operation timing (e.g., "dispatch took 42ms")
	OutputPolicy     // Policy values loaded/applied
	OutputDBStats    // Audit store statistics

	// Level 3 (-vvv) - Debug
	OutputRecords    // Per-record validation decisions
	OutputGHCalls    // Platform CLI invocations
	OutputSQLQueries // Individual SQL queries executed
	OutputInternalOp // Internal operation flow

	// Level 4 (-vvvv) - Full dump
	OutputRawLines // Raw input lines before scrubbing
	OutputDataDump // Full data structure contents
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	// Level 0 - Always shown
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	// Level 1 - Informational
	OutputProgress: VerbosityInfo,
	OutputStartup:  VerbosityInfo,
	OutputRunInfo:  VerbosityInfo,

	// Level 2 - Detailed
	OutputRedactions: VerbosityDebug,
	OutputTiming:     VerbosityDebug,
	OutputPolicy:     VerbosityDebug,
	OutputDBStats:    VerbosityDebug,

	// Level 3 - Debug
	OutputRecords:    VerbosityTrace,
	OutputGHCalls:    VerbosityTrace,
	OutputSQLQueries: VerbosityTrace,
	OutputInternalOp: VerbosityTrace,

	// Level 4 - Full dump
	OutputRawLines: VerbosityAll,
	OutputDataDump: VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:    "results",
	OutputErrors:     "errors",
	OutputUserStatus: "status",
	OutputProgress:   "progress",
	OutputStartup:    "startup",
	OutputRunInfo:    "run-info",
	OutputRedactions: "redactions",
	OutputTiming:     "timing",
	OutputPolicy:     "policy",
	OutputDBStats:    "db-stats",
	OutputRecords:    "records",
	OutputGHCalls:    "gh",
	OutputSQLQueries: "sql",
	OutputInternalOp: "internal",
	OutputRawLines:   "raw-lines",
	OutputDataDump:   "data-dump",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// EnabledCategories returns all output categories enabled at the given verbosity
func EnabledCategories(verbosity int) []OutputCategory {
	var enabled []OutputCategory
	for cat, minLevel := range categoryLevels {
		if verbosity >= minLevel {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "results and errors only"
	case VerbosityInfo:
		return "results, errors, progress, and status"
	case VerbosityDebug:
		return "above + redactions, timing, policy details"
	case VerbosityTrace:
		return "above + per-record decisions, gh calls, SQL"
	case VerbosityAll:
		return "full output including raw input lines"
	default:
		if verbosity > VerbosityAll {
			return "maximum verbosity"
		}
		return "unknown verbosity level"
	}
}
