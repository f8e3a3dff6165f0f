package logger

import (
	"context"
)

// Standard field names for consistent structured logging across airlock.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID  = "run_id"
	FieldTempID = "temp_id"
	FieldActor  = "actor"

	// Components
	FieldComponent = "component"
	FieldHandler   = "handler"

	// Pipeline
	FieldStage      = "stage"
	FieldType       = "type"
	FieldLine       = "line"
	FieldRedactions = "redactions"
	FieldScheme     = "scheme"

	// Platform resources
	FieldRepo   = "repo"
	FieldNumber = "number"
	FieldURL    = "url"
	FieldBranch = "branch"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount     = "count"
	FieldSize      = "size"
	FieldBatchSize = "batch_size"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	// Files and paths
	FieldFile   = "file"
	FieldPath   = "path"
	FieldBinary = "binary"

	// Network
	FieldHost = "host"
)

// contextKey namespaces the values this package stores in a context.
type contextKey string

const runIDKey contextKey = "logger_run_id"

// WithRunID attaches the run id to the context. The dispatch engine sets
// it once per run; anything logging below a handler can echo it without
// threading the id through every signature.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}
	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	return fields
}
