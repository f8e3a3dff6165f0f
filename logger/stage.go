package logger

import (
	"go.uber.org/zap"
)

// Pipeline stage symbols. Logged as a structured field, not in the message,
// so logs stay queryable by stage while messages stay clean.
const (
	SymScrub    = "≋" // content sanitization
	SymIntake   = "⊟" // parse and validation
	SymDispatch = "⇶" // handler execution
)

// ScrubInfow logs an info message tagged with the scrub stage symbol (≋)
func ScrubInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldStage, SymScrub}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// ScrubDebugw logs a debug message tagged with the scrub stage symbol (≋)
func ScrubDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldStage, SymScrub}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// IntakeInfow logs an info message tagged with the intake stage symbol (⊟)
func IntakeInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldStage, SymIntake}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// IntakeWarnw logs a warning message tagged with the intake stage symbol (⊟)
func IntakeWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldStage, SymIntake}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// DispatchInfow logs an info message tagged with the dispatch stage symbol (⇶)
func DispatchInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldStage, SymDispatch}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// DispatchDebugw logs a debug message tagged with the dispatch stage symbol (⇶)
func DispatchDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldStage, SymDispatch}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// DispatchWarnw logs a warning message tagged with the dispatch stage symbol (⇶)
func DispatchWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldStage, SymDispatch}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// DispatchErrorw logs an error message tagged with the dispatch stage symbol (⇶)
func DispatchErrorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldStage, SymDispatch}, keysAndValues...)
		Logger.Errorw(msg, fields...)
	}
}

// WithStage returns a logger with the given stage symbol as a field.
// For ad-hoc stage usage not covered by the helpers above.
func WithStage(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldStage, symbol)
}

// Instance logger wrappers.
// These functions wrap any logger with a stage field, useful when you have
// an instance logger (e.g., e.logger) rather than using the global Logger.

// AddScrubStage wraps a logger with the scrub stage symbol (≋)
func AddScrubStage(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldStage, SymScrub)
}

// AddIntakeStage wraps a logger with the intake stage symbol (⊟)
func AddIntakeStage(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldStage, SymIntake)
}

// AddDispatchStage wraps a logger with the dispatch stage symbol (⇶)
func AddDispatchStage(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldStage, SymDispatch)
}
