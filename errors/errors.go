// Package errors provides error handling for airlock.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// It also defines the sentinel errors for the trust-boundary pipeline.
// The taxonomy mirrors how a run degrades: configuration problems are
// fatal before any message is processed; everything downstream is
// recorded per line, per record, or per message while the batch
// continues.
//
// Usage:
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check taxonomy
//	if errors.Is(err, errors.ErrConfiguration) {
//	    // abort the run
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
	Join       = crdb.Join
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Stack trace extraction, for tests and crash reporting
var (
	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors for the airlock pipeline.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrConfiguration indicates the run cannot start: the policy is
	// unreadable, no handler registry could be built, or the binary is
	// older than the policy's minimum version.
	ErrConfiguration = New("configuration error")

	// ErrParse indicates an input line could not be parsed even after
	// lenient repair.
	ErrParse = New("parse error")

	// ErrSchema indicates a parsed record violates its type's field schema.
	ErrSchema = New("schema validation error")

	// ErrCardinality indicates a per-type acceptance bound was violated.
	ErrCardinality = New("cardinality limit")

	// ErrHandler indicates a handler invocation failed.
	ErrHandler = New("handler error")

	// ErrUnresolved indicates a message still references an unregistered
	// temporary id after the retry pass.
	ErrUnresolved = New("unresolved temporary id")
)

// IsConfigurationError checks if an error is or wraps ErrConfiguration.
func IsConfigurationError(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsSchemaError checks if an error is or wraps ErrSchema.
func IsSchemaError(err error) bool {
	return err != nil && Is(err, ErrSchema)
}

// IsCardinalityError checks if an error is or wraps ErrCardinality.
func IsCardinalityError(err error) bool {
	return err != nil && Is(err, ErrCardinality)
}

// IsUnresolvedError checks if an error is or wraps ErrUnresolved.
func IsUnresolvedError(err error) bool {
	return err != nil && Is(err, ErrUnresolved)
}

// WrapHandler wraps an error as a handler error with context
func WrapHandler(err error, context string) error {
	return Wrap(Wrap(ErrHandler, err.Error()), context)
}

// NewConfigurationError creates a configuration error with a formatted message
func NewConfigurationError(format string, args ...interface{}) error {
	return Wrap(ErrConfiguration, Newf(format, args...).Error())
}

// NewParseError creates a parse error with a formatted message
func NewParseError(format string, args ...interface{}) error {
	return Wrap(ErrParse, Newf(format, args...).Error())
}

// NewSchemaError creates a schema validation error with a formatted message
func NewSchemaError(format string, args ...interface{}) error {
	return Wrap(ErrSchema, Newf(format, args...).Error())
}

// NewCardinalityError creates a cardinality error with a formatted message
func NewCardinalityError(format string, args ...interface{}) error {
	return Wrap(ErrCardinality, Newf(format, args...).Error())
}
