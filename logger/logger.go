package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// Initialize with a safe no-op logger at package load time
	// This prevents nil pointer panics if logger is used before Initialize() is called
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger based on the JSON output preference
func Initialize(jsonOutput bool) error {
	JSONOutput = jsonOutput

	// Load theme from environment if available
	loadThemeFromEnv()

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		// JSON structured output for machine consumption
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = config.Build()
	} else {
		// Human-readable console output with minimal, calm formatting
		zapLogger = zap.New(
			zapcore.NewCore(
				newMinimalEncoder(),
				zapcore.AddSync(os.Stderr),
				zap.InfoLevel,
			),
		)
	}

	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// loadThemeFromEnv attempts to load the log theme from the environment.
// Logging must work even without any configuration loaded.
func loadThemeFromEnv() {
	if theme := os.Getenv("AIRLOCK_LOG_THEME"); theme != "" {
		SetTheme(theme)
	}
}

// InitializeForRunner sets up the global logger for CI runner execution.
// On a hosted runner log lines land in the step transcript, so output is
// JSON at WARN+ unless the workflow opts into debug logging. Locally the
// console encoder is used.
func InitializeForRunner() error {
	onRunner := isRunnerEnvironment()

	var zapLogger *zap.Logger
	var err error

	if onRunner {
		JSONOutput = true
		config := zap.NewProductionConfig()
		if isRunnerDebug() {
			config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		} else {
			config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		}
		// stdout stays reserved for command output; a workflow piping
		// --json results must never see log lines mixed in.
		config.OutputPaths = []string{"stderr"}
		config.ErrorOutputPaths = []string{"stderr"}
		zapLogger, err = config.Build()
	} else {
		JSONOutput = false
		loadThemeFromEnv()
		zapLogger = zap.New(
			zapcore.NewCore(
				newMinimalEncoder(),
				zapcore.AddSync(os.Stderr),
				zap.InfoLevel,
			),
		)
	}

	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()

	if onRunner {
		Logger.Infow("Runner logger initialized",
			"environment", getEnvironmentType(),
			"log_level", getLogLevel(),
			"runner", onRunner)
	}

	return nil
}

// isRunnerEnvironment determines if the process is running inside a CI runner
func isRunnerEnvironment() bool {
	// GITHUB_ACTIONS is set to "true" on hosted and self-hosted runners
	if actions := os.Getenv("GITHUB_ACTIONS"); actions == "true" {
		return true
	}

	// Generic CI flag set by most other runners
	if ci := strings.ToLower(os.Getenv("CI")); ci == "true" || ci == "1" {
		return true
	}

	return false
}

// isRunnerDebug reports whether the workflow enabled step debug logging
func isRunnerDebug() bool {
	return os.Getenv("RUNNER_DEBUG") == "1" ||
		strings.EqualFold(os.Getenv("ACTIONS_STEP_DEBUG"), "true")
}

// getEnvironmentType returns a string description of the environment
func getEnvironmentType() string {
	if isRunnerEnvironment() {
		return "runner"
	}
	return "local"
}

// getLogLevel returns the current log level as a string
func getLogLevel() string {
	if isRunnerEnvironment() && !isRunnerDebug() {
		return "WARN+"
	}
	return "INFO+"
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		Logger.Sync()
	}
}

// Info logs an info message
func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

// Error logs an error message
func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Error(args...)
	}
}

// Errorf logs a formatted error message
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

// Warn logs a warning message
func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Warn(args...)
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

// Debug logs a debug message
func Debug(args ...interface{}) {
	if Logger != nil {
		Logger.Debug(args...)
	}
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

// Debugw logs a debug message with structured fields
func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
