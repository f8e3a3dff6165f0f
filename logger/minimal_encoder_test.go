package logger

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// stripANSI removes ANSI color codes from a string for testing
func stripANSI(str string) string {
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	return ansiRegex.ReplaceAllString(str, "")
}

// TestMinimalEncoderNeverDiscardsFields ensures the minimal encoder never
// silently discards log fields. Losing fields means losing the audit trail.
func TestMinimalEncoderNeverDiscardsFields(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "test",
		Message:    "Testing field preservation",
	}

	testFields := []struct {
		field    zapcore.Field
		mustFind string // What we must find in the output
	}{
		{zap.String("type", "create_issue"), "type=create_issue"},
		{zap.String("repo", "octo/widgets"), "repo=octo/widgets"},
		{zap.Bool("resolved", true), "resolved=true"},
		{zap.Float64("ratio", 0.8), "ratio=0.8"},
		{zap.Strings("labels", []string{"bug", "triage"}), "labels"},

		// Arbitrary field names must never be dropped
		{zap.String("random_field_xyz", "important_data"), "random_field_xyz=important_data"},
		{zap.Int("critical_count", 999), "critical_count=999"},
		{zap.String("error_details", "null pointer exception"), "error_details=null pointer exception"},

		// Fields with underscores and dots (edge cases)
		{zap.String("field_with_underscores", "test"), "field_with_underscores=test"},
		{zap.String("field.with.dots", "test2"), "field.with.dots=test2"},

		// Numeric fields
		{zap.Int32("int32_field", 42), "int32_field=42"},
		{zap.Int64("int64_field", 9999999), "int64_field=9999999"},

		// Boolean fields
		{zap.Bool("success", false), "success=false"},

		// Error fields
		{zap.Error(nil), ""}, // nil error shouldn't crash
		{zap.String("error", "something went wrong"), "error=something went wrong"},

		// Special-cased pipeline fields render value-only
		{zap.String(FieldRunID, "r_123"), "r_123"},
		{zap.Int("items", 10), "10"},
		{zap.Int("errors", 5), "5"},
	}

	var allFields []zapcore.Field
	for _, tf := range testFields {
		allFields = append(allFields, tf.field)
	}

	buf, err := encoder.EncodeEntry(entry, allFields)
	if err != nil {
		t.Fatalf("Failed to encode entry: %v", err)
	}

	output := buf.String()
	cleanOutput := stripANSI(output)

	missingFields := []string{}
	for _, tf := range testFields {
		if tf.mustFind != "" && !strings.Contains(cleanOutput, tf.mustFind) {
			missingFields = append(missingFields, tf.mustFind)
			t.Errorf("Field was silently discarded from log output: %s", tf.mustFind)
		}
	}

	if len(missingFields) > 0 {
		t.Fatalf("Logger is silently discarding %d fields! Missing: %v\nClean output was: %s",
			len(missingFields), missingFields, cleanOutput)
	}
}

// TestMinimalEncoderFieldCount ensures that the number of fields in equals
// the number of fields that appear in the output
func TestMinimalEncoderFieldCount(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "test",
		Message:    "Field count test",
	}

	fields := []zapcore.Field{
		zap.String("field1", "value1"),
		zap.String("field2", "value2"),
		zap.String("field3", "value3"),
		zap.String("field4", "value4"),
		zap.String("field5", "value5"),
		zap.Int("field6", 6),
		zap.Int("field7", 7),
		zap.Bool("field8", true),
		zap.Float64("field9", 9.9),
		zap.String("field10", "value10"),
	}

	buf, err := encoder.EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	output := stripANSI(buf.String())

	fieldCount := strings.Count(output, "field1=") +
		strings.Count(output, "field2=") +
		strings.Count(output, "field3=") +
		strings.Count(output, "field4=") +
		strings.Count(output, "field5=") +
		strings.Count(output, "field6=") +
		strings.Count(output, "field7=") +
		strings.Count(output, "field8=") +
		strings.Count(output, "field9=") +
		strings.Count(output, "field10=")

	if fieldCount != 10 {
		t.Errorf("Expected 10 fields in output, but found %d. Output: %s", fieldCount, output)
	}
}

// TestBatchStatsFormatting tests the compact (N items, M errors) rendering
// used for batch summaries
func TestBatchStatsFormatting(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "airlock.intake",
		Message:    "Batch complete",
	}

	fields := []zapcore.Field{
		zap.String(FieldRunID, "r_8fj2"),
		zap.Int("items", 7),
		zap.Int("errors", 1),
	}

	buf, err := encoder.EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("Failed to encode batch stats: %v", err)
	}

	cleanOutput := stripANSI(buf.String())

	for _, required := range []string{"r_8fj2", "(7 items, 1 errors)"} {
		if !strings.Contains(cleanOutput, required) {
			t.Errorf("Batch stat missing from log: %s\nFull output: %s", required, cleanOutput)
		}
	}
}

// TestComponentAbbreviation tests the name shortening for dotted components
func TestComponentAbbreviation(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"airlock.dispatch", "a.dispatch"},
		{"airlock.intake", "a.intake"},
		{"scrub", "scrub"},
	}

	for _, tt := range tests {
		if got := abbreviateName(tt.name); got != tt.want {
			t.Errorf("abbreviateName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// TestStageMarkerColorization verifies bracketed run ids and stage markers
// survive colorization intact
func TestStageMarkerColorization(t *testing.T) {
	msg := "[run:r_42] retry pass [dispatch] complete"
	colorized := colorizeMessage(msg)
	clean := stripANSI(colorized)

	if clean != msg {
		t.Errorf("colorizeMessage altered message content:\n got: %s\nwant: %s", clean, msg)
	}
}

// TestUnknownFieldTypes tests that the encoder handles all possible field types
// without crashing or silently dropping them
func TestUnknownFieldTypes(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "test",
		Message:    "Testing unknown field types",
	}

	fields := []zapcore.Field{
		zap.Duration("duration", 5*time.Second),
		zap.Uint("uint", 100),
		zap.Uint8("uint8", 200),
		zap.Uint16("uint16", 30000),
		zap.Uint32("uint32", 4000000),
		zap.Uint64("uint64", 5000000000),
		zap.ByteString("bytes", []byte("hello world")),
	}

	buf, err := encoder.EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	cleanOutput := stripANSI(buf.String())

	expectedSubstrings := []string{
		"duration=5s",
		"uint=100",
		"uint8=200",
		"uint16=30000",
		"uint32=4000000",
		"uint64=5000000000",
		"bytes=hello world",
	}

	for _, expected := range expectedSubstrings {
		if !strings.Contains(cleanOutput, expected) {
			t.Errorf("Field '%s' was dropped or misrendered: %s", expected, cleanOutput)
		}
	}
}
