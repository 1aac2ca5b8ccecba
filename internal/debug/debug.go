// Package debug provides lightweight, environment-toggled diagnostic output
// for the engine. It is not a structured logging library: callers that need
// leveled or structured logs should wrap these calls, not replace them.
package debug

import (
	"fmt"
	"os"
)

var (
	enabled     = os.Getenv("ELEMENTAL_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

// Enabled reports whether debug output is currently active.
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output regardless of the environment.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet suppresses normal informational output.
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet reports whether quiet mode is enabled.
func IsQuiet() bool {
	return quietMode
}

// Logf writes a debug line to stderr when debug output is enabled.
func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Printf writes a debug line to stdout when debug output is enabled.
func Printf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Printf(format, args...)
	}
}

// PrintNormal prints informational output unless quiet mode is enabled.
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints an informational line unless quiet mode is enabled.
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
