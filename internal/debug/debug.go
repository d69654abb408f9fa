// Package debug provides the ambient debug-logging toggle shared by
// every layer: a package-level flag checked before writing to stderr,
// rather than a configured logger threaded through every call site.
package debug

import (
	"fmt"
	"os"
)

var enabled = os.Getenv("ISSUEGRAPH_DEBUG") != ""

// Enabled reports whether debug logging is turned on.
func Enabled() bool { return enabled }

// SetEnabled overrides the env-derived default; tests use this to
// exercise debug-only branches deterministically.
func SetEnabled(v bool) { enabled = v }

// Logf writes a debug line to stderr when debug logging is enabled.
func Logf(format string, args ...interface{}) {
	if enabled {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
