// Package diag is the collector's diagnostic channel: a thin wrapper
// around the standard error stream, matching the short-context-tag
// convention the teacher uses for its own fatal conditions (runtime's
// "throw"/"print" pair) and the storage-tier pack members that log
// straight to stderr rather than through a structured logger.
package diag

import (
	"fmt"
	"log"
	"os"
)

var std = log.New(os.Stderr, "remem: ", 0)

// Warn logs a soft/non-fatal diagnostic (e.g. unroot-not-found).
func Warn(tag, format string, args ...any) {
	std.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

// Fatal logs a fatal diagnostic and terminates the process with code.
// Called when a region or aligned-page allocation still fails after a
// forced collect-and-retry. Collector metadata (page handles, bitmaps,
// worklist, roots, index) is allocated with make/new and an
// out-of-memory there does not pass through this function.
func Fatal(code int, tag string, err error) {
	std.Printf("[%s] FATAL: %v", tag, err)
	os.Exit(code)
}
