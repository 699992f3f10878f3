// Package logging configures the zerolog logger shared by every
// participant and the driver. Replaces the teacher's bare fmt.Printf
// progress/status lines with structured, leveled logging.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a logger tagged with a component name ("voter", "tallier",
// "driver", ...). In CLI mode it writes a human-readable console line to
// stderr; callers running headless (e.g. under a workflow or test
// harness) can pass their own io.Writer via NewWithWriter for JSON output.
func New(component string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(console).With().Timestamp().Str("component", component).Logger()
}

// NewWithWriter builds a logger that writes newline-delimited JSON to w,
// useful for tests that want to assert on log output or for non-TTY
// deployments that feed logs to a collector.
func NewWithWriter(component string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}
