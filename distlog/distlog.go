// Package distlog provides the leveled, structured logging used for
// construction-phase diagnostics (rank counts, duplicate-owner warnings,
// unmatched-index reports). It is deliberately thin: the teacher package
// this module is built from carries no logger at all, reporting everything
// through returned errors instead, so this wraps the standard library's
// slog rather than adopting a heavier third-party logging stack that
// nothing else in this module would exercise.
package distlog

import (
	"log/slog"
	"os"
)

// Logger is the minimal surface distmap needs: leveled,
// structured, correlated by an opaque epoch tag.
type Logger struct {
	base *slog.Logger
}

// New creates a Logger that writes structured text to os.Stderr.
func New() Logger {
	return Logger{base: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

// Discard returns a Logger whose output is dropped; used in tests and by
// callers who want the library silent by default.
func Discard() Logger {
	return Logger{base: slog.New(slog.NewTextHandler(discardWriter{}, nil))}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// With returns a Logger that attaches the given key/value pairs to every
// subsequent log line, e.g. the epoch id of a Map construction call.
func (l Logger) With(args ...any) Logger {
	return Logger{base: l.base.With(args...)}
}

// Info logs a diagnostic at informational level (e.g. successful map
// construction summaries).
func (l Logger) Info(msg string, args ...any) { l.base.Info(msg, args...) }

// Warn logs a diagnostic that does not abort the call (e.g. DuplicateOwner,
// which is recoverable by the lowest-rank-wins tie-break).
func (l Logger) Warn(msg string, args ...any) { l.base.Warn(msg, args...) }

// Error logs a diagnostic for a fatal condition just before it is returned
// to the caller as an error value.
func (l Logger) Error(msg string, args ...any) { l.base.Error(msg, args...) }
