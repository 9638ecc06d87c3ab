// Package logging provides output formatting for sitefence.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// StderrLogger provides leveled, prefixed output to stderr.
type StderrLogger struct {
	log     *log.Logger
	quiet   bool
	verbose bool
}

// NewStderrLogger creates a new StderrLogger.
func NewStderrLogger(quiet, verbose bool) *StderrLogger {
	return New(os.Stderr, quiet, verbose)
}

// New creates a logger writing to w. Quiet keeps only errors; verbose adds
// debug output.
func New(w io.Writer, quiet, verbose bool) *StderrLogger {
	l := log.NewWithOptions(w, log.Options{
		Prefix:          "sitefence",
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	switch {
	case quiet:
		l.SetLevel(log.ErrorLevel)
	case verbose:
		l.SetLevel(log.DebugLevel)
	default:
		l.SetLevel(log.InfoLevel)
	}
	return &StderrLogger{log: l, quiet: quiet, verbose: verbose}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *StderrLogger {
	return New(io.Discard, true, false)
}

// With returns a logger that adds key/value pairs to every line.
func (l *StderrLogger) With(keyvals ...interface{}) *StderrLogger {
	return &StderrLogger{log: l.log.With(keyvals...), quiet: l.quiet, verbose: l.verbose}
}

// Verbose reports whether debug output is enabled.
func (l *StderrLogger) Verbose() bool {
	return l.verbose && !l.quiet
}

// Info logs an informational message.
func (l *StderrLogger) Info(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

// Debug logs a debug message (only if verbose is enabled).
func (l *StderrLogger) Debug(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

// Warn logs a warning.
func (l *StderrLogger) Warn(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

// Error logs an error message. Errors are shown even in quiet mode.
func (l *StderrLogger) Error(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

// CycleStart logs the beginning of a sync cycle.
func (l *StderrLogger) CycleStart(domains []string) {
	if len(domains) == 0 {
		l.Info("Sync: no active domains, clearing enforcement")
		return
	}
	l.Info("Sync: %d domain(s): %s", len(domains), summarize(domains, 6))
}

// CycleDone logs the outcome of a sync cycle.
func (l *StderrLogger) CycleDone(applied, hostsChanged, anchorChanged bool, entries, newlyBlocked int, d time.Duration) {
	if !applied {
		l.Info("Sync: nothing to change (%d entries, %s)", entries, d.Round(time.Millisecond))
		return
	}
	var parts []string
	if hostsChanged {
		parts = append(parts, "hosts")
	}
	if anchorChanged {
		parts = append(parts, "anchor")
	}
	l.Info("Sync: applied %s (%d entries, %d newly blocked, %s)",
		strings.Join(parts, "+"), entries, newlyBlocked, d.Round(time.Millisecond))
}

// DryRun logs the privileged script that would have been executed.
func (l *StderrLogger) DryRun(script string) {
	l.Info("DRY RUN: no changes were made")
	if script == "" {
		l.Info("  (nothing to execute)")
		return
	}
	for _, seg := range strings.Split(script, " && ") {
		l.Info("  %s", seg)
	}
}

// CleanupStart logs the start of cleanup.
func (l *StderrLogger) CleanupStart() {
	l.Info("Scanning for sitefence resources...")
}

// CleanupFound logs a found resource.
func (l *StderrLogger) CleanupFound(resourceType, name string) {
	l.Info("Found %s: %s", resourceType, name)
}

// CleanupRemoved logs a removed resource.
func (l *StderrLogger) CleanupRemoved(resourceType, name string) {
	l.Info("Removed %s: %s", resourceType, name)
}

// CleanupNone logs when no resources are found.
func (l *StderrLogger) CleanupNone() {
	l.Info("No sitefence resources found")
}

func summarize(items []string, max int) string {
	if len(items) <= max {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:max], ", ") + ", ..."
}
