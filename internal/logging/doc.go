// Package logging assembles structured slog loggers and formatting helpers used
// across lapse.
//
// It owns the console and JSON handlers, combines sinks with a fanout, and
// exposes context-aware helpers so pipeline code tags log lines with job IDs,
// job kinds, stages, and correlation IDs. A no-op logger is provided for tests
// and wiring code that cannot fail.
package logging
