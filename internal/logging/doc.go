// Package logging assembles structured slog loggers and formatting helpers used
// across wmclean.
//
// It owns the console and JSON handlers, writes a daily log file next to the
// console stream, and exposes context-aware helpers so pipeline code can tag
// log lines with job IDs and stages automatically. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
