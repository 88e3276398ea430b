// Package logging assembles structured slog loggers and formatting helpers used
// across Pickline.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine and agent code can tag
// log lines with session IDs, picker IDs, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
