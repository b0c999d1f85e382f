// Package logging assembles structured slog loggers and formatting helpers used
// across packsync.
//
// It owns the configurable console/JSON handlers, routes file output through a
// size-rotated lumberjack writer, and exposes context-aware helpers so pipeline
// code automatically tags log lines with pass IDs, item IDs, stages, and
// attempt counters. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
