// Package logging assembles structured slog loggers and formatting helpers used
// across sanmiguel.
//
// It owns the console and JSON handlers, the rotating log file sink, and
// context-aware helpers so conversion code can tag log lines with the run
// identifier, the manifest being rewritten, or the texture being compressed.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same shape.
package logging
