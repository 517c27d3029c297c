// Package logging constructs slog loggers for console and JSON output
// and maps roster severity levels onto log levels.
package logging
