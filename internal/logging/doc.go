// Package logging builds slog loggers from configuration and provides the
// attribute helpers and context plumbing shared across the pipeline.
package logging
