// Package logging builds the slog loggers used across clipbatch and
// standardizes structured attribute keys for batch and queue events.
package logging
