// Package logging builds the slog loggers used across wavecache.
//
// Two handler formats are supported: a human-oriented console handler and
// a line-delimited JSON handler. Components derive child loggers with
// NewComponentLogger so log lines can be filtered per subsystem.
package logging
