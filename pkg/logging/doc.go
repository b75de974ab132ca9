// Package logging configures the log/slog loggers used by tracemock.
//
// Every component (resolver, replay engine, server) takes a *slog.Logger
// through a WithLogger option and falls back to Nop when none is given, so a
// library user pays nothing for logging unless they opt in.
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatJSON,
//	})
//	srv := server.New(server.WithLogger(logger))
//
// Replay mismatches are logged at warn, configuration errors at error, and
// individual lookups and matches at debug.
package logging
