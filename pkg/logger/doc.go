// Package logger provides a structured logging interface for spotifetch.
//
// It wraps zerolog and offers:
//   - Leveled logging (Debug, Info, Warn, Error)
//   - Structured fields via WithField / WithFields and the *WithFields methods
//   - Colored console output, optionally mirrored to a file
//   - Named diagnostic channels (see Named)
//   - A global logger for the command line tool
//   - NewNopLogger and NewTestLogger for tests
//
// Basic usage:
//
//	err := logger.Initialize(&cfg.Logging)
//	logger.GetLogger().WithField("artist", name).Info("collecting tracks")
//
// Libraries take a Logger as a constructor argument instead of reaching for
// the global one:
//
//	retryLog := logger.Named(log, "spotify_retry")
//	retryLog.DebugWithFields("retry attempt", map[string]interface{}{"attempt": 1})
package logger
