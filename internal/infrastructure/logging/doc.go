// Package logging provides structured logging for the Marstek Cloud Bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting bridge", "poll_interval", 60)
//	logger.Error("refresh failed", "error", err)
//
// # Security
//
// Never log secrets, session tokens, or the account password.
// The Marstek session token in particular must not appear in logs;
// log only its presence or length when debugging auth flows.
package logging
