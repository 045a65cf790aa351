// Package logging provides structured logging for pm8sim.
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
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stderr, stdout, discard
//
// Logs go to stderr by default; the poll subcommand prints its reading
// table on stdout and the two must not interleave.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("listening", "port", "/dev/pts/3", "baud", 9600)
//	logger.Error("read failed", "address", 7101, "error", err)
//
// # Security
//
// Never log broker passwords or InfluxDB tokens.
package logging
