// Package logging provides structured logging utilities for bitte.
//
// # Overview
//
// This package wraps the standard library slog package with consistent
// defaults: JSON output on stderr, module and version attributes on every
// record, and source locations when running at debug level.
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: Detailed diagnostic information with source location
//   - INFO: General informational messages (default)
//   - WARN/WARNING: Warning messages for potentially problematic situations
//   - ERROR: Error messages for failures requiring attention
//
// # Usage
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("bitte", "v1.0.0")
//	    slog.Info("snapshot rebuilt", "nodes", 12)
//	}
//
// Setting explicit log level:
//
//	logging.SetDefaultStructuredLoggerWithLevel("bitte", "v1.0.0", "warn")
//
// # Environment Configuration
//
// The LOG_LEVEL environment variable controls logging verbosity when no
// explicit level is given:
//
//	LOG_LEVEL=debug bitte info
package logging
