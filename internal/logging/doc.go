// Package logging provides structured logging for the team fabric.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation support. It is designed to help troubleshoot
// multi-agent coordination by providing structured, filterable logs that
// can be analyzed after the fact.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (team, agent, component)
//   - Log rotation with configurable size limits
//   - Optional gzip compression for rotated logs
//   - Log aggregation and filtering utilities
//   - Export to JSON, text, or CSV formats
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses Go's slog internally which is designed for concurrent access. The
// [RotatingWriter] type uses a mutex to protect file operations during
// rotation. Child loggers created via With* methods share the underlying
// writer safely.
//
// # Basic Usage
//
// Create a logger for a fabric root:
//
//	logger, err := logging.NewLogger("/path/to/root/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Debug("detailed info", "key", "value")
//	logger.Info("operation completed", "duration_ms", 150)
//	logger.Warn("potential issue", "threshold", 100)
//	logger.Error("operation failed", "error", err.Error())
//
// # Context Propagation
//
// Create child loggers with persistent context attributes:
//
//	teamLogger := logger.WithTeam("payments")
//	agentLogger := teamLogger.WithAgent("backend-dev")
//	storeLogger := agentLogger.WithComponent("store")
//
//	// All logs from storeLogger include team, agent, and component
//	storeLogger.Info("task updated", "task_id", "3")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"task updated","team":"payments","agent":"backend-dev","component":"store","task_id":"3"}
//
// # Log Rotation
//
// For long-running fabrics, use log rotation to prevent unbounded growth:
//
//	config := logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	}
//
//	logger, err := logging.NewLoggerWithRotation("/path/to/root/logs", "INFO", config)
//
// Rotated files are named: fabric.log.1, fabric.log.2, etc., where .1 is
// the most recent backup. When compression is enabled, rotated files become
// fabric.log.1.gz, etc.
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output:
//
//	func TestSomething(t *testing.T) {
//	    logger := logging.NopLogger()
//	    // Use logger in tests without creating files
//	}
//
// # Log Aggregation and Filtering
//
// Read and analyze logs after the fact:
//
//	entries, err := logging.AggregateLogs("/path/to/root/logs")
//	if err != nil {
//	    return err
//	}
//
//	filter := logging.LogFilter{
//	    Level:     "WARN",
//	    Team:      "payments",
//	    StartTime: time.Now().Add(-1 * time.Hour),
//	}
//	filtered := logging.FilterLogs(entries, filter)
//
//	logging.ExportLogEntries(filtered, "errors.json", "json")
package logging
