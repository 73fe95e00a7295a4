// Package logging provides structured logging for the field node.
//
// This package wraps Go's standard log/slog package so that every
// component (device loops, MQTT session, telemetry sinks) logs with the
// same shape.
//
// # Features
//
//   - JSON output for production, text output for development
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The -debug command line flag forces level debug.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device started", "device_id", id)
//	logger.Error("persist failed", "device_id", id, "error", err)
//
// # Security
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
