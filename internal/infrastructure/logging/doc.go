// Package logging provides structured logging for the Bambi controller.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/bambi.log"
//	    max_size: 10     # megabytes before rotation
//	    max_backups: 3
//	    max_age: 28      # days
//
// File output is rotated with lumberjack so the controller can run
// unattended for weeks without filling the disk.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("door opened", "bed_temp", 44)
//	logger.Warn("actuator link down, command dropped", "command", "OPEN")
//
// Never log the printer access code.
package logging
