// Package logging provides structured logging for spimrig.
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
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("failed to connect", "error", err)
//
// Components receive a tagged child logger; it satisfies the small Logger
// interfaces declared by the device and setup packages:
//
//	registry, err := device.NewRegistry(backend, device.DefaultFactories(),
//	    device.WithLogger(logger.Component("device")))
//
// # Security
//
// Never log broker passwords or InfluxDB tokens.
package logging
