// Package logging provides structured logging for Gray Logic Valves.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same default fields (service, version) and level filter.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	ctrlLog := logger.Component("valve").With("valve", "kitchen")
//	ctrlLog.Info("position adjusted", "position", 23)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
