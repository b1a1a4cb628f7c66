// Package api implements the local HTTP API of Gray Logic Valves.
//
// This package provides:
//   - Read-only views of every controller's diagnostics
//   - Manual valve position requests, queued as urgent commands
//   - Actuation queue inspection and persisted calibration listing
//   - Prometheus metrics at /metrics
//   - Middleware stack (request ID, logging, recovery, chi body size limit)
//
// # Graceful Degradation
//
// MQTT, the database and the state store are optional. Endpoints that need
// a missing dependency answer 503 while the rest keep working.
package api
