// Package influxdb provides InfluxDB connectivity for Gray Logic Valves.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, non-blocking batched writes, and health monitoring.
//
// # Purpose
//
// Two measurements are written:
//   - valve_controller: one point per controller tick (temperatures,
//     error terms, position, learned calibration) for tuning review
//   - valve_dispatch: one point per actuation queue dispatch attempt
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteValveSample(influxdb.ValveSample{ValveID: "kitchen", Position: 23})
//
// # Error Handling
//
// Write errors arrive asynchronously through SetOnError. Connection and
// health check errors are returned directly.
package influxdb
